package core

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ringTransport simulates a small ring of nodes, each aware of its
// neighbors' routing tables, enough to exercise iterative convergence and
// quorum-store without a real libp2p host.
type ringTransport struct {
	tables map[NodeID]*RoutingTable
	stores map[NodeID]*DHTStore
}

func (r *ringTransport) FindNode(ctx context.Context, peer, target NodeID) ([]NodeID, error) {
	t, ok := r.tables[peer]
	if !ok {
		return nil, ErrDHTKeyNotFound
	}
	return t.Closest(target, KBucketSize), nil
}

func (r *ringTransport) FindValue(ctx context.Context, peer NodeID, key Hash) ([]byte, []NodeID, error) {
	if store, ok := r.stores[peer]; ok {
		if rec, err := store.Find(key); err == nil {
			return rec.Value, nil, nil
		}
	}
	closer, _ := r.FindNode(ctx, peer, NodeID(key))
	return nil, closer, nil
}

func (r *ringTransport) StoreAt(ctx context.Context, peer NodeID, rec *DHTRecord) error {
	store, ok := r.stores[peer]
	if !ok {
		return ErrDHTKeyNotFound
	}
	return store.Put(rec)
}

func (r *ringTransport) Ping(ctx context.Context, peer NodeID) error {
	if _, ok := r.tables[peer]; !ok {
		return ErrDHTKeyNotFound
	}
	return nil
}

func newRing(t *testing.T, n int) (*ringTransport, []NodeID) {
	t.Helper()
	ids := make([]NodeID, n)
	for i := range ids {
		ids[i] = randomNodeID(t, fmt.Sprintf("ring-%d", i))
	}
	rt := &ringTransport{tables: map[NodeID]*RoutingTable{}, stores: map[NodeID]*DHTStore{}}
	for i, id := range ids {
		table := NewRoutingTable(id)
		for j, other := range ids {
			if i != j {
				table.Observe(other)
			}
		}
		rt.tables[id] = table

		dir, err := os.MkdirTemp("", "dhtstore")
		require.NoError(t, err)
		t.Cleanup(func() { os.RemoveAll(dir) })
		store, err := OpenDHTStore(dir)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		rt.stores[id] = store
	}
	return rt, ids
}

func TestDHTClientStoreFindRoundTrip(t *testing.T) {
	ring, ids := newRing(t, 12)
	writer := ids[0]
	reader := ids[len(ids)-1]

	writerClient := NewDHTClient(writer, ring.tables[writer], ring.stores[writer], ring)
	key := HashBlake3([]byte("hello"))
	rec := &DHTRecord{Key: key, Value: []byte("world"), Publisher: writer}
	require.NoError(t, writerClient.Store(context.Background(), rec))

	readerClient := NewDHTClient(reader, ring.tables[reader], ring.stores[reader], ring)
	val, err := readerClient.FindValue(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), val)
}

func TestDHTClientFindValueNotFound(t *testing.T) {
	ring, ids := newRing(t, 6)
	reader := ids[0]
	client := NewDHTClient(reader, ring.tables[reader], ring.stores[reader], ring)

	_, err := client.FindValue(context.Background(), HashBlake3([]byte("never-stored")))
	assert.ErrorIs(t, err, ErrDHTNotFound)
}

func TestDHTClientFindNodeConverges(t *testing.T) {
	ring, ids := newRing(t, 12)
	seeker := ids[0]
	target := ids[len(ids)/2]
	client := NewDHTClient(seeker, ring.tables[seeker], ring.stores[seeker], ring)

	closest, err := client.FindNode(context.Background(), target)
	require.NoError(t, err)
	assert.Contains(t, closest, target)
}
