package core

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomNodeID(t *testing.T, seed string) NodeID {
	t.Helper()
	return NodeID(HashBlake3([]byte("node-id-seed"), []byte(seed)))
}

func TestRoutingTableClosestConverges(t *testing.T) {
	self := randomNodeID(t, "self")
	rt := NewRoutingTable(self)

	var ids []NodeID
	for i := 0; i < 50; i++ {
		id := randomNodeID(t, string(rune('a'+i)))
		ids = append(ids, id)
		rt.Observe(id)
	}

	target := randomNodeID(t, "target")
	closest := rt.Closest(target, KBucketSize)
	assert.LessOrEqual(t, len(closest), KBucketSize)

	// The result must be ordered by ascending XOR distance to target,
	// checked pairwise over consecutive entries of the result set.
	for i := 1; i < len(closest); i++ {
		d0 := XORDistance(closest[i-1], target)
		d1 := XORDistance(closest[i], target)
		assert.True(t, d0.Less(d1) || d0 == d1)
	}
}

func TestPoWChallengeSolveAndVerify(t *testing.T) {
	target := randomNodeID(t, "candidate")
	now := time.Unix(1_700_000_000, 0)
	challenge := NewPoWChallenge(target, now)

	solution := SolvePoW(challenge)
	err := VerifyPoW(challenge, solution, now.Add(time.Second))
	require.NoError(t, err)
}

func TestPoWChallengeExpires(t *testing.T) {
	target := randomNodeID(t, "candidate-2")
	now := time.Unix(1_700_000_000, 0)
	challenge := NewPoWChallenge(target, now)
	solution := SolvePoW(challenge)

	err := VerifyPoW(challenge, solution, now.Add(PoWChallengeTimeout+time.Second))
	require.ErrorIs(t, err, ErrPoWExpired)
}

func TestDHTStoreFindRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dht")
	store, err := OpenDHTStore(dir)
	require.NoError(t, err)
	defer store.Close()

	key := HashBlake3([]byte("content-key"))
	rec := &DHTRecord{
		Key:       key,
		Value:     []byte("hello mesh"),
		Publisher: randomNodeID(t, "publisher"),
		StoredAt:  time.Unix(1_700_000_000, 0),
	}
	require.NoError(t, store.Put(rec))

	found, err := store.Find(key)
	require.NoError(t, err)
	assert.Equal(t, rec.Value, found.Value)
	assert.Equal(t, rec.Publisher, found.Publisher)

	_, err = store.Find(HashBlake3([]byte("missing-key")))
	assert.ErrorIs(t, err, ErrDHTKeyNotFound)
}
