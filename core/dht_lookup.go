package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DHTTransport is the capability a DHTClient needs from the network layer to
// reach a single peer directly: a request/response round trip over an
// already-authenticated UHP session. MeshRouter's gossip topics are for
// broadcast; point-to-point DHT traffic (find_node, find_value, store, ping)
// rides a separate unicast path that tests can fake without a real libp2p
// host (spec.md §4.6).
type DHTTransport interface {
	FindNode(ctx context.Context, peer NodeID, target NodeID) ([]NodeID, error)
	FindValue(ctx context.Context, peer NodeID, key Hash) ([]byte, []NodeID, error)
	StoreAt(ctx context.Context, peer NodeID, rec *DHTRecord) error
	Ping(ctx context.Context, peer NodeID) error
}

// Alpha is the Kademlia concurrency parameter: the number of peers queried
// in parallel at each hop of an iterative lookup (spec.md §4.6).
const Alpha = 3

// MaxLookupHops bounds find_value's iteration so a lookup over a keyspace
// with no matching value terminates instead of looping forever chasing
// closer-but-still-wrong peers.
const MaxLookupHops = 20

// ErrDHTStoreFailed is returned when none of the k closest peers accepted a
// store.
var ErrDHTStoreFailed = fmt.Errorf("core: dht store failed on all replicas")

// Degraded reports a store that placed fewer than ReplicationFactor
// replicas — neither a clean success nor a hard failure (spec.md §4.7
// "partial placement ... returns Degraded with the achieved replication
// count; the caller may retry later").
type Degraded struct {
	ReplicasAchieved int
	ReplicasWanted   int
}

func (d *Degraded) Error() string {
	return fmt.Sprintf("core: dht store degraded: %d/%d replicas placed", d.ReplicasAchieved, d.ReplicasWanted)
}

// ErrDHTNotFound is returned when find_value exhausts its hop budget without
// a peer returning the value.
var ErrDHTNotFound = fmt.Errorf("core: dht value not found")

// DHTClient drives the iterative Kademlia lookups over a RoutingTable and a
// DHTTransport, backed by a local DHTStore for records this node itself
// holds. Grounded on teacher `core/kademlia.go`'s FindNode/FindValue loop,
// regrounded on NodeID/DHTTransport and extended with the spec's
// quorum-store and bounded find_value semantics.
type DHTClient struct {
	self      NodeID
	table     *RoutingTable
	local     *DHTStore
	transport DHTTransport
}

// NewDHTClient builds a client over an already-populated routing table.
func NewDHTClient(self NodeID, table *RoutingTable, local *DHTStore, transport DHTTransport) *DHTClient {
	return &DHTClient{self: self, table: table, local: local, transport: transport}
}

// FindNode performs the standard iterative closest-node search: query Alpha
// of the currently-closest-known peers in parallel, merge their answers into
// the candidate set, and repeat until a round produces no peer closer than
// the best already seen (convergence) or MaxLookupHops is exhausted.
func (c *DHTClient) FindNode(ctx context.Context, target NodeID) ([]NodeID, error) {
	discovered := map[NodeID]bool{c.self: true}
	queried := map[NodeID]bool{}
	shortlist := c.table.Closest(target, KBucketSize)
	for _, id := range shortlist {
		discovered[id] = true
	}

	for hop := 0; hop < MaxLookupHops; hop++ {
		toQuery := pickAlpha(shortlist, queried, Alpha)
		if len(toQuery) == 0 {
			break
		}
		for _, id := range toQuery {
			queried[id] = true
		}
		results := c.queryNodesParallel(ctx, toQuery, target)

		bestBefore := closestOf(shortlist, target)
		for _, r := range results {
			for _, id := range r {
				if !discovered[id] {
					discovered[id] = true
					shortlist = append(shortlist, id)
				}
			}
		}
		shortlist = sortByDistance(shortlist, target)
		if len(shortlist) > KBucketSize {
			shortlist = shortlist[:KBucketSize]
		}
		bestAfter := closestOf(shortlist, target)
		if bestBefore != (NodeID{}) && bestAfter == bestBefore {
			break // no closer peer discovered this round: converged
		}
	}
	return shortlist, nil
}

// FindValue queries Alpha peers at each hop for key until one returns a
// value or the closest-known set stops improving, at which point it returns
// ErrDHTNotFound. A local hit short-circuits the network search entirely.
func (c *DHTClient) FindValue(ctx context.Context, key Hash) ([]byte, error) {
	if rec, err := c.local.Find(key); err == nil {
		return rec.Value, nil
	}

	target := NodeID(key)
	discovered := map[NodeID]bool{c.self: true}
	queried := map[NodeID]bool{}
	shortlist := c.table.Closest(target, KBucketSize)
	for _, id := range shortlist {
		discovered[id] = true
	}

	for hop := 0; hop < MaxLookupHops; hop++ {
		toQuery := pickAlpha(shortlist, queried, Alpha)
		if len(toQuery) == 0 {
			break
		}
		for _, id := range toQuery {
			queried[id] = true
		}

		type hit struct {
			value []byte
			found bool
		}
		var mu sync.Mutex
		var wg sync.WaitGroup
		var result hit
		newPeers := make(map[NodeID]bool)

		for _, peer := range toQuery {
			peer := peer
			wg.Add(1)
			go func() {
				defer wg.Done()
				val, closer, err := c.transport.FindValue(ctx, peer, key)
				mu.Lock()
				defer mu.Unlock()
				if err == nil && val != nil && !result.found {
					result = hit{value: val, found: true}
				}
				for _, id := range closer {
					newPeers[id] = true
				}
			}()
		}
		wg.Wait()

		if result.found {
			return result.value, nil
		}

		bestBefore := closestOf(shortlist, target)
		for id := range newPeers {
			if !discovered[id] {
				discovered[id] = true
				shortlist = append(shortlist, id)
			}
		}
		shortlist = sortByDistance(shortlist, target)
		if len(shortlist) > KBucketSize {
			shortlist = shortlist[:KBucketSize]
		}
		if bestBefore != (NodeID{}) && closestOf(shortlist, target) == bestBefore {
			break
		}
	}
	return nil, ErrDHTNotFound
}

// Store writes rec to its own local store and replicates it to the
// ReplicationFactor closest live peers in parallel, requiring at least one
// success (spec.md §4.6 "writes proceed in parallel; at least one success is
// required, else StoreFailed"). A success short of ReplicationFactor
// replicas returns *Degraded rather than nil (spec.md §4.7), reporting how
// many replicas were actually placed so the caller can decide whether to
// retry.
func (c *DHTClient) Store(ctx context.Context, rec *DHTRecord) error {
	if err := c.local.Put(rec); err != nil {
		return fmt.Errorf("core: dht local store: %w", err)
	}

	target := NodeID(rec.Key)
	peers := c.table.Closest(target, ReplicationFactor)
	if len(peers) == 0 {
		return nil // sole node in the network: local write already succeeded
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for _, peer := range peers {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.transport.StoreAt(ctx, peer, rec); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes == 0 {
		return ErrDHTStoreFailed
	}
	if successes < ReplicationFactor {
		return &Degraded{ReplicasAchieved: successes, ReplicasWanted: ReplicationFactor}
	}
	return nil
}

// Ping checks liveness of peer, touching the routing table on success.
func (c *DHTClient) Ping(ctx context.Context, peer NodeID) error {
	if err := c.transport.Ping(ctx, peer); err != nil {
		return err
	}
	c.table.Observe(peer)
	return nil
}

func (c *DHTClient) queryNodesParallel(ctx context.Context, peers []NodeID, target NodeID) [][]NodeID {
	results := make([][]NodeID, len(peers))
	var wg sync.WaitGroup
	for i, peer := range peers {
		i, peer := i, peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			found, err := c.transport.FindNode(ctx, peer, target)
			if err == nil {
				results[i] = found
			}
		}()
	}
	wg.Wait()
	return results
}

func pickAlpha(shortlist []NodeID, queried map[NodeID]bool, alpha int) []NodeID {
	var out []NodeID
	for _, id := range shortlist {
		if queried[id] {
			continue
		}
		out = append(out, id)
		if len(out) == alpha {
			break
		}
	}
	return out
}

func sortByDistance(ids []NodeID, target NodeID) []NodeID {
	uniq := make(map[NodeID]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !uniq[id] {
			uniq[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return XORDistance(out[i], target).Less(XORDistance(out[j], target))
	})
	return out
}

func closestOf(ids []NodeID, target NodeID) NodeID {
	if len(ids) == 0 {
		return NodeID{}
	}
	best := ids[0]
	bestDist := XORDistance(best, target)
	for _, id := range ids[1:] {
		if d := XORDistance(id, target); d.Less(bestDist) {
			best, bestDist = id, d
		}
	}
	return best
}

// lookupDeadline is a 10s lookup timeout constant. Nothing in this package
// applies it: FindNode, FindValue and Store run under whatever deadline the
// caller's context carries, and without one they have no time limit.
const lookupDeadline = 10 * time.Second
