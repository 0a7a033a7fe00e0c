package core

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

// Kademlia tuning constants (spec.md §4.3).
const (
	KBucketSize        = 20
	ReplicationFactor  = 3
	PoWChallengeBits    = 18 // leading zero bits required of the PoW solution
	PoWChallengeTimeout = 10 * time.Second
)

// KBucket holds up to KBucketSize peers at a given XOR-distance range,
// ordered least-recently-seen first so stale entries are evicted before
// fresh ones (classic Kademlia LRU bucket policy).
type KBucket struct {
	peers []NodeID
}

func (b *KBucket) touch(id NodeID) {
	for i, p := range b.peers {
		if p == id {
			b.peers = append(b.peers[:i], b.peers[i+1:]...)
			b.peers = append(b.peers, id)
			return
		}
	}
	if len(b.peers) >= KBucketSize {
		b.peers = b.peers[1:]
	}
	b.peers = append(b.peers, id)
}

// RoutingTable is a Kademlia routing table of 256 k-buckets, one per bit of
// XOR distance from self. Grounded on teacher `core/kademlia.go`, whose
// bucket/distance machinery this reuses near-verbatim in shape while
// retargeting it at the spec's NodeID/PeerRegistry types.
type RoutingTable struct {
	self    NodeID
	buckets [HashSize * 8]KBucket
	mu      sync.Mutex
}

// NewRoutingTable creates an empty table centered on self.
func NewRoutingTable(self NodeID) *RoutingTable {
	return &RoutingTable{self: self}
}

func bucketIndex(self, other NodeID) int {
	d := XORDistance(self, other)
	for byteIdx := 0; byteIdx < HashSize; byteIdx++ {
		if d[byteIdx] == 0 {
			continue
		}
		for bit := 7; bit >= 0; bit-- {
			if d[byteIdx]&(1<<uint(bit)) != 0 {
				return byteIdx*8 + (7 - bit)
			}
		}
	}
	return HashSize*8 - 1
}

// Observe records contact with a peer, placing it in the appropriate bucket.
func (t *RoutingTable) Observe(id NodeID) {
	if id == t.self {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := bucketIndex(t.self, id)
	t.buckets[idx].touch(id)
}

// Closest returns up to n peers closest to target by XOR distance, the
// primitive used by both FindNode and content-provider lookups.
func (t *RoutingTable) Closest(target NodeID, n int) []NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()

	type candidate struct {
		id   NodeID
		dist Hash
	}
	var all []candidate
	for i := range t.buckets {
		for _, p := range t.buckets[i].peers {
			all = append(all, candidate{id: p, dist: XORDistance(p, target)})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].dist.Less(all[j].dist) })
	if len(all) > n {
		all = all[:n]
	}
	out := make([]NodeID, len(all))
	for i, c := range all {
		out[i] = c.id
	}
	return out
}

// PoWChallenge is the Sybil-resistance gate applied before a newly
// discovered peer is admitted into the routing table: the peer must find a
// nonce such that Blake3(node_id ‖ challenge ‖ nonce) has at least
// PoWChallengeBits leading zero bits (spec.md §4.3 "Sybil-resistant PoW
// challenge on discovery"). Grounded on teacher `core/kademlia.go`'s
// discovery admission hook, which this replaces with a concrete PoW gate —
// the teacher repo has no PoW of its own to adapt, so this is a fresh
// addition in its idiom (closed, typed errors; Blake3 for the work
// function to match the rest of the hashing surface).
type PoWChallenge struct {
	Target NodeID
	Nonce  []byte
	Issued time.Time
}

// NewPoWChallenge issues a fresh challenge for a candidate node.
func NewPoWChallenge(target NodeID, now time.Time) *PoWChallenge {
	return &PoWChallenge{Target: target, Nonce: target.Bytes(), Issued: now}
}

// ErrPoWInsufficient is returned when a solution fails the leading-zero-bit
// threshold.
var ErrPoWInsufficient = fmt.Errorf("core: proof-of-work insufficient")

// ErrPoWExpired is returned when a solution arrives after the challenge
// window closed.
var ErrPoWExpired = fmt.Errorf("core: proof-of-work challenge expired")

// SolvePoW performs the brute-force search a joining node must do locally;
// exposed so tests and the bootstrap client share one implementation.
func SolvePoW(c *PoWChallenge) uint64 {
	var ctr uint64
	for {
		if leadingZeroBits(powDigest(c, ctr)) >= PoWChallengeBits {
			return ctr
		}
		ctr++
	}
}

// VerifyPoW checks a candidate's solution against the challenge and timeout.
func VerifyPoW(c *PoWChallenge, solution uint64, now time.Time) error {
	if now.Sub(c.Issued) > PoWChallengeTimeout {
		return ErrPoWExpired
	}
	if leadingZeroBits(powDigest(c, solution)) < PoWChallengeBits {
		return ErrPoWInsufficient
	}
	return nil
}

func powDigest(c *PoWChallenge, ctr uint64) Hash {
	var ctrBytes [8]byte
	binary.BigEndian.PutUint64(ctrBytes[:], ctr)
	return HashBlake3(c.Target.Bytes(), c.Nonce, ctrBytes[:])
}

func leadingZeroBits(h Hash) int {
	count := 0
	for _, b := range h {
		if b == 0 {
			count += 8
			continue
		}
		for bit := 7; bit >= 0; bit-- {
			if b&(1<<uint(bit)) != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// DHTRecord is a value stored in the DHT's content-addressed key-value
// store (block headers, provider records, storage-proof pointers).
type DHTRecord struct {
	Key       Hash
	Value     []byte
	Publisher NodeID
	StoredAt  time.Time
}

// DHTStore is the persistent goleveldb-backed key-value store each node
// contributes to the DHT (spec.md §4.3 "store/find round-trip"). Grounded
// on teacher `core/kademlia.go`'s in-memory record map, made durable.
type DHTStore struct {
	db *leveldb.DB
	mu sync.RWMutex
}

// OpenDHTStore opens (creating if absent) a goleveldb store at path.
func OpenDHTStore(path string) (*DHTStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("core: open dht store: %w", err)
	}
	return &DHTStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *DHTStore) Close() error { return s.db.Close() }

// Put stores a record under its key.
func (s *DHTStore) Put(rec *DHTRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := encodeDHTRecord(rec)
	if err != nil {
		return err
	}
	if err := s.db.Put(rec.Key[:], b, nil); err != nil {
		return fmt.Errorf("core: dht put: %w", err)
	}
	return nil
}

// ErrDHTKeyNotFound is returned when Find has no local record for a key.
var ErrDHTKeyNotFound = fmt.Errorf("core: dht key not found")

// Find retrieves the record stored locally under key, if any.
func (s *DHTStore) Find(key Hash) (*DHTRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.db.Get(key[:], nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrDHTKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("core: dht get: %w", err)
	}
	return decodeDHTRecord(key, b)
}

func encodeDHTRecord(rec *DHTRecord) ([]byte, error) {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(rec.StoredAt.Unix()))
	return concatBytes(rec.Publisher.Bytes(), ts, rec.Value), nil
}

func decodeDHTRecord(key Hash, b []byte) (*DHTRecord, error) {
	if len(b) < HashSize+8 {
		return nil, fmt.Errorf("core: malformed dht record")
	}
	var pub NodeID
	copy(pub[:], b[:HashSize])
	storedAt := time.Unix(int64(binary.BigEndian.Uint64(b[HashSize:HashSize+8])), 0)
	value := append([]byte(nil), b[HashSize+8:]...)
	return &DHTRecord{Key: key, Value: value, Publisher: pub, StoredAt: storedAt}, nil
}
