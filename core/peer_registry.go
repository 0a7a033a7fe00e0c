package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

// PeerStatus tracks the lifecycle of a known peer in the registry.
type PeerStatus uint8

const (
	PeerDiscovered PeerStatus = iota
	PeerHandshaking
	PeerActive
	PeerStale
	PeerBanned
)

// PeerRecord is the durable view of a mesh peer: its identity, last known
// address hints, reputation score, and lifecycle status.
type PeerRecord struct {
	Identity   Identity
	Addresses  []string
	Status     PeerStatus
	Reputation float64
	LastSeen   time.Time
	BannedAt   *time.Time
	BanReason  string
}

// PeerRegistry is the durable, goleveldb-backed store of everything known
// about peers this node has encountered — bootstrap peers, DHT-discovered
// peers, and active mesh-link neighbors. Grounded on teacher
// `core/peer_management.go`'s in-memory peer table, generalized to a
// persistent store so peer reputation survives restarts (spec.md §4.4).
type PeerRegistry struct {
	db *leveldb.DB
	mu sync.RWMutex
}

// OpenPeerRegistry opens (creating if absent) a goleveldb store at path.
func OpenPeerRegistry(path string) (*PeerRegistry, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("core: open peer registry: %w", err)
	}
	return &PeerRegistry{db: db}, nil
}

// Close releases the underlying database handle.
func (r *PeerRegistry) Close() error { return r.db.Close() }

func peerKey(id NodeID) []byte {
	return append([]byte("peer/"), id.Bytes()...)
}

// Upsert inserts or replaces a peer record.
func (r *PeerRegistry) Upsert(rec *PeerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("core: marshal peer record: %w", err)
	}
	if err := r.db.Put(peerKey(rec.Identity.ID), b, nil); err != nil {
		return fmt.Errorf("core: store peer record: %w", err)
	}
	return nil
}

// ErrPeerNotFound is returned when no record exists for a given NodeID.
var ErrPeerNotFound = fmt.Errorf("core: peer not found")

// Get loads the record for a peer, if any.
func (r *PeerRegistry) Get(id NodeID) (*PeerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, err := r.db.Get(peerKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrPeerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("core: load peer record: %w", err)
	}
	var rec PeerRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("core: unmarshal peer record: %w", err)
	}
	return &rec, nil
}

// All returns every stored peer record. Used by the DHT bootstrap routine
// and by diagnostics; not meant for hot-path lookups.
func (r *PeerRegistry) All() ([]*PeerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iter := r.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []*PeerRecord
	for iter.Next() {
		var rec PeerRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("core: iterate peer records: %w", err)
	}
	return out, nil
}

// Ban marks a peer as banned with a reason and the ban time (spec.md §7
// misbehavior handling). It records the status only; the handshake
// functions do not consult the registry.
func (r *PeerRegistry) Ban(id NodeID, reason string, now time.Time) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}
	rec.Status = PeerBanned
	rec.BannedAt = &now
	rec.BanReason = reason
	return r.Upsert(rec)
}

// AdjustReputation nudges a peer's reputation score by delta, clamped to
// [0, 1].
func (r *PeerRegistry) AdjustReputation(id NodeID, delta float64, now time.Time) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}
	rec.Reputation += delta
	if rec.Reputation < 0 {
		rec.Reputation = 0
	}
	if rec.Reputation > 1 {
		rec.Reputation = 1
	}
	rec.LastSeen = now
	return r.Upsert(rec)
}
