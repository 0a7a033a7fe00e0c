package core

import (
	"fmt"
	"sync"
	"time"
)

// MeshConnection tracks one peer link's quality metrics and trust state,
// the bookkeeping MeshRouter consults to pick forwarding routes and to gate
// bootstrap-only peers (spec.md §4.5).
type MeshConnection struct {
	Peer             NodeID
	Protocol         LinkKind
	SignalStrength   float64
	BandwidthMbps    float64
	LatencyMS        float64
	ConnectedAt      time.Time
	DataTransferred  uint64
	TokensEarned     uint64
	StabilityScore   float64 // in [0,1]; higher is more stable
	Authenticated    bool
	QuantumSecure    bool
	TrustScore       float64
	BootstrapMode    bool // unauthenticated, headers/snapshot requests only
}

// ErrBootstrapUnauthorized is returned when a bootstrap_mode connection
// requests anything beyond headers/snapshot retrieval (spec.md §4.5).
var ErrBootstrapUnauthorized = fmt.Errorf("core: bootstrap-mode connection may only request headers or snapshots")

// RequestKind enumerates what a peer is asking the mesh router for, used to
// enforce the bootstrap_mode restriction.
type RequestKind int

const (
	RequestHeaders RequestKind = iota
	RequestSnapshot
	RequestFullQuery
)

// Authorize rejects any request kind other than headers/snapshot when the
// connection is bootstrap_mode.
func (c *MeshConnection) Authorize(kind RequestKind) error {
	if c.BootstrapMode && kind != RequestHeaders && kind != RequestSnapshot {
		return ErrBootstrapUnauthorized
	}
	return nil
}

// routeCostWeights are the α/β/γ coefficients in the route-cost formula
// (spec.md §4.5): cost = α/bandwidth + β·latency + γ·(1−stability).
// Tunable like the consensus weights in SPEC_FULL.md §D; these defaults
// favor bandwidth slightly over latency and weight stability least, mirror
// the ConsensusWeights rationale of rewarding sustained good behavior over
// momentary metrics.
const (
	routeCostAlpha = 0.5
	routeCostBeta  = 0.3
	routeCostGamma = 0.2
)

// RouteCost computes the forwarding cost of c per spec.md §4.5. Lower is
// better.
func (c *MeshConnection) RouteCost() float64 {
	bw := c.BandwidthMbps
	if bw <= 0 {
		bw = 0.001 // avoid division by zero for a just-opened, unmeasured link
	}
	return routeCostAlpha/bw + routeCostBeta*c.LatencyMS + routeCostGamma*(1-c.StabilityScore)
}

// ConnectionTable is MeshRouter's per-peer connection bookkeeping, plus the
// bounded broadcast-dedup cache and per-peer forwarding-rate cap described
// in spec.md §4.5.
type ConnectionTable struct {
	mu          sync.Mutex
	conns       map[NodeID]*MeshConnection
	seenIDs     map[[16]byte]time.Time
	seenWindow  time.Duration
	fwdCounts   map[NodeID]int
	fwdWindowAt time.Time
	fwdCap      int
}

// NewConnectionTable builds an empty table. seenWindow bounds how long a
// broadcast id is remembered for dedup; fwdCap bounds forwards per peer per
// minute.
func NewConnectionTable(seenWindow time.Duration, fwdCap int) *ConnectionTable {
	return &ConnectionTable{
		conns:      make(map[NodeID]*MeshConnection),
		seenIDs:    make(map[[16]byte]time.Time),
		seenWindow: seenWindow,
		fwdCounts:  make(map[NodeID]int),
		fwdCap:     fwdCap,
	}
}

// Upsert records or updates a connection's metrics.
func (ct *ConnectionTable) Upsert(c *MeshConnection) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.conns[c.Peer] = c
}

// Get returns the connection for peer, if tracked.
func (ct *ConnectionTable) Get(peer NodeID) (*MeshConnection, bool) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	c, ok := ct.conns[peer]
	return c, ok
}

// BestRoute returns the tracked connection with the lowest RouteCost among
// candidates, ties broken by lower NodeID (spec.md §4.5).
func (ct *ConnectionTable) BestRoute(candidates []NodeID) (*MeshConnection, bool) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	var best *MeshConnection
	for _, id := range candidates {
		c, ok := ct.conns[id]
		if !ok {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		cc, bc := c.RouteCost(), best.RouteCost()
		if cc < bc || (cc == bc && Hash(c.Peer).Less(Hash(best.Peer))) {
			best = c
		}
	}
	return best, best != nil
}

// SeenAndMark reports whether a broadcast message id has already been seen
// within the dedup window and, if not, records it as seen now.
func (ct *ConnectionTable) SeenAndMark(id [16]byte, now time.Time) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	for k, t := range ct.seenIDs {
		if now.Sub(t) > ct.seenWindow {
			delete(ct.seenIDs, k)
		}
	}
	if _, ok := ct.seenIDs[id]; ok {
		return true
	}
	ct.seenIDs[id] = now
	return false
}

// AllowForward reports whether peer is still under its per-minute forwarding
// cap, resetting the window as wall-clock minutes roll over.
func (ct *ConnectionTable) AllowForward(peer NodeID, now time.Time) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if now.Sub(ct.fwdWindowAt) >= time.Minute {
		ct.fwdCounts = make(map[NodeID]int)
		ct.fwdWindowAt = now
	}
	if ct.fwdCounts[peer] >= ct.fwdCap {
		return false
	}
	ct.fwdCounts[peer]++
	return true
}
