package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeshConnectionAuthorizeBootstrapMode(t *testing.T) {
	c := &MeshConnection{BootstrapMode: true}
	assert.NoError(t, c.Authorize(RequestHeaders))
	assert.NoError(t, c.Authorize(RequestSnapshot))
	assert.ErrorIs(t, c.Authorize(RequestFullQuery), ErrBootstrapUnauthorized)

	authed := &MeshConnection{BootstrapMode: false}
	assert.NoError(t, authed.Authorize(RequestFullQuery))
}

func TestConnectionTableBestRoutePrefersLowerCost(t *testing.T) {
	ct := NewConnectionTable(time.Minute, 10)
	slow := &MeshConnection{Peer: randomNodeID(t, "slow"), BandwidthMbps: 1, LatencyMS: 200, StabilityScore: 0.5}
	fast := &MeshConnection{Peer: randomNodeID(t, "fast"), BandwidthMbps: 100, LatencyMS: 5, StabilityScore: 0.99}
	ct.Upsert(slow)
	ct.Upsert(fast)

	best, ok := ct.BestRoute([]NodeID{slow.Peer, fast.Peer})
	require.True(t, ok)
	assert.Equal(t, fast.Peer, best.Peer)
}

func TestConnectionTableDedupWindow(t *testing.T) {
	ct := NewConnectionTable(time.Minute, 10)
	var id [16]byte
	copy(id[:], []byte("broadcast-id-001"))

	now := time.Unix(1_700_000_000, 0)
	assert.False(t, ct.SeenAndMark(id, now), "first sighting is not a duplicate")
	assert.True(t, ct.SeenAndMark(id, now.Add(time.Second)), "second sighting within window is a duplicate")
	assert.False(t, ct.SeenAndMark(id, now.Add(2*time.Minute)), "sighting after window expiry is fresh again")
}

func TestConnectionTableForwardingCap(t *testing.T) {
	ct := NewConnectionTable(time.Minute, 2)
	peer := randomNodeID(t, "relay")
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, ct.AllowForward(peer, now))
	assert.True(t, ct.AllowForward(peer, now))
	assert.False(t, ct.AllowForward(peer, now), "third forward within the same minute is capped")
	assert.True(t, ct.AllowForward(peer, now.Add(time.Minute)), "new minute resets the cap")
}
