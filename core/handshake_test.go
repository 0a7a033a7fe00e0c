package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestNonceCache(t *testing.T) *NonceCache {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "nonces")
	nc, err := OpenNonceCache(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	return nc
}

func TestHandshakeRoundTrip(t *testing.T) {
	initPK, initSK, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	respPK, respSK, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)

	ctx := &HandshakeContext{Epoch: 1, AllowedSkew: DefaultAllowedSkew, Nonces: openTestNonceCache(t)}
	now := time.Unix(1_700_000_000, 0)

	initID := DeriveNodeIDForKey(initPK, "primary")
	respID := DeriveNodeIDForKey(respPK, "primary")

	hello, err := BuildHello(ctx, initID, initPK, initSK, HashBlake3([]byte("nonce-1")), []string{"validator"}, now)
	require.NoError(t, err)

	resp, sharedSecretResponder, err := AcceptHello(ctx, hello, respID, respPK, respSK, HashBlake3([]byte("nonce-2")), []string{"storage-provider"}, now)
	require.NoError(t, err)

	fin, sessionInitiator, err := CompleteHandshake(ctx, hello, resp, initSK)
	require.NoError(t, err)

	sessionResponder, err := FinalizeResponder(hello, resp, fin, sharedSecretResponder, initPK)
	require.NoError(t, err)

	require.Equal(t, sessionInitiator.Key, sessionResponder.Key, "both sides must derive the same session key")
	require.Equal(t, sessionInitiator.Transcript, sessionResponder.Transcript)
}

func TestHandshakeReplayRejected(t *testing.T) {
	initPK, initSK, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	respPK, respSK, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)

	ctx := &HandshakeContext{Epoch: 1, AllowedSkew: DefaultAllowedSkew, Nonces: openTestNonceCache(t)}
	now := time.Unix(1_700_000_000, 0)
	initID := DeriveNodeIDForKey(initPK, "primary")
	respID := DeriveNodeIDForKey(respPK, "primary")

	nonce := HashBlake3([]byte("replayed-nonce"))
	hello, err := BuildHello(ctx, initID, initPK, initSK, nonce, nil, now)
	require.NoError(t, err)

	_, _, err = AcceptHello(ctx, hello, respID, respPK, respSK, HashBlake3([]byte("r1")), nil, now)
	require.NoError(t, err)

	// Same hello (same nonce) replayed against the same context, and so the
	// same underlying nonce cache, must be rejected.
	_, _, err = AcceptHello(ctx, hello, respID, respPK, respSK, HashBlake3([]byte("r2")), nil, now)
	require.ErrorIs(t, err, ErrReplayedNonce)
}

func TestHandshakeRejectsVersionMismatch(t *testing.T) {
	initPK, initSK, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	respPK, respSK, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)

	ctx := &HandshakeContext{Epoch: 1, AllowedSkew: DefaultAllowedSkew, Nonces: openTestNonceCache(t)}
	now := time.Unix(1_700_000_000, 0)
	initID := DeriveNodeIDForKey(initPK, "primary")
	respID := DeriveNodeIDForKey(respPK, "primary")

	hello, err := BuildHello(ctx, initID, initPK, initSK, HashBlake3([]byte("version-nonce")), nil, now)
	require.NoError(t, err)
	hello.ProtocolVersion = CurrentProtocolVersion + 1

	_, _, err = AcceptHello(ctx, hello, respID, respPK, respSK, HashBlake3([]byte("r")), nil, now)
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestHandshakeReplayRejectedAcrossRestart(t *testing.T) {
	dir := filepath.Join(os.TempDir(), "meshchain-nonce-restart-test")
	_ = os.RemoveAll(dir)
	defer os.RemoveAll(dir)

	nc, err := OpenNonceCache(dir)
	require.NoError(t, err)

	epoch := uint64(7)
	nonce := HashBlake3([]byte("persisted-nonce"))
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, nc.CheckAndStore(epoch, nonce, now))
	require.NoError(t, nc.Close())

	// Simulate a node restart: reopen the same on-disk store.
	nc2, err := OpenNonceCache(dir)
	require.NoError(t, err)
	defer nc2.Close()

	err = nc2.CheckAndStore(epoch, nonce, now)
	require.ErrorIs(t, err, ErrReplayedNonce)
}

func TestHandshakeRejectsClockSkew(t *testing.T) {
	initPK, initSK, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	respPK, respSK, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)

	ctx := &HandshakeContext{Epoch: 1, AllowedSkew: time.Second, Nonces: openTestNonceCache(t)}
	initID := DeriveNodeIDForKey(initPK, "primary")
	respID := DeriveNodeIDForKey(respPK, "primary")

	helloTime := time.Unix(1_700_000_000, 0)
	hello, err := BuildHello(ctx, initID, initPK, initSK, HashBlake3([]byte("skew-nonce")), nil, helloTime)
	require.NoError(t, err)

	acceptTime := helloTime.Add(time.Hour)
	_, _, err = AcceptHello(ctx, hello, respID, respPK, respSK, HashBlake3([]byte("r")), nil, acceptTime)
	require.ErrorIs(t, err, ErrHandshakeSkew)
}
