package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshchain/core/zk"
)

func TestVerifyCheckpointAcceptsValidRecursiveProof(t *testing.T) {
	pub, priv, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	defer priv.Destroy()

	ks, err := zk.Setup(zk.CircuitStateTransition, &zk.StateTransitionCircuit{})
	require.NoError(t, err)
	proof, err := zk.Prove(ks, &zk.StateTransitionCircuit{PrevStateRoot: 10, NextStateRoot: 40, BatchDigest: 3})
	require.NoError(t, err)

	header := BlockHeader{Height: 63, Timestamp: time.Unix(1_700_000_000, 0)}
	sig, err := Sign(priv, header.encodeForSigning())
	require.NoError(t, err)
	header.Sig = sig

	cp := &BootstrapCheckpoint{Header: header, RecursiveProof: proof}
	require.NoError(t, VerifyCheckpoint(cp, pub, ks))
}

func TestVerifyCheckpointRejectsBadSignature(t *testing.T) {
	pub, priv, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	defer priv.Destroy()
	otherPub, otherPriv, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	defer otherPriv.Destroy()

	ks, err := zk.Setup(zk.CircuitStateTransition, &zk.StateTransitionCircuit{})
	require.NoError(t, err)
	proof, err := zk.Prove(ks, &zk.StateTransitionCircuit{PrevStateRoot: 10, NextStateRoot: 40, BatchDigest: 3})
	require.NoError(t, err)

	header := BlockHeader{Height: 63, Timestamp: time.Unix(1_700_000_000, 0)}
	sig, err := Sign(otherPriv, header.encodeForSigning())
	require.NoError(t, err)
	header.Sig = sig

	cp := &BootstrapCheckpoint{Header: header, RecursiveProof: proof}
	err = VerifyCheckpoint(cp, pub, ks)
	assert.ErrorIs(t, err, ErrInvalidBlockSig)
	_ = otherPub
}

func TestLightClientAppendHeaderRequiresChainLinkage(t *testing.T) {
	genesis := BlockHeader{Height: 0, Timestamp: time.Unix(1_700_000_000, 0)}
	lc := &LightClientState{Checkpoint: &BootstrapCheckpoint{Header: genesis}}

	linked := BlockHeader{Height: 1, PrevHash: genesis.Hash(), Timestamp: time.Unix(1_700_000_060, 0)}
	require.NoError(t, lc.AppendHeader(linked))
	assert.Len(t, lc.RecentHeaders, 1)

	unlinked := BlockHeader{Height: 2, PrevHash: HashBlake3([]byte("wrong")), Timestamp: time.Unix(1_700_000_120, 0)}
	err := lc.AppendHeader(unlinked)
	assert.ErrorIs(t, err, ErrInvalidBlockLinkage)
}
