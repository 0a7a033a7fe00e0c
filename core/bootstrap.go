package core

import (
	"fmt"

	"meshchain/core/zk"
)

// BootstrapCheckpoint is what a light client fetches instead of full chain
// history: the latest header plus a recursive proof attesting that every
// ancestor block back to genesis was valid (spec.md §4.11 "state bootstrap
// / recursive proofs for light-client sync without full history
// download").
type BootstrapCheckpoint struct {
	Header         BlockHeader
	RecursiveProof *zk.Proof
}

// ErrCheckpointProofInvalid is returned when a checkpoint's recursive
// proof fails verification — the light client must reject the checkpoint
// and fall back to a different bootstrap peer.
var ErrCheckpointProofInvalid = fmt.Errorf("core: bootstrap checkpoint recursive proof invalid")

// VerifyCheckpoint validates a checkpoint without requiring any block
// history: it checks the header's own signature and that the recursive
// proof verifies against ks, whose public statement is the claim "every
// block from genesis to this header applied valid state transitions."
func VerifyCheckpoint(cp *BootstrapCheckpoint, proposerPK *PublicKey, ks *zk.KeySet) error {
	if !Verify(proposerPK, cp.Header.encodeForSigning(), cp.Header.Sig) {
		return ErrInvalidBlockSig
	}
	if err := zk.Verify(ks, cp.RecursiveProof); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointProofInvalid, err)
	}
	return nil
}

// LightClientState is the minimal state a light client carries after a
// successful bootstrap: just the verified checkpoint and a rolling window
// of subsequent headers it has chain-linked to it, never full block
// bodies.
type LightClientState struct {
	Checkpoint    *BootstrapCheckpoint
	RecentHeaders []BlockHeader
}

// AppendHeader chain-links a newly received header onto the light client's
// view, rejecting anything that doesn't connect to the current head.
func (lc *LightClientState) AppendHeader(h BlockHeader) error {
	head := lc.Checkpoint.Header
	if n := len(lc.RecentHeaders); n > 0 {
		head = lc.RecentHeaders[n-1]
	}
	if h.PrevHash != head.Hash() {
		return ErrInvalidBlockLinkage
	}
	lc.RecentHeaders = append(lc.RecentHeaders, h)
	return nil
}
