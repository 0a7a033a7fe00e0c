package core

import (
	"fmt"
	"time"

	"meshchain/core/zk"
)

// BlockHeader is the compact, DHT-indexable summary of a block — the unit
// light clients sync without downloading full block bodies (spec.md §4.11
// "state bootstrap / recursive proofs").
type BlockHeader struct {
	Height         uint64
	PrevHash       Hash
	TxRoot         Hash
	StateRoot      Hash
	ProposerID     NodeID
	Timestamp      time.Time
	RecursiveProof *zk.Proof // aggregated validity proof of every ancestor block back to genesis
	Sig            Signature
}

func (h *BlockHeader) encodeForSigning() []byte {
	ts := []byte(h.Timestamp.UTC().Format(time.RFC3339Nano))
	return concatBytes(
		uint64ToBytes(h.Height),
		h.PrevHash[:],
		h.TxRoot[:],
		h.StateRoot[:],
		h.ProposerID.Bytes(),
		ts,
	)
}

// Hash returns the block header's content hash (also its identity in the
// DHT and in PrevHash chaining).
func (h *BlockHeader) Hash() Hash {
	return HashBlake3(h.encodeForSigning(), h.Sig.Bytes)
}

// Block pairs a header with its full transaction set.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// NewBlock assembles a block from transactions, computing the Merkle tx
// root and signing the header. stateRoot is supplied by the caller (the
// consensus engine, after applying transactions to its state model).
func NewBlock(height uint64, prevHash Hash, proposer NodeID, txs []*Transaction, stateRoot Hash, recursiveProof *zk.Proof, sk *PrivateKey, now time.Time) (*Block, error) {
	leaves := make([]Hash, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.ID
	}
	txRoot, _ := BuildMerkleTree(leaves)

	h := BlockHeader{
		Height:         height,
		PrevHash:       prevHash,
		TxRoot:         txRoot,
		StateRoot:      stateRoot,
		ProposerID:     proposer,
		Timestamp:      now,
		RecursiveProof: recursiveProof,
	}
	sig, err := Sign(sk, h.encodeForSigning())
	if err != nil {
		return nil, fmt.Errorf("core: sign block header: %w", err)
	}
	h.Sig = sig

	return &Block{Header: h, Transactions: txs}, nil
}

// ErrInvalidBlockLinkage is returned when a block's declared PrevHash does
// not match the actual hash of its claimed predecessor.
var ErrInvalidBlockLinkage = fmt.Errorf("core: block does not link to claimed predecessor")

// ErrInvalidBlockSig is returned when a block header's signature does not
// verify against its proposer's key.
var ErrInvalidBlockSig = fmt.Errorf("core: invalid block header signature")

// ErrInvalidTxRoot is returned when the declared TxRoot does not match the
// Merkle root of the block's actual transaction set.
var ErrInvalidTxRoot = fmt.Errorf("core: tx root does not match transaction set")

// ErrInvalidBlockHeight is returned when a block's declared height is not
// exactly one more than its claimed predecessor's.
var ErrInvalidBlockHeight = fmt.Errorf("core: block height does not follow predecessor")

// ErrBlockTimestampRegression is returned when a block's timestamp does not
// strictly advance past its predecessor's.
var ErrBlockTimestampRegression = fmt.Errorf("core: block timestamp does not advance past predecessor")

// ErrBlockTimestampSkew is returned when a block's timestamp lies further in
// the future than the allowed clock skew tolerance.
var ErrBlockTimestampSkew = fmt.Errorf("core: block timestamp exceeds allowed skew")

// ErrMissingRecursiveProof is returned when a non-genesis block carries no
// aggregated validity proof at all.
var ErrMissingRecursiveProof = fmt.Errorf("core: block missing recursive validity proof")

// ErrInvalidRecursiveProof is returned when a block's aggregated proof fails
// to verify against the supplied key set.
var ErrInvalidRecursiveProof = fmt.Errorf("core: block recursive proof failed verification")

// ValidateBlock checks height continuity, prev-hash linkage, timestamp
// monotonicity and skew, header signature, tx-root consistency, and that
// the aggregated recursive ZK proof verifies (spec.md §4.9, §8 "chain
// linkage" testable property: the recursive proof at height h must verify
// given height h-1's proof). prevHeader is nil only for the genesis block,
// which carries no recursive proof to check. It does not validate
// individual transaction signatures or state transitions — callers compose
// this with VerifyTransaction and the consensus engine's state-transition
// check.
func ValidateBlock(b *Block, prevHeader *BlockHeader, proposerPK *PublicKey, ks *zk.KeySet, now time.Time) error {
	if prevHeader != nil {
		if b.Header.Height != prevHeader.Height+1 {
			return ErrInvalidBlockHeight
		}
		if b.Header.PrevHash != prevHeader.Hash() {
			return ErrInvalidBlockLinkage
		}
		if !b.Header.Timestamp.After(prevHeader.Timestamp) {
			return ErrBlockTimestampRegression
		}
	}
	if b.Header.Timestamp.Sub(now) > DefaultAllowedSkew {
		return ErrBlockTimestampSkew
	}
	if !Verify(proposerPK, b.Header.encodeForSigning(), b.Header.Sig) {
		return ErrInvalidBlockSig
	}
	leaves := make([]Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		leaves[i] = tx.ID
	}
	root, _ := BuildMerkleTree(leaves)
	if root != b.Header.TxRoot {
		return ErrInvalidTxRoot
	}
	if prevHeader != nil {
		if b.Header.RecursiveProof == nil {
			return ErrMissingRecursiveProof
		}
		if err := zk.Verify(ks, b.Header.RecursiveProof); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecursiveProof, err)
		}
	}
	return nil
}
