package core

import (
	"fmt"
	"sync"
)

// VoteKind distinguishes BFT vote phases.
type VoteKind uint8

const (
	VotePrepare VoteKind = iota
	VoteCommit
)

// Vote is a validator's signed attestation to a block at a given height
// and round (spec.md §4.9 "hybrid PoS/PoStorage/PoUsefulWork BFT engine").
type Vote struct {
	Height    uint64
	Round     uint64
	Kind      VoteKind
	BlockHash Hash
	Validator NodeID
	Sig       []byte // BLS signature, aggregable via core/bls.go
}

func (v *Vote) encodeForSigning() []byte {
	return concatBytes(
		uint64ToBytes(v.Height),
		uint64ToBytes(v.Round),
		[]byte{byte(v.Kind)},
		v.BlockHash[:],
		v.Validator.Bytes(),
	)
}

// QuorumTracker accumulates weighted votes per (height, round, kind,
// block_hash) and reports when the accumulated weight crosses two-thirds
// of total active validator weight — the standard BFT quorum threshold.
// Grounded on teacher `core/quorum_tracker.go`, generalized from
// stake-only weight to `ConsensusWeights.Weight`.
type QuorumTracker struct {
	mu          sync.Mutex
	weights     map[NodeID]ValidatorMetrics
	consensusW  ConsensusWeights
	totalWeight float64
	tally       map[string]float64      // vote-key -> accumulated weight
	voted       map[string]map[NodeID]bool // vote-key -> validators already counted
}

func voteKey(height, round uint64, kind VoteKind, blockHash Hash) string {
	return fmt.Sprintf("%d:%d:%d:%s", height, round, kind, blockHash.Hex())
}

// NewQuorumTracker creates a tracker over a fixed validator set and their
// metrics at this height.
func NewQuorumTracker(validators map[NodeID]ValidatorMetrics, weights ConsensusWeights) *QuorumTracker {
	qt := &QuorumTracker{
		weights:    validators,
		consensusW: weights,
		tally:      make(map[string]float64),
		voted:      make(map[string]map[NodeID]bool),
	}
	for _, m := range validators {
		qt.totalWeight += weights.Weight(m)
	}
	return qt
}

// ErrUnknownValidator is returned when a vote comes from a NodeID outside
// the active validator set.
var ErrUnknownValidator = fmt.Errorf("core: vote from unknown validator")

// ErrDoubleVote is returned when a validator votes twice for the same
// (height, round, kind) with a different block hash — equivocation,
// handled by the slashing path in AddVote's caller.
var ErrDoubleVote = fmt.Errorf("core: equivocating double vote detected")

// AddVote records a vote and returns whether quorum (>= 2/3 of total
// weight) has now been reached for its (height, round, kind, block_hash).
func (qt *QuorumTracker) AddVote(v *Vote) (quorumReached bool, err error) {
	qt.mu.Lock()
	defer qt.mu.Unlock()

	m, ok := qt.weights[v.Validator]
	if !ok {
		return false, ErrUnknownValidator
	}

	roundKey := fmt.Sprintf("%d:%d:%d", v.Height, v.Round, v.Kind)
	for key, voters := range qt.voted {
		if len(key) >= len(roundKey) && key[:len(roundKey)] == roundKey && key != voteKey(v.Height, v.Round, v.Kind, v.BlockHash) {
			if voters[v.Validator] {
				return false, ErrDoubleVote
			}
		}
	}

	key := voteKey(v.Height, v.Round, v.Kind, v.BlockHash)
	if qt.voted[key] == nil {
		qt.voted[key] = make(map[NodeID]bool)
	}
	if qt.voted[key][v.Validator] {
		return qt.tally[key] >= qt.quorumThreshold(), nil
	}
	qt.voted[key][v.Validator] = true
	qt.tally[key] += qt.consensusW.Weight(m)

	return qt.tally[key] >= qt.quorumThreshold(), nil
}

func (qt *QuorumTracker) quorumThreshold() float64 {
	return (2.0 / 3.0) * qt.totalWeight
}

// SlashReason identifies why a validator is being penalized.
type SlashReason uint8

const (
	SlashEquivocation SlashReason = iota
	SlashDowntime
	SlashInvalidProof
)

// SlashEvent records a penalty applied to a validator's stake.
type SlashEvent struct {
	Validator NodeID
	Reason    SlashReason
	Height    uint64
	Amount    uint64
}

// SlashingTable tracks cumulative penalties per validator. Grounded on
// teacher `core/stake_penalty.go`'s slashing ledger.
type SlashingTable struct {
	mu     sync.Mutex
	events []SlashEvent
}

// NewSlashingTable creates an empty table.
func NewSlashingTable() *SlashingTable { return &SlashingTable{} }

// Record appends a slash event. stakeAmount*penaltyFraction is the caller's
// responsibility to compute; this just records the outcome.
func (st *SlashingTable) Record(ev SlashEvent) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.events = append(st.events, ev)
}

// TotalSlashed returns the cumulative amount slashed from a validator.
func (st *SlashingTable) TotalSlashed(id NodeID) uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	var total uint64
	for _, e := range st.events {
		if e.Validator == id {
			total += e.Amount
		}
	}
	return total
}

// ChainForkManager tracks competing chain tips and resolves forks by total
// accumulated validator weight (heaviest-weighted-chain rule, generalizing
// simple longest-chain since weight already folds in stake/storage/useful
// work). Grounded on teacher `core/chain_fork_manager.go`.
type ChainForkManager struct {
	mu    sync.Mutex
	tips  map[Hash]*forkTip
}

type forkTip struct {
	header       BlockHeader
	cumulativeW  float64
}

// NewChainForkManager creates an empty fork manager.
func NewChainForkManager() *ChainForkManager {
	return &ChainForkManager{tips: make(map[Hash]*forkTip)}
}

// ObserveTip records a candidate chain tip and the cumulative validator
// weight backing the chain up to and including it.
func (fm *ChainForkManager) ObserveTip(header BlockHeader, cumulativeWeight float64) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.tips[header.Hash()] = &forkTip{header: header, cumulativeW: cumulativeWeight}
}

// ErrNoTips is returned when CanonicalTip is called before any tip has been
// observed.
var ErrNoTips = fmt.Errorf("core: no chain tips observed")

// CanonicalTip returns the header with the greatest cumulative validator
// weight — the chain reorg target whenever it differs from the local head.
// Equal-weight ties are broken by the lower aggregated block hash (spec.md
// §4.10), keeping the choice deterministic regardless of map iteration
// order instead of preferring either tip arbitrarily.
func (fm *ChainForkManager) CanonicalTip() (BlockHeader, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if len(fm.tips) == 0 {
		return BlockHeader{}, ErrNoTips
	}
	var best *forkTip
	var bestHash Hash
	for hash, t := range fm.tips {
		if best == nil || t.cumulativeW > best.cumulativeW ||
			(t.cumulativeW == best.cumulativeW && hash.Less(bestHash)) {
			best, bestHash = t, hash
		}
	}
	return best.header, nil
}
