package core

import "fmt"

// RewardEpochInput is the per-epoch tally a validator/provider/relay
// contributed, feeding both useful-work scoring (core/consensus_weights.go)
// and the UBI/welfare distribution calculator below.
type RewardEpochInput struct {
	Validator          NodeID
	StorageProofsPassed uint64
	StorageProofsTotal uint64
	RelayBytesCarried  uint64
	BlocksProposed     uint64
}

// UsefulWorkScore derives the [0,1] score fed into ConsensusWeights.Weight
// from an epoch's raw activity counters: proof pass rate dominates (it is
// directly verifiable), relay throughput contributes a smaller bonus
// capped so a single high-bandwidth relay can't dominate useful-work
// weight over honest storage providers.
func UsefulWorkScore(in RewardEpochInput) float64 {
	var proofRate float64
	if in.StorageProofsTotal > 0 {
		proofRate = float64(in.StorageProofsPassed) / float64(in.StorageProofsTotal)
	}
	relayBonus := float64(in.RelayBytesCarried) / (1 << 30) // GB carried
	if relayBonus > 0.2 {
		relayBonus = 0.2
	}
	score := 0.8*proofRate + relayBonus
	if score > 1 {
		score = 1
	}
	return score
}

// RewardCalculator computes per-epoch validator/provider rewards and the
// amounts for the UBI/Welfare distribution transaction types named in spec.md §3
// (`UbiDistribution`, `WelfareDistribution`) but left undefined by the
// distillation — the `[supplemented]` feature from
// `original_source/lib-economy/src/rewards/calculator.rs` and
// `lib-economy/src/distribution/ubi_calculation.rs` (SPEC_FULL.md §C).
// Grounded on teacher `core/distribution.go` + `core/coin.go` for the
// reward-pool/emission pattern.
type RewardCalculator struct {
	EpochEmission uint64 // total new-issuance budget for the epoch
	UbiShare      float64 // fraction of EpochEmission routed to UBI, in [0,1]
	WelfareShare  float64 // fraction routed to means-tested welfare, in [0,1]
}

// ErrInvalidShares is returned when UbiShare+WelfareShare would exceed 1.0,
// which would overcommit the epoch emission budget.
var ErrInvalidShares = fmt.Errorf("core: ubi+welfare shares exceed total emission")

// ValidatorReward computes one validator's share of the remaining
// (non-UBI, non-welfare) emission, proportional to its useful-work-scored
// weight among all active validators this epoch.
func (rc *RewardCalculator) ValidatorReward(weight, totalWeight float64) (uint64, error) {
	if rc.UbiShare+rc.WelfareShare > 1.0 {
		return 0, ErrInvalidShares
	}
	if totalWeight == 0 {
		return 0, nil
	}
	remaining := 1.0 - rc.UbiShare - rc.WelfareShare
	return uint64(float64(rc.EpochEmission) * remaining * (weight / totalWeight)), nil
}

// UbiAllocation splits the UBI share of epoch emission evenly across every
// registered citizen identity — equal, unconditional, per spec.md's
// `UbiDistribution` transaction type.
func (rc *RewardCalculator) UbiAllocation(citizenCount uint64) uint64 {
	if citizenCount == 0 {
		return 0
	}
	pool := uint64(float64(rc.EpochEmission) * rc.UbiShare)
	return pool / citizenCount
}

// WelfareAllocation splits the welfare share proportionally by a
// need-weighted score per recipient (means-tested, unlike UBI's equal
// split), matching `WelfareDistribution`'s targeted-support semantics.
func (rc *RewardCalculator) WelfareAllocation(needScore, totalNeedScore float64) uint64 {
	if totalNeedScore == 0 {
		return 0
	}
	pool := float64(rc.EpochEmission) * rc.WelfareShare
	return uint64(pool * (needScore / totalNeedScore))
}
