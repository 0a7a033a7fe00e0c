package core

// ConsensusWeights holds the tunable coefficients of the hybrid
// PoS/PoStorage/PoUsefulWork validator weighting formula (SPEC_FULL.md
// Open Question 3):
//
//	weight = W1*stake + W2*storage_capacity*utilization + W3*useful_work_score
//
// Grounded on teacher `core/stake_penalty.go` and `core/authority_nodes.go`,
// which already weight validators by stake alone; this generalizes that to
// the spec's three-factor model while keeping the coefficients named,
// documented, and independently tunable rather than baked-in constants.
type ConsensusWeights struct {
	StakeCoeff      float64
	StorageCoeff    float64
	UsefulWorkCoeff float64
}

// DefaultConsensusWeights is the (0.5, 0.3, 0.2) default recorded as the
// Open Question 3 decision.
var DefaultConsensusWeights = ConsensusWeights{
	StakeCoeff:      0.5,
	StorageCoeff:    0.3,
	UsefulWorkCoeff: 0.2,
}

// ValidatorMetrics is the per-validator input to the weighting formula.
type ValidatorMetrics struct {
	Stake             uint64
	StorageCapacityGB float64
	StorageUtilization float64 // in [0, 1]
	UsefulWorkScore   float64 // in [0, 1], derived from proven storage challenges + relay throughput
}

// Weight computes a validator's voting weight under w.
func (w ConsensusWeights) Weight(m ValidatorMetrics) float64 {
	return w.StakeCoeff*float64(m.Stake) +
		w.StorageCoeff*m.StorageCapacityGB*m.StorageUtilization +
		w.UsefulWorkCoeff*m.UsefulWorkScore
}
