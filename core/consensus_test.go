package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuorumTrackerReachesTwoThirds(t *testing.T) {
	validators := map[NodeID]ValidatorMetrics{
		randomNodeID(t, "v1"): {Stake: 100},
		randomNodeID(t, "v2"): {Stake: 100},
		randomNodeID(t, "v3"): {Stake: 100},
	}
	qt := NewQuorumTracker(validators, DefaultConsensusWeights)
	// Each validator's weight is 0.5*100=50 out of a 150 total; the 2/3
	// threshold is 100, so the first single vote must not reach quorum but
	// two votes (100 >= 100) must.
	blockHash := HashBlake3([]byte("block-1"))

	var ids []NodeID
	for id := range validators {
		ids = append(ids, id)
	}

	reached, err := qt.AddVote(&Vote{Height: 1, Round: 0, Kind: VotePrepare, BlockHash: blockHash, Validator: ids[0]})
	require.NoError(t, err)
	assert.False(t, reached)

	reached, err = qt.AddVote(&Vote{Height: 1, Round: 0, Kind: VotePrepare, BlockHash: blockHash, Validator: ids[1]})
	require.NoError(t, err)
	assert.True(t, reached)
}

func TestQuorumTrackerRejectsUnknownValidator(t *testing.T) {
	validators := map[NodeID]ValidatorMetrics{randomNodeID(t, "v1"): {Stake: 100}}
	qt := NewQuorumTracker(validators, DefaultConsensusWeights)

	_, err := qt.AddVote(&Vote{Height: 1, BlockHash: HashBlake3([]byte("b")), Validator: randomNodeID(t, "stranger")})
	assert.ErrorIs(t, err, ErrUnknownValidator)
}

func TestChainForkManagerPicksHeaviestChain(t *testing.T) {
	fm := NewChainForkManager()

	weak := BlockHeader{Height: 10}
	strong := BlockHeader{Height: 9}
	fm.ObserveTip(weak, 50)
	fm.ObserveTip(strong, 100)

	canonical, err := fm.CanonicalTip()
	require.NoError(t, err)
	assert.Equal(t, strong.Height, canonical.Height)
}

func TestChainForkManagerBreaksWeightTiesByLowerHash(t *testing.T) {
	fm := NewChainForkManager()

	a := BlockHeader{Height: 10, StateRoot: HashBlake3([]byte("a"))}
	b := BlockHeader{Height: 10, StateRoot: HashBlake3([]byte("b"))}
	fm.ObserveTip(a, 100)
	fm.ObserveTip(b, 100)

	wantHash := a.Hash()
	if b.Hash().Less(wantHash) {
		wantHash = b.Hash()
	}

	canonical, err := fm.CanonicalTip()
	require.NoError(t, err)
	assert.Equal(t, wantHash, canonical.Hash())
}

func TestConsensusWeightsFormula(t *testing.T) {
	w := DefaultConsensusWeights
	metrics := ValidatorMetrics{Stake: 1000, StorageCapacityGB: 500, StorageUtilization: 0.5, UsefulWorkScore: 0.8}
	got := w.Weight(metrics)
	want := 0.5*1000 + 0.3*500*0.5 + 0.2*0.8
	assert.InDelta(t, want, got, 1e-9)
}
