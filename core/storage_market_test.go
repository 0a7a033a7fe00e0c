package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageDealRequiresSufficientEscrow(t *testing.T) {
	offer := StorageOffer{Provider: randomNodeID(t, "p1"), Tier: TierWarm, PricePerGBEp: 2, CapacityGB: 1000}
	client := randomNodeID(t, "c1")
	obj := HashBlake3([]byte("object"))

	_, err := NewStorageDeal(client, offer.Provider, obj, offer, 10, 1, 5, 50) // needs 2*10*5=100
	assert.ErrorIs(t, err, ErrInsufficientEscrow)

	deal, err := NewStorageDeal(client, offer.Provider, obj, offer, 10, 1, 5, 100)
	require.NoError(t, err)
	assert.True(t, deal.Active)
}

func TestStorageMarketSelectsBestReputationWeightedOffer(t *testing.T) {
	m := NewStorageMarket()
	cheap := StorageOffer{Provider: randomNodeID(t, "cheap"), Tier: TierHot, PricePerGBEp: 1, CapacityGB: 100, Reputation: 0.1}
	trusted := StorageOffer{Provider: randomNodeID(t, "trusted"), Tier: TierHot, PricePerGBEp: 1.2, CapacityGB: 100, Reputation: 0.95}
	m.PublishOffer(cheap)
	m.PublishOffer(trusted)

	best, err := m.SelectProvider(TierHot, 50)
	require.NoError(t, err)
	assert.Equal(t, trusted.Provider, best.Provider, "higher reputation should outweigh a small price difference")
}

func TestVerifyStorageProofRejectsIncomplete(t *testing.T) {
	leaves := []Hash{HashBlake3([]byte("a")), HashBlake3([]byte("b")), HashBlake3([]byte("c")), HashBlake3([]byte("d"))}
	root, levels := BuildMerkleTree(leaves)

	challenge := &StorageChallenge{DealID: HashBlake3([]byte("deal")), Epoch: 1, LeafIndices: []int{0, 2}, IssuedAt: time.Unix(1_700_000_000, 0)}

	p0, err := ProveLeaf(levels, 0)
	require.NoError(t, err)
	proof := &StorageProof{DealID: challenge.DealID, Epoch: 1, ChallengesPassed: []MerkleProof{p0}}

	err = VerifyStorageProof(challenge, proof, root)
	assert.ErrorIs(t, err, ErrIncompleteProof)

	p2, err := ProveLeaf(levels, 2)
	require.NoError(t, err)
	proof.ChallengesPassed = append(proof.ChallengesPassed, p2)
	require.NoError(t, VerifyStorageProof(challenge, proof, root))
}
