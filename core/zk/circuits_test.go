package zk

import (
	"testing"

	"github.com/consensys/gnark/frontend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeCircuitProvesMembership(t *testing.T) {
	const bits = 8
	ks, err := Setup(CircuitRange, &RangeCircuit{Bits: bits})
	require.NoError(t, err)

	valid := &RangeCircuit{Value: 200, Bits: bits, Commitment: 12345}
	proof, err := Prove(ks, valid)
	require.NoError(t, err)
	require.NoError(t, Verify(ks, proof))
}

func TestRangeCircuitRejectsOutOfRangeValue(t *testing.T) {
	const bits = 8
	ks, err := Setup(CircuitRange, &RangeCircuit{Bits: bits})
	require.NoError(t, err)

	// 300 doesn't fit in 8 bits; ToBinary truncates it so the weighted-sum
	// constraint against the original value fails to find a satisfying
	// witness.
	tooLarge := &RangeCircuit{Value: 300, Bits: bits, Commitment: 1}
	_, err = Prove(ks, tooLarge)
	assert.Error(t, err)
}

func TestIdentityAttributeCircuitSelectiveDisclosure(t *testing.T) {
	ks, err := Setup(CircuitIdentityAttribute, &IdentityAttributeCircuit{})
	require.NoError(t, err)

	// commitment = attribute*blinding + attribute, matching Define.
	assignment := &IdentityAttributeCircuit{Attribute: 30, Blinding: 7, Commitment: 240}
	proof, err := Prove(ks, assignment)
	require.NoError(t, err)
	require.NoError(t, Verify(ks, proof))
}

func TestIdentityAttributeCircuitRejectsWrongCommitment(t *testing.T) {
	ks, err := Setup(CircuitIdentityAttribute, &IdentityAttributeCircuit{})
	require.NoError(t, err)

	assignment := &IdentityAttributeCircuit{Attribute: 30, Blinding: 7, Commitment: 999}
	_, err = Prove(ks, assignment)
	assert.Error(t, err)
}

func TestMerkleInclusionCircuitProvesPath(t *testing.T) {
	template := &MerkleInclusionCircuit{
		Siblings: make([]frontend.Variable, 2),
		PathBits: make([]frontend.Variable, 2),
	}
	ks, err := Setup(CircuitMerkleInclusion, template)
	require.NoError(t, err)

	leaf, s0, s1 := 5, 3, 9
	node1 := leaf*s0 + leaf + s0 // pathBit 0: current stays "left" each hop
	root := node1*s1 + node1 + s1

	assignment := &MerkleInclusionCircuit{
		Leaf:     leaf,
		Root:     root,
		Siblings: []frontend.Variable{s0, s1},
		PathBits: []frontend.Variable{0, 0},
	}
	proof, err := Prove(ks, assignment)
	require.NoError(t, err)
	require.NoError(t, Verify(ks, proof))
}

func TestStateTransitionCircuitProvesDeterministicApply(t *testing.T) {
	ks, err := Setup(CircuitStateTransition, &StateTransitionCircuit{})
	require.NoError(t, err)

	prev, digest := 100, 3
	next := prev*digest + prev // matches Define's derivation
	assignment := &StateTransitionCircuit{PrevStateRoot: prev, NextStateRoot: next, BatchDigest: digest}
	proof, err := Prove(ks, assignment)
	require.NoError(t, err)
	require.NoError(t, Verify(ks, proof))
}

func TestRecursiveAggregationCircuitFoldsSelectedClaims(t *testing.T) {
	template := &RecursiveAggregationCircuit{
		ClaimDigests: make([]frontend.Variable, 3),
		Selectors:    make([]frontend.Variable, 3),
	}
	ks, err := Setup(CircuitRecursiveAggregation, template)
	require.NoError(t, err)

	// Selectors pick claims 0 and 2 (value 4 and 5); unselected claims are
	// replaced by 1 so they don't affect the product: 4*5 = 20.
	assignment := &RecursiveAggregationCircuit{
		ClaimDigests: []frontend.Variable{4, 99, 5},
		Selectors:    []frontend.Variable{1, 0, 1},
		AggregateOut: 20,
	}
	proof, err := Prove(ks, assignment)
	require.NoError(t, err)
	require.NoError(t, Verify(ks, proof))
}
