package zk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTxValidityCircuitSoundness(t *testing.T) {
	ks, err := Setup(CircuitTxValidity, &TxValidityCircuit{})
	require.NoError(t, err)

	valid := &TxValidityCircuit{InputSum: 100, OutputSum: 95, Fee: 5}
	proof, err := Prove(ks, valid)
	require.NoError(t, err)
	require.NoError(t, Verify(ks, proof))
}

func TestTxValidityCircuitRejectsUnbalancedStatement(t *testing.T) {
	ks, err := Setup(CircuitTxValidity, &TxValidityCircuit{})
	require.NoError(t, err)

	// InputSum != OutputSum+Fee must fail to even produce a satisfying
	// witness, let alone a valid proof.
	unbalanced := &TxValidityCircuit{InputSum: 100, OutputSum: 90, Fee: 5}
	_, err = Prove(ks, unbalanced)
	require.Error(t, err)
}
