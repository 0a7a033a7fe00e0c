package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTx(t *testing.T, sk *PrivateKey, sender NodeID, nonce, fee uint64, nullifier Hash) *Transaction {
	t.Helper()
	inputs := []TxOutput{{Owner: sender, Amount: fee}}
	tx, err := NewTransaction(TxPayment, sender, nonce, inputs, nil, fee, 0, []byte("payload"), nullifier, nil, sk, time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	return tx
}

func TestMempoolFeePriorityOrdering(t *testing.T) {
	_, sk, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	sender := NodeID(HashBlake3([]byte("sender")))

	pool := NewMempool()
	low := mustTx(t, sk, sender, 1, 10, Hash{})
	high := mustTx(t, sk, sender, 2, 1000, Hash{})
	mid := mustTx(t, sk, sender, 3, 100, Hash{})

	require.NoError(t, pool.Add(low))
	require.NoError(t, pool.Add(high))
	require.NoError(t, pool.Add(mid))

	top := pool.TopN(3)
	require.Len(t, top, 3)
	assert.Equal(t, high.ID, top[0].ID)
	assert.Equal(t, mid.ID, top[1].ID)
	assert.Equal(t, low.ID, top[2].ID)
}

func TestMempoolRejectsDuplicate(t *testing.T) {
	_, sk, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	sender := NodeID(HashBlake3([]byte("sender")))
	pool := NewMempool()

	tx := mustTx(t, sk, sender, 1, 10, Hash{})
	require.NoError(t, pool.Add(tx))
	err = pool.Add(tx)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestMempoolRejectsKnownNullifier(t *testing.T) {
	_, sk, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	sender := NodeID(HashBlake3([]byte("sender")))
	pool := NewMempool()

	nullifier := HashBlake3([]byte("spent"))
	committed := mustTx(t, sk, sender, 1, 10, nullifier)
	pool.ReconcileCommitted([]*Transaction{committed})

	dup := mustTx(t, sk, sender, 2, 20, nullifier)
	err = pool.Add(dup)
	assert.ErrorIs(t, err, ErrNullifierReused)
}

func TestMempoolReconciliationEvictsCollidedProvisional(t *testing.T) {
	_, sk, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)
	sender := NodeID(HashBlake3([]byte("sender")))
	pool := NewMempool()

	nullifier := HashBlake3([]byte("contested"))
	provisional := mustTx(t, sk, sender, 1, 10, nullifier)
	require.NoError(t, pool.Add(provisional))

	// A different transaction with the same nullifier gets committed by
	// another proposer first.
	winner := mustTx(t, sk, sender, 2, 10, nullifier)
	evicted := pool.ReconcileCommitted([]*Transaction{winner})

	require.Contains(t, evicted, provisional.ID)
	assert.Equal(t, 0, pool.Len())
}
