package core

import (
	"fmt"
	"time"
)

// TxType enumerates every transaction kind carried by the chain (spec.md
// §3). The amounts for Ubi/Welfare distributions are computed by
// `core/rewards.go`'s per-epoch calculator, the `[supplemented]` feature
// from SPEC_FULL.md §C; nothing in the package builds transactions of
// those two types.
type TxType uint8

const (
	TxPayment TxType = iota
	TxReward
	TxStake
	TxUnstake
	TxNetworkFee
	TxDaoFee
	TxBurn
	TxUbiDistribution
	TxWelfareDistribution
	TxProposalVote
	TxProposalExecution
)

// TxOutput is one entry of a transaction's input or output list: a claim
// on (input) or grant of (output) funds to Owner. Inputs reference the
// sender's own prior balance; outputs name the recipients (spec.md §3
// `inputs[]`/`outputs[]`).
type TxOutput struct {
	Owner  NodeID
	Amount uint64
}

func encodeTxOutputs(outs []TxOutput) []byte {
	var b []byte
	for _, o := range outs {
		b = concatBytes(b, o.Owner.Bytes(), uint64ToBytes(o.Amount))
	}
	return b
}

// Transaction is the chain's atomic unit of state change. Nullifier is
// non-zero only for private transactions (shielded transfers / ZK
// attestations) and is the double-spend detection key the mempool and
// consensus layer check (spec.md §3, §4.7). Inputs/Outputs carry the
// public balance ledger; Fee is the base transaction fee and DaoFee the
// portion routed to the DAO treasury, both folded into the balance
// invariant `sum(inputs) == sum(outputs) + base_fee + dao_fee` (spec.md
// §3, §8).
type Transaction struct {
	ID        Hash
	Type      TxType
	Sender    NodeID
	Nonce     uint64
	Inputs    []TxOutput
	Outputs   []TxOutput
	Fee       uint64
	DaoFee    uint64
	Payload   []byte
	Nullifier Hash // zero for public transactions
	ZKProof   []byte
	Sig       Signature
	Timestamp time.Time
}

// encodeForSigning returns the canonical byte encoding a Transaction is
// signed over — every field except the signature itself.
func (tx *Transaction) encodeForSigning() []byte {
	nonceBytes := uint64ToBytes(tx.Nonce)
	feeBytes := uint64ToBytes(tx.Fee)
	daoFeeBytes := uint64ToBytes(tx.DaoFee)
	ts := []byte(tx.Timestamp.UTC().Format(time.RFC3339Nano))
	return concatBytes(
		[]byte{byte(tx.Type)},
		tx.Sender.Bytes(),
		nonceBytes,
		encodeTxOutputs(tx.Inputs),
		encodeTxOutputs(tx.Outputs),
		feeBytes,
		daoFeeBytes,
		tx.Payload,
		tx.Nullifier[:],
		tx.ZKProof,
		ts,
	)
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v)
		v >>= 8
	}
	return b
}

// NewTransaction builds, hashes, and signs a transaction.
func NewTransaction(txType TxType, sender NodeID, nonce uint64, inputs, outputs []TxOutput, fee, daoFee uint64, payload []byte, nullifier Hash, zkProof []byte, sk *PrivateKey, now time.Time) (*Transaction, error) {
	tx := &Transaction{
		Type:      txType,
		Sender:    sender,
		Nonce:     nonce,
		Inputs:    inputs,
		Outputs:   outputs,
		Fee:       fee,
		DaoFee:    daoFee,
		Payload:   payload,
		Nullifier: nullifier,
		ZKProof:   zkProof,
		Timestamp: now,
	}
	sig, err := Sign(sk, tx.encodeForSigning())
	if err != nil {
		return nil, fmt.Errorf("core: sign transaction: %w", err)
	}
	tx.Sig = sig
	tx.ID = HashBlake3(tx.encodeForSigning(), sig.Bytes)
	return tx, nil
}

// ErrInvalidTransactionSig is returned when a transaction's signature does
// not verify against its declared sender.
var ErrInvalidTransactionSig = fmt.Errorf("core: invalid transaction signature")

// ErrBalanceInvariant is returned when a public transaction's inputs do
// not sum to its outputs plus base fee plus dao fee (spec.md §3, §8
// "Transaction balance" testable property).
var ErrBalanceInvariant = fmt.Errorf("core: transaction inputs do not balance outputs plus fees")

// CheckBalance enforces sum(inputs) == sum(outputs) + Fee + DaoFee for
// public transactions. Private transactions (non-zero nullifier) enforce
// the same invariant inside their ZK proof instead (spec.md §3 "enforced
// in ZK for private transfers"), so this is a no-op for them.
func (tx *Transaction) CheckBalance() error {
	if tx.IsPrivate() {
		return nil
	}
	var in, out uint64
	for _, i := range tx.Inputs {
		in += i.Amount
	}
	for _, o := range tx.Outputs {
		out += o.Amount
	}
	if in != out+tx.Fee+tx.DaoFee {
		return ErrBalanceInvariant
	}
	return nil
}

// VerifyTransaction checks tx's signature, id binding, and balance
// invariant.
func VerifyTransaction(tx *Transaction, senderPK *PublicKey) error {
	if !Verify(senderPK, tx.encodeForSigning(), tx.Sig) {
		return ErrInvalidTransactionSig
	}
	want := HashBlake3(tx.encodeForSigning(), tx.Sig.Bytes)
	if want != tx.ID {
		return fmt.Errorf("core: transaction id does not match content")
	}
	if err := tx.CheckBalance(); err != nil {
		return err
	}
	return nil
}

// IsPrivate reports whether tx carries a non-zero nullifier, i.e. whether
// it must be checked against the nullifier set for double-spend detection.
func (tx *Transaction) IsPrivate() bool { return !tx.Nullifier.IsZero() }
