package core

import (
	"container/heap"
	"fmt"
	"sync"
)

// ErrNullifierReused is returned when a private transaction's nullifier
// collides with one already included in a committed block — the
// double-spend signal for shielded transactions (spec.md §4.7).
var ErrNullifierReused = fmt.Errorf("core: nullifier reused")

// ErrDuplicateTransaction is returned when a transaction with the same id
// is already present in the pool.
var ErrDuplicateTransaction = fmt.Errorf("core: duplicate transaction")

type txHeapItem struct {
	tx    *Transaction
	index int
}

// feeHeap is a max-heap on fee, breaking ties by earlier arrival (lower
// heap index at insertion), giving fee-priority ordering for block
// proposal (spec.md §4.7 "fee-priority mempool").
type feeHeap []*txHeapItem

func (h feeHeap) Len() int { return len(h) }
func (h feeHeap) Less(i, j int) bool {
	if h[i].tx.Fee != h[j].tx.Fee {
		return h[i].tx.Fee > h[j].tx.Fee
	}
	return h[i].index < h[j].index
}
func (h feeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *feeHeap) Push(x interface{}) {
	item := x.(*txHeapItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *feeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Mempool is the fee-priority, nullifier-aware pending transaction pool.
// Grounded on teacher `core/txpool_*.go` family (fee-ordered admission) and
// `core/tx_types.go` for the transaction type surface, generalized to the
// spec's private-transaction nullifier tracking.
//
// Nullifier admission policy during view-change (SPEC_FULL.md Open
// Question 2): the pool tracks nullifiers against the last *committed*
// block's set, not a block under active view-change. A private
// transaction is admitted provisionally if its nullifier is unseen in the
// committed set; ReconcileCommitted re-checks provisional admissions at
// the next successful commit and evicts any that collided.
type Mempool struct {
	mu            sync.Mutex
	byID          map[Hash]*txHeapItem
	heap          feeHeap
	committedNull map[Hash]bool // nullifiers seen in committed blocks
	provisional   map[Hash]Hash // nullifier -> tx id, admitted but not yet reconciled
}

// NewMempool creates an empty pool.
func NewMempool() *Mempool {
	return &Mempool{
		byID:          make(map[Hash]*txHeapItem),
		committedNull: make(map[Hash]bool),
		provisional:   make(map[Hash]Hash),
	}
}

// Add admits a transaction, rejecting duplicates and transactions whose
// nullifier already appears in a committed block.
func (m *Mempool) Add(tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[tx.ID]; exists {
		return ErrDuplicateTransaction
	}
	if tx.IsPrivate() {
		if m.committedNull[tx.Nullifier] {
			return ErrNullifierReused
		}
		m.provisional[tx.Nullifier] = tx.ID
	}

	item := &txHeapItem{tx: tx}
	heap.Push(&m.heap, item)
	m.byID[tx.ID] = item
	return nil
}

// Remove drops a transaction from the pool (e.g. after inclusion in a
// proposed block, or explicit eviction).
func (m *Mempool) Remove(id Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

func (m *Mempool) removeLocked(id Hash) {
	item, ok := m.byID[id]
	if !ok {
		return
	}
	// item.index is the insertion position (Swap does not update it), so
	// find the item's current heap position before removing it.
	for pos, it := range m.heap {
		if it == item {
			heap.Remove(&m.heap, pos)
			break
		}
	}
	delete(m.byID, id)
	if item.tx.IsPrivate() {
		delete(m.provisional, item.tx.Nullifier)
	}
}

// TopN returns up to n highest-fee-priority transactions without removing
// them from the pool — used by block proposal.
func (m *Mempool) TopN(n int) []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := append(feeHeap(nil), m.heap...)
	h := &cp
	out := make([]*Transaction, 0, n)
	for h.Len() > 0 && len(out) < n {
		item := heap.Pop(h).(*txHeapItem)
		out = append(out, item.tx)
	}
	return out
}

// ReconcileCommitted updates the committed-nullifier set with every
// private transaction's nullifier in a newly committed block, then evicts
// any still-pooled transaction whose nullifier collided with one just
// committed (the Open Question 2 reconciliation step).
func (m *Mempool) ReconcileCommitted(committed []*Transaction) (evicted []Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range committed {
		if !tx.IsPrivate() {
			continue
		}
		m.committedNull[tx.Nullifier] = true
		if pendingID, ok := m.provisional[tx.Nullifier]; ok && pendingID != tx.ID {
			m.removeLocked(pendingID)
			evicted = append(evicted, pendingID)
		}
		delete(m.provisional, tx.Nullifier)
	}
	return evicted
}

// Len returns the number of pooled transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
