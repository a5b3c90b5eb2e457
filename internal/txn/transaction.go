// Package txn implements the transaction context a single B+Tree
// operation carries through its descent: a thread id, a transaction id,
// and an ordered set of pages whose latches the operation currently
// holds.
package txn

import (
	"sync/atomic"

	"bptreedb/internal/page"
)

var nextTxnID atomic.Uint64

// Transaction accumulates the pages latched during a single B+Tree
// operation so latch-crabbing can release them in bulk, top-down.
type Transaction struct {
	threadID uint64
	txnID    uint64
	pageSet  []*page.Page
}

// New creates a transaction for the calling goroutine. threadID is
// caller-supplied (e.g. a goroutine or worker id); it is recorded, never
// interpreted.
func New(threadID uint64) *Transaction {
	return &Transaction{
		threadID: threadID,
		txnID:    nextTxnID.Add(1),
	}
}

// ThreadID returns the thread id this transaction was created with.
func (t *Transaction) ThreadID() uint64 { return t.threadID }

// TransactionID returns this transaction's unique id.
func (t *Transaction) TransactionID() uint64 { return t.txnID }

// AddToPageSet records a page whose latch this operation currently holds.
func (t *Transaction) AddToPageSet(p *page.Page) {
	t.pageSet = append(t.pageSet, p)
}

// PageSet returns the pages latched by this operation, oldest (topmost
// ancestor) first, so callers can release them top-down.
func (t *Transaction) PageSet() []*page.Page {
	return t.pageSet
}

// ClearPageSet empties the page set after its pages have been released.
func (t *Transaction) ClearPageSet() {
	t.pageSet = t.pageSet[:0]
}
