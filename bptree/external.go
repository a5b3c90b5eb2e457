package bptree

import "bptreedb/internal/page"

// BufferPoolManager is the only way node pages reach memory. Implemented
// by internal/bufferpool.Manager; the tree never knows about eviction or
// disk I/O directly.
type BufferPoolManager interface {
	FetchPage(pageID int64) (*page.Page, error)
	NewPage() (*page.Page, error)
	UnpinPage(pageID int64, isDirty bool) error
	DeletePage(pageID int64) error
}

// HeaderPage is the catalog mapping an index name to its root page id.
// Implemented by internal/header.Page.
type HeaderPage interface {
	RootPageID(name string) (int64, bool, error)
	InsertRecord(name string, rootPageID int64) error
	UpdateRecord(name string, rootPageID int64) error
}

// Transaction accumulates the pages latched by one tree operation, so
// they can be released top-down once the operation completes.
// Implemented by internal/txn.Transaction.
type Transaction interface {
	ThreadID() uint64
	TransactionID() uint64
	AddToPageSet(p *page.Page)
	PageSet() []*page.Page
	ClearPageSet()
}
