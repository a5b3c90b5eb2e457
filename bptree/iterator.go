package bptree

import (
	"bptreedb/internal/page"
	"bptreedb/internal/xerrors"
)

// IndexIterator walks the leaf level left to right via next-leaf
// pointers, pinning and R-latching at most one leaf at a time (spec
// §4).
type IndexIterator[K any] struct {
	tree     *BPlusTree[K]
	leafPage *page.Page
	leaf     *LeafPage[K]
	slot     int
}

// Begin returns an iterator positioned at the first entry in the tree.
func (t *BPlusTree[K]) Begin(txn Transaction) (*IndexIterator[K], error) {
	rootID := t.getRootPageID()
	if rootID == page.InvalidID {
		return &IndexIterator[K]{tree: t}, nil
	}

	pg, err := t.bpm.FetchPage(rootID)
	if err != nil {
		return nil, err
	}
	pg.RLatch()

	for headerPageType(pg) != PageTypeLeaf {
		internal := NewInternalPage[K](pg, t.codec)
		childID := internal.ValueAt(0)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			pg.RUnlatch()
			t.bpm.UnpinPage(pg.ID, false)
			return nil, err
		}
		child.RLatch()
		pg.RUnlatch()
		t.bpm.UnpinPage(pg.ID, false)
		pg = child
	}

	it := &IndexIterator[K]{tree: t, leafPage: pg, leaf: NewLeafPage[K](pg, t.codec)}
	if err := it.skipToValid(); err != nil {
		return nil, err
	}
	return it, nil
}

// BeginAt returns an iterator positioned at the first entry whose key
// is >= key.
func (t *BPlusTree[K]) BeginAt(key K, txn Transaction) (*IndexIterator[K], error) {
	if t.IsEmpty() {
		return &IndexIterator[K]{tree: t}, nil
	}

	leafPage, err := t.descend(key, txn, modeRead)
	if err != nil {
		if err == xerrors.ErrNotFound {
			return &IndexIterator[K]{tree: t}, nil
		}
		return nil, err
	}
	leaf := NewLeafPage[K](leafPage, t.codec)
	slot := leaf.KeyIndex(key, t.cmp)

	// descend() leaves the leaf pinned and R-latched exactly once,
	// recorded in txn's page set; the iterator now owns that pin and
	// latch for its own lifetime, so it must not also be released by a
	// future releaseAll call against txn.
	removePage(txn, leafPage.ID)

	it := &IndexIterator[K]{tree: t, leafPage: leafPage, leaf: leaf, slot: slot}
	if err := it.skipToValid(); err != nil {
		return nil, err
	}
	return it, nil
}

// Valid reports whether the iterator is positioned at an entry.
func (it *IndexIterator[K]) Valid() bool {
	return it.leaf != nil && it.slot < it.leaf.Size()
}

// Key returns the key at the iterator's current position.
func (it *IndexIterator[K]) Key() K { return it.leaf.KeyAt(it.slot) }

// RID returns the RID at the iterator's current position.
func (it *IndexIterator[K]) RID() RID { return it.leaf.RIDAt(it.slot) }

// Next advances the iterator, crossing to the next leaf if needed.
func (it *IndexIterator[K]) Next() error {
	if !it.Valid() {
		return nil
	}
	it.slot++
	return it.skipToValid()
}

// Close releases the iterator's current leaf, if any. Callers that run
// an iterator to exhaustion need not call it; Close is for early exit.
func (it *IndexIterator[K]) Close() error {
	if it.leafPage == nil {
		return nil
	}
	it.leafPage.RUnlatch()
	err := it.tree.bpm.UnpinPage(it.leafPage.ID, false)
	it.leafPage = nil
	it.leaf = nil
	return err
}

func (it *IndexIterator[K]) skipToValid() error {
	for it.leaf != nil && it.slot >= it.leaf.Size() {
		next := it.leaf.NextPageID()
		old := it.leafPage
		old.RUnlatch()
		it.tree.bpm.UnpinPage(old.ID, false)

		if next == page.InvalidID {
			it.leafPage, it.leaf = nil, nil
			return nil
		}

		pg, err := it.tree.bpm.FetchPage(next)
		if err != nil {
			it.leafPage, it.leaf = nil, nil
			return err
		}
		pg.RLatch()
		it.leafPage = pg
		it.leaf = NewLeafPage[K](pg, it.tree.codec)
		it.slot = 0
	}
	return nil
}
