package bptree

import (
	"bptreedb/internal/page"
	"bptreedb/internal/xerrors"
)

// latchMode selects the latch-crabbing discipline used while walking
// down the tree.
type latchMode int

const (
	modeRead latchMode = iota
	modeInsert
	modeRemove
)

// descend walks from the root to the leaf that would contain key,
// latching and pinning every page it visits. In read mode, each page's
// latch is released as soon as its child is latched. In write mode, an
// ancestor is only released once its child is proven "safe" (cannot
// itself trigger a split/merge that would propagate up to it);
// unreleased ancestors accumulate in txn's page set for the caller to
// finish with.
func (t *BPlusTree[K]) descend(key K, txn Transaction, mode latchMode) (*page.Page, error) {
	rootID := t.getRootPageID()
	if rootID == page.InvalidID {
		return nil, xerrors.ErrNotFound
	}

	pg, err := t.bpm.FetchPage(rootID)
	if err != nil {
		return nil, err
	}
	latchPage(pg, mode)
	txn.AddToPageSet(pg)

	for {
		if headerPageType(pg) == PageTypeLeaf {
			return pg, nil
		}

		internal := NewInternalPage[K](pg, t.codec)
		childID := internal.Lookup(key, t.cmp)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			t.releaseAll(txn, mode)
			txn.ClearPageSet()
			return nil, err
		}
		latchPage(child, mode)

		switch mode {
		case modeRead:
			t.releaseAll(txn, mode)
			txn.ClearPageSet()
		case modeInsert, modeRemove:
			if isSafe(child, mode) {
				t.releaseAll(txn, mode)
				txn.ClearPageSet()
			}
		}

		txn.AddToPageSet(child)
		pg = child
	}
}

func latchPage(pg *page.Page, mode latchMode) {
	if mode == modeRead {
		pg.RLatch()
	} else {
		pg.WLatch()
	}
}

func unlatchPage(pg *page.Page, mode latchMode) {
	if mode == modeRead {
		pg.RUnlatch()
	} else {
		pg.WUnlatch()
	}
}

// isSafe reports whether pg can absorb the pending operation without
// itself needing to split or merge, per the standard latch-crabbing
// safety predicate. The root is always reported safe for removal: its
// own underflow is handled separately by AdjustRoot, not by the
// sibling-redistribution rule that applies to every other node.
func isSafe(pg *page.Page, mode latchMode) bool {
	size := headerSize(pg)
	maxSize := headerMaxSize(pg)

	switch mode {
	case modeInsert:
		return size+1 <= maxSize
	case modeRemove:
		if headerParentPageID(pg) == page.InvalidID {
			return true
		}
		minSize := (maxSize + 1) / 2
		return size-1 >= minSize
	default:
		return true
	}
}

// releaseAll unlatches and unpins every page txn currently holds,
// top-down (oldest ancestor first). Pages mutated along the way must
// already have been marked dirty by the caller; releaseAll always
// passes isDirty=false to UnpinPage since that flag only ever sets
// the bit, never clears it.
func (t *BPlusTree[K]) releaseAll(txn Transaction, mode latchMode) {
	for _, pg := range txn.PageSet() {
		unlatchPage(pg, mode)
		t.bpm.UnpinPage(pg.ID, false)
	}
}
