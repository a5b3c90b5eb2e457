// Package bptree implements a disk-oriented B+Tree index over
// fixed-width keys: point lookup, insert with splitting, delete with
// redistribution/merge, and in-order range iteration via linked leaves.
// Buffer pool, header page, and transaction context are external
// collaborators (see external.go); bptree only ever touches page bytes
// through the typed views in node.go, leaf_page.go and
// internal_page.go.
package bptree

import (
	"fmt"
	"sync"

	"bptreedb/internal/page"
	"bptreedb/internal/xerrors"
)

// BPlusTree is a single named index instance sharing a header page
// catalog with any number of sibling indexes.
type BPlusTree[K any] struct {
	indexName string
	bpm       BufferPoolManager
	header    HeaderPage
	codec     KeyCodec[K]
	cmp       Comparator[K]

	rootLatch       sync.RWMutex
	rootPageID      int64
	maxLeafSize     int
	maxInternalSize int
}

// New opens (or creates, if the catalog has no record for indexName yet)
// a B+Tree backed by bpm/header. leafSize and internalSize cap the
// number of entries a leaf or internal node may hold; 0 picks the
// largest size for which a node, together with the one extra entry it
// holds just before it splits, fits in a page, rounded down to an even
// number.
func New[K any](indexName string, bpm BufferPoolManager, header HeaderPage, codec KeyCodec[K], cmp Comparator[K], leafSize, internalSize int) (*BPlusTree[K], error) {
	if leafSize <= 0 {
		leafSize = (page.Size-leafHeaderSize)/(codec.EncodedSize()+RIDSize) - 1
		leafSize -= leafSize % 2
	}
	if internalSize <= 0 {
		internalSize = (page.Size-internalHeaderSize)/(codec.EncodedSize()+childIDSize) - 2
		internalSize -= internalSize % 2
	}

	rootID, ok, err := header.RootPageID(indexName)
	if err != nil {
		return nil, fmt.Errorf("bptree: open %q: %w", indexName, err)
	}
	if !ok {
		rootID = page.InvalidID
	}

	return &BPlusTree[K]{
		indexName:       indexName,
		bpm:             bpm,
		header:          header,
		codec:           codec,
		cmp:             cmp,
		rootPageID:      rootID,
		maxLeafSize:     leafSize,
		maxInternalSize: internalSize,
	}, nil
}

// IsEmpty reports whether the tree currently has no root.
func (t *BPlusTree[K]) IsEmpty() bool {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID == page.InvalidID
}

func (t *BPlusTree[K]) getRootPageID() int64 {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID
}

func (t *BPlusTree[K]) persistRoot(insert bool) error {
	if insert {
		return t.header.InsertRecord(t.indexName, t.rootPageID)
	}
	return t.header.UpdateRecord(t.indexName, t.rootPageID)
}

// GetValue returns the RID stored under key, if any.
func (t *BPlusTree[K]) GetValue(key K, txn Transaction) ([]RID, error) {
	if t.IsEmpty() {
		return nil, nil
	}

	leafPage, err := t.descend(key, txn, modeRead)
	if err != nil {
		if err == xerrors.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	leaf := NewLeafPage[K](leafPage, t.codec)
	rid, found := leaf.Lookup(key, t.cmp)
	t.releaseAll(txn, modeRead)
	txn.ClearPageSet()
	if !found {
		return nil, nil
	}
	return []RID{rid}, nil
}

// Insert adds (key, value). It returns false without error if key is
// already present, preserving unique-key semantics.
func (t *BPlusTree[K]) Insert(key K, value RID, txn Transaction) (bool, error) {
	t.rootLatch.Lock()
	if t.rootPageID == page.InvalidID {
		_, registered, err := t.header.RootPageID(t.indexName)
		if err != nil {
			t.rootLatch.Unlock()
			return false, err
		}
		pg, err := t.bpm.NewPage()
		if err != nil {
			t.rootLatch.Unlock()
			return false, err
		}
		leaf := NewLeafPage[K](pg, t.codec)
		leaf.Init(pg.ID, page.InvalidID, t.maxLeafSize)
		leaf.Insert(key, value, t.cmp)
		pg.MarkDirty()
		t.rootPageID = pg.ID
		insErr := t.persistRoot(!registered)
		t.bpm.UnpinPage(pg.ID, true)
		t.rootLatch.Unlock()
		return insErr == nil, insErr
	}
	t.rootLatch.Unlock()

	leafPage, err := t.descend(key, txn, modeInsert)
	if err != nil {
		return false, err
	}
	leaf := NewLeafPage[K](leafPage, t.codec)

	if _, found := leaf.Lookup(key, t.cmp); found {
		t.releaseAll(txn, modeInsert)
		txn.ClearPageSet()
		return false, nil
	}

	leaf.Insert(key, value, t.cmp)
	leafPage.MarkDirty()

	if leaf.Size() <= leaf.MaxSize() {
		t.releaseAll(txn, modeInsert)
		txn.ClearPageSet()
		return true, nil
	}

	newPg, err := t.bpm.NewPage()
	if err != nil {
		t.releaseAll(txn, modeInsert)
		txn.ClearPageSet()
		return false, err
	}
	sibling := NewLeafPage[K](newPg, t.codec)
	sibling.Init(newPg.ID, leaf.ParentPageID(), t.maxLeafSize)
	leaf.MoveHalfTo(sibling)
	sibling.SetNextPageID(leaf.NextPageID())
	leaf.SetNextPageID(sibling.PageID())
	newPg.MarkDirty()

	err = t.insertIntoParent(leafPage.ID, sibling.KeyAt(0), newPg.ID, txn)
	t.bpm.UnpinPage(newPg.ID, true)
	t.releaseAll(txn, modeInsert)
	txn.ClearPageSet()
	return err == nil, err
}

// insertIntoParent walks up txn's retained ancestor chain installing
// (key, newID) after oldID, splitting internal nodes as needed and
// creating a new root if the chain is exhausted. Iterative rather than
// recursive, since the ancestor chain is already materialized in txn's
// page set.
func (t *BPlusTree[K]) insertIntoParent(oldID int64, key K, newID int64, txn Transaction) error {
	set := txn.PageSet()
	idx := len(set) - 1

	for {
		if idx == 0 {
			newRootPg, err := t.bpm.NewPage()
			if err != nil {
				return err
			}
			root := NewInternalPage[K](newRootPg, t.codec)
			root.Init(newRootPg.ID, page.InvalidID, t.maxInternalSize)
			root.PopulateNewRoot(oldID, key, newID)
			newRootPg.MarkDirty()

			if err := reparentChild(t.bpm, oldID, newRootPg.ID); err != nil {
				t.bpm.UnpinPage(newRootPg.ID, true)
				return err
			}
			if err := reparentChild(t.bpm, newID, newRootPg.ID); err != nil {
				t.bpm.UnpinPage(newRootPg.ID, true)
				return err
			}

			t.rootLatch.Lock()
			t.rootPageID = newRootPg.ID
			err = t.persistRoot(false)
			t.rootLatch.Unlock()
			t.bpm.UnpinPage(newRootPg.ID, true)
			return err
		}

		parentPage := set[idx-1]
		parent := NewInternalPage[K](parentPage, t.codec)
		parent.InsertNodeAfter(oldID, key, newID)
		parentPage.MarkDirty()
		if err := reparentChild(t.bpm, newID, parentPage.ID); err != nil {
			return err
		}

		if parent.Size() <= parent.MaxSize() {
			return nil
		}

		newParentPg, err := t.bpm.NewPage()
		if err != nil {
			return err
		}
		newParent := NewInternalPage[K](newParentPg, t.codec)
		newParent.Init(newParentPg.ID, parent.ParentPageID(), t.maxInternalSize)
		promoted, err := parent.MoveHalfTo(newParent, t.bpm)
		if err != nil {
			t.bpm.UnpinPage(newParentPg.ID, true)
			return err
		}
		newParentPg.MarkDirty()

		oldID = parentPage.ID
		newID = newParentPg.ID
		key = promoted
		idx--
		t.bpm.UnpinPage(newParentPg.ID, true)
	}
}

// Remove deletes key if present, cascading merges/redistribution and
// root collapse as needed. It is a no-op if key is absent.
func (t *BPlusTree[K]) Remove(key K, txn Transaction) error {
	if t.IsEmpty() {
		return nil
	}

	leafPage, err := t.descend(key, txn, modeRemove)
	if err != nil {
		return err
	}
	leaf := NewLeafPage[K](leafPage, t.codec)

	if _, found := leaf.Lookup(key, t.cmp); !found {
		t.releaseAll(txn, modeRemove)
		txn.ClearPageSet()
		return nil
	}
	leaf.RemoveAndDeleteRecord(key, t.cmp)
	leafPage.MarkDirty()

	if leafPage.ID == t.getRootPageID() {
		err = t.adjustRoot(leafPage, txn)
	} else if leaf.Size() < leaf.MinSize() {
		err = t.coalesceOrRedistribute(leafPage, txn)
	}

	t.releaseAll(txn, modeRemove)
	txn.ClearPageSet()
	return err
}

// coalesceOrRedistribute resolves an underflow at nodePage by borrowing
// from a sibling or merging with one, walking up txn's retained
// ancestor chain if a merge propagates an underflow further up.
func (t *BPlusTree[K]) coalesceOrRedistribute(nodePage *page.Page, txn Transaction) error {
	set := txn.PageSet()
	idx := indexOfPage(set, nodePage.ID)

	for {
		if idx <= 0 {
			return nil
		}
		parentPage := set[idx-1]
		parent := NewInternalPage[K](parentPage, t.codec)
		node := set[idx]
		pos := parent.ValueIndex(node.ID)

		var siblingIdx int
		nodeIsLeft := pos == 0
		if nodeIsLeft {
			siblingIdx = 1
		} else {
			siblingIdx = pos - 1
		}
		siblingID := parent.ValueAt(siblingIdx)

		siblingPg, err := t.bpm.FetchPage(siblingID)
		if err != nil {
			return err
		}
		siblingPg.WLatch()

		merged, underflowParent, err := t.coalesceOrRedistributeAt(parent, parentPage, node, siblingPg, nodeIsLeft)

		siblingPg.WUnlatch()
		t.bpm.UnpinPage(siblingID, true)
		if err != nil {
			return err
		}

		if !merged {
			return nil
		}
		if nodeIsLeft {
			err = t.bpm.DeletePage(siblingID)
		} else {
			node.WUnlatch()
			t.bpm.UnpinPage(node.ID, true)
			removePage(txn, node.ID)
			err = t.bpm.DeletePage(node.ID)
		}
		if err != nil {
			return err
		}

		if idx-1 == 0 {
			return t.adjustRoot(parentPage, txn)
		}
		if !underflowParent {
			return nil
		}
		idx--
	}
}

// coalesceOrRedistributeAt performs one level's worth of work: either a
// redistribution (no further propagation needed) or a merge, in which
// case merged is true and underflowParent reports whether the parent
// itself now needs attention.
func (t *BPlusTree[K]) coalesceOrRedistributeAt(parent *InternalPage[K], parentPage *page.Page, node, siblingPg *page.Page, nodeIsLeft bool) (merged bool, underflowParent bool, err error) {
	if headerPageType(node) == PageTypeLeaf {
		n := NewLeafPage[K](node, t.codec)
		s := NewLeafPage[K](siblingPg, t.codec)

		var left, right *LeafPage[K]
		var leftPg, rightPg *page.Page
		if nodeIsLeft {
			left, right, leftPg, rightPg = n, s, node, siblingPg
		} else {
			left, right, leftPg, rightPg = s, n, siblingPg, node
		}

		if left.Size()+right.Size() < left.MaxSize() {
			right.MoveAllTo(left)
			left.SetNextPageID(right.NextPageID())
			leftPg.MarkDirty()
			sepIdx := parent.ValueIndex(rightPg.ID)
			parent.Remove(sepIdx)
			parentPage.MarkDirty()
			return true, parent.Size() < parent.MinSize(), nil
		}

		if nodeIsLeft {
			s.MoveFirstToEndOf(n)
			sepIdx := parent.ValueIndex(siblingPg.ID)
			parent.SetKeyAt(sepIdx, s.KeyAt(0))
		} else {
			s.MoveLastToFrontOf(n)
			sepIdx := parent.ValueIndex(node.ID)
			parent.SetKeyAt(sepIdx, n.KeyAt(0))
		}
		leftPg.MarkDirty()
		rightPg.MarkDirty()
		parentPage.MarkDirty()
		return false, false, nil
	}

	n := NewInternalPage[K](node, t.codec)
	s := NewInternalPage[K](siblingPg, t.codec)

	var left, right *InternalPage[K]
	var leftPg, rightPg *page.Page
	if nodeIsLeft {
		left, right, leftPg, rightPg = n, s, node, siblingPg
	} else {
		left, right, leftPg, rightPg = s, n, siblingPg, node
	}

	if left.Size()+right.Size()+1 <= left.MaxSize() {
		sepIdx := parent.ValueIndex(rightPg.ID)
		sepKey := parent.KeyAt(sepIdx)
		if err := right.MoveAllTo(left, sepKey, t.bpm); err != nil {
			return false, false, err
		}
		leftPg.MarkDirty()
		parent.Remove(sepIdx)
		parentPage.MarkDirty()
		return true, parent.Size() < parent.MinSize(), nil
	}

	if nodeIsLeft {
		sepIdx := parent.ValueIndex(siblingPg.ID)
		parentKey := parent.KeyAt(sepIdx)
		promoted, err := s.MoveFirstToEndOf(n, parentKey, t.bpm)
		if err != nil {
			return false, false, err
		}
		parent.SetKeyAt(sepIdx, promoted)
	} else {
		sepIdx := parent.ValueIndex(node.ID)
		parentKey := parent.KeyAt(sepIdx)
		promoted, err := s.MoveLastToFrontOf(n, parentKey, t.bpm)
		if err != nil {
			return false, false, err
		}
		parent.SetKeyAt(sepIdx, promoted)
	}
	leftPg.MarkDirty()
	rightPg.MarkDirty()
	parentPage.MarkDirty()
	return false, false, nil
}

// adjustRoot collapses the root by one level when an internal root is
// left with a single child, or clears the tree when a leaf root is
// emptied.
func (t *BPlusTree[K]) adjustRoot(rootPage *page.Page, txn Transaction) error {
	if headerPageType(rootPage) == PageTypeInternal {
		root := NewInternalPage[K](rootPage, t.codec)
		if root.Size() != 0 {
			return nil
		}
		onlyChild := root.RemoveAndReturnOnlyChild()
		if err := reparentChild(t.bpm, onlyChild, page.InvalidID); err != nil {
			return err
		}

		t.rootLatch.Lock()
		t.rootPageID = onlyChild
		err := t.persistRoot(false)
		t.rootLatch.Unlock()
		if err != nil {
			return err
		}

		rootPage.WUnlatch()
		t.bpm.UnpinPage(rootPage.ID, true)
		removePage(txn, rootPage.ID)
		return t.bpm.DeletePage(rootPage.ID)
	}

	leaf := NewLeafPage[K](rootPage, t.codec)
	if leaf.Size() != 0 {
		return nil
	}

	t.rootLatch.Lock()
	t.rootPageID = page.InvalidID
	err := t.persistRoot(false)
	t.rootLatch.Unlock()
	if err != nil {
		return err
	}

	rootPage.WUnlatch()
	t.bpm.UnpinPage(rootPage.ID, true)
	removePage(txn, rootPage.ID)
	return t.bpm.DeletePage(rootPage.ID)
}

func indexOfPage(set []*page.Page, id int64) int {
	for i, p := range set {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func removePage(txn Transaction, id int64) {
	remaining := make([]*page.Page, 0, len(txn.PageSet()))
	for _, p := range txn.PageSet() {
		if p.ID != id {
			remaining = append(remaining, p)
		}
	}
	txn.ClearPageSet()
	for _, p := range remaining {
		txn.AddToPageSet(p)
	}
}
