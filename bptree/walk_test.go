package bptree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bptreedb/internal/bufferpool"
	"bptreedb/internal/diskmanager"
	"bptreedb/internal/header"
	"bptreedb/internal/page"
	"bptreedb/internal/txn"
)

// newWalkableTree is like newTestTree but also returns the header page so
// walkTree can compare the persisted root id against the in-memory one.
func newWalkableTree(t *testing.T) (*BPlusTree[int32], *header.Page) {
	t.Helper()
	dm, err := diskmanager.Open(filepath.Join(t.TempDir(), "walk.idx"), diskmanager.BackendFile)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })

	bpm, err := bufferpool.New(64, dm, nil)
	require.NoError(t, err)
	t.Cleanup(func() { bpm.Close() })

	hdr := header.New(bpm)
	tree, err := New[int32]("walk_pk", bpm, hdr, Int32Codec{}, CompareInt32, 4, 4)
	require.NoError(t, err)
	return tree, hdr
}

func sign(c int) int {
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	default:
		return 0
	}
}

// minKey descends leftmost from id to return the smallest key in its
// subtree.
func minKey[K any](t *testing.T, tree *BPlusTree[K], id int64) K {
	t.Helper()
	for {
		pg, err := tree.bpm.FetchPage(id)
		require.NoError(t, err)
		if headerPageType(pg) == PageTypeLeaf {
			l := NewLeafPage[K](pg, tree.codec)
			k := l.KeyAt(0)
			tree.bpm.UnpinPage(id, false)
			return k
		}
		n := NewInternalPage[K](pg, tree.codec)
		next := n.ValueAt(0)
		tree.bpm.UnpinPage(id, false)
		id = next
	}
}

func leftmostLeaf[K any](t *testing.T, tree *BPlusTree[K], rootID int64) int64 {
	t.Helper()
	id := rootID
	for {
		pg, err := tree.bpm.FetchPage(id)
		require.NoError(t, err)
		if headerPageType(pg) == PageTypeLeaf {
			tree.bpm.UnpinPage(id, false)
			return id
		}
		n := NewInternalPage[K](pg, tree.codec)
		next := n.ValueAt(0)
		tree.bpm.UnpinPage(id, false)
		id = next
	}
}

// walkTree checks the five structural invariants against the tree's
// current on-disk state:
//
//  1. internal key ordering and child-subtree containment
//  2. non-root minimum occupancy
//  3. a leaf-chain traversal from the leftmost leaf visits every leaf
//     exactly once, in strictly ascending key order, and terminates at
//     page.InvalidID
//  4. every non-root node's page id appears exactly once in its parent
//  5. the header-persisted root id agrees with the in-memory one
func walkTree[K any](t *testing.T, tree *BPlusTree[K], hdr *header.Page) {
	t.Helper()

	rootID := tree.getRootPageID()

	persisted, ok, err := hdr.RootPageID(tree.indexName)
	require.NoError(t, err)
	if rootID == page.InvalidID {
		require.True(t, !ok || persisted == page.InvalidID, "header records a live root for an empty tree")
		return
	}
	require.True(t, ok, "header has no root record for a non-empty tree")
	require.Equal(t, rootID, persisted, "persisted root disagrees with in-memory root")

	leaves := map[int64]bool{}
	var visit func(id, parentID int64)
	visit = func(id, parentID int64) {
		pg, err := tree.bpm.FetchPage(id)
		require.NoError(t, err)
		defer tree.bpm.UnpinPage(id, false)

		require.Equal(t, parentID, headerParentPageID(pg), "node %d has wrong parent_page_id", id)

		if headerPageType(pg) == PageTypeLeaf {
			leaves[id] = true
			if id != rootID {
				require.GreaterOrEqual(t, headerSize(pg), (headerMaxSize(pg)+1)/2, "leaf %d underflows minimum occupancy", id)
			}
			l := NewLeafPage[K](pg, tree.codec)
			for i := 1; i < l.Size(); i++ {
				require.Equal(t, -1, sign(tree.cmp(l.KeyAt(i-1), l.KeyAt(i))), "leaf %d keys not strictly ascending", id)
			}
			return
		}

		if id != rootID {
			require.GreaterOrEqual(t, headerSize(pg), (headerMaxSize(pg)+1)/2, "internal %d underflows minimum occupancy", id)
		}
		n := NewInternalPage[K](pg, tree.codec)
		for i := 2; i <= n.Size(); i++ {
			require.Equal(t, -1, sign(tree.cmp(n.KeyAt(i-1), n.KeyAt(i))), "internal %d keys not strictly ascending", id)
		}
		for i := 0; i <= n.Size(); i++ {
			child := n.ValueAt(i)
			least := minKey(t, tree, child)
			if i == 0 {
				if n.Size() > 0 {
					require.Equal(t, -1, sign(tree.cmp(least, n.KeyAt(1))), "slot 0 child of %d has a key >= key_1", id)
				}
			} else {
				require.GreaterOrEqual(t, sign(tree.cmp(least, n.KeyAt(i))), 0, "child %d of %d has least key below its separator", child, id)
			}
		}
		for i := 0; i <= n.Size(); i++ {
			visit(n.ValueAt(i), id)
		}
	}
	visit(rootID, page.InvalidID)

	leftmost := leftmostLeaf(t, tree, rootID)
	seen := map[int64]bool{}
	var prevKey K
	havePrev := false
	id := leftmost
	for id != page.InvalidID {
		require.False(t, seen[id], "leaf chain revisits page %d", id)
		seen[id] = true

		pg, err := tree.bpm.FetchPage(id)
		require.NoError(t, err)
		l := NewLeafPage[K](pg, tree.codec)
		for i := 0; i < l.Size(); i++ {
			k := l.KeyAt(i)
			if havePrev {
				require.Equal(t, -1, sign(tree.cmp(prevKey, k)), "leaf chain keys not strictly ascending at page %d", id)
			}
			prevKey = k
			havePrev = true
		}
		next := l.NextPageID()
		tree.bpm.UnpinPage(id, false)
		id = next
	}
	require.Equal(t, len(leaves), len(seen), "leaf chain did not visit every leaf exactly once")
	for leafID := range leaves {
		require.True(t, seen[leafID], "leaf chain never visited leaf %d", leafID)
	}
}

func TestWalkInvariantsHoldThroughInsertsAndRemoves(t *testing.T) {
	tree, hdr := newWalkableTree(t)
	tx := txn.New(1)

	for i := int32(0); i < 30; i++ {
		_, err := tree.Insert(i, rid(int(i)), tx)
		require.NoError(t, err)
		walkTree(t, tree, hdr)
	}
	for i := int32(0); i < 30; i += 3 {
		require.NoError(t, tree.Remove(i, tx))
		walkTree(t, tree, hdr)
	}
}

// Sequential insert of 1..4 stays a single leaf.
func TestScenario1_SingleLeaf(t *testing.T) {
	tree, hdr := newWalkableTree(t)
	tx := txn.New(1)

	for i := int32(1); i <= 4; i++ {
		ok, err := tree.Insert(i, rid(int(i)), tx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	walkTree(t, tree, hdr)

	rootID := tree.getRootPageID()
	pg, err := tree.bpm.FetchPage(rootID)
	require.NoError(t, err)
	require.Equal(t, PageTypeLeaf, headerPageType(pg))
	leaf := NewLeafPage[int32](pg, tree.codec)
	require.Equal(t, 4, leaf.Size())
	for i := 0; i < 4; i++ {
		require.Equal(t, int32(i+1), leaf.KeyAt(i))
	}
	tree.bpm.UnpinPage(rootID, false)

	got, err := tree.GetValue(3, tx)
	require.NoError(t, err)
	require.Equal(t, []RID{rid(3)}, got)

	it, err := tree.Begin(tx)
	require.NoError(t, err)
	var keys []int32
	for it.Valid() {
		keys = append(keys, it.Key())
		require.NoError(t, it.Next())
	}
	require.Equal(t, []int32{1, 2, 3, 4}, keys)
}

// Inserting 1..5 splits the leaf and promotes a new root:
// [_,L1][3,L2], L1={1,2}, L2={3,4,5}, L1.next=L2.
func TestScenario2_LeafSplitPromotesRoot(t *testing.T) {
	tree, hdr := newWalkableTree(t)
	tx := txn.New(1)

	for i := int32(1); i <= 5; i++ {
		ok, err := tree.Insert(i, rid(int(i)), tx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	walkTree(t, tree, hdr)

	rootID := tree.getRootPageID()
	rootPg, err := tree.bpm.FetchPage(rootID)
	require.NoError(t, err)
	require.Equal(t, PageTypeInternal, headerPageType(rootPg))
	root := NewInternalPage[int32](rootPg, tree.codec)
	require.Equal(t, 1, root.Size())
	require.Equal(t, int32(3), root.KeyAt(1))
	l1ID := root.ValueAt(0)
	l2ID := root.ValueAt(1)
	tree.bpm.UnpinPage(rootID, false)

	l1Pg, err := tree.bpm.FetchPage(l1ID)
	require.NoError(t, err)
	l1 := NewLeafPage[int32](l1Pg, tree.codec)
	require.Equal(t, 2, l1.Size())
	require.Equal(t, int32(1), l1.KeyAt(0))
	require.Equal(t, int32(2), l1.KeyAt(1))
	require.Equal(t, l2ID, l1.NextPageID())
	tree.bpm.UnpinPage(l1ID, false)

	l2Pg, err := tree.bpm.FetchPage(l2ID)
	require.NoError(t, err)
	l2 := NewLeafPage[int32](l2Pg, tree.codec)
	require.Equal(t, 3, l2.Size())
	require.Equal(t, int32(3), l2.KeyAt(0))
	require.Equal(t, int32(4), l2.KeyAt(1))
	require.Equal(t, int32(5), l2.KeyAt(2))
	tree.bpm.UnpinPage(l2ID, false)
}

// Insert 1..10 then remove 5.
func TestScenario3_RemoveMiddleKey(t *testing.T) {
	tree, hdr := newWalkableTree(t)
	tx := txn.New(1)

	for i := int32(1); i <= 10; i++ {
		_, err := tree.Insert(i, rid(int(i)), tx)
		require.NoError(t, err)
	}
	require.NoError(t, tree.Remove(5, tx))
	walkTree(t, tree, hdr)

	got, err := tree.GetValue(5, tx)
	require.NoError(t, err)
	require.Empty(t, got)

	it, err := tree.Begin(tx)
	require.NoError(t, err)
	var keys []int32
	for it.Valid() {
		keys = append(keys, it.Key())
		require.NoError(t, it.Next())
	}
	require.Equal(t, []int32{1, 2, 3, 4, 6, 7, 8, 9, 10}, keys)
}

// Insert 1..10 then remove 1,2,3, which underflows the leftmost leaf
// and forces a coalesce or redistribution.
func TestScenario4_RemovesTriggerCoalesceOrRedistribute(t *testing.T) {
	tree, hdr := newWalkableTree(t)
	tx := txn.New(1)

	for i := int32(1); i <= 10; i++ {
		_, err := tree.Insert(i, rid(int(i)), tx)
		require.NoError(t, err)
	}
	for _, k := range []int32{1, 2, 3} {
		require.NoError(t, tree.Remove(k, tx))
	}
	walkTree(t, tree, hdr)

	it, err := tree.Begin(tx)
	require.NoError(t, err)
	var keys []int32
	for it.Valid() {
		keys = append(keys, it.Key())
		require.NoError(t, it.Next())
	}
	var want []int32
	for i := int32(4); i <= 10; i++ {
		want = append(want, i)
	}
	require.Equal(t, want, keys)
}

// Insert 1..20 then remove them in reverse order.
func TestScenario5_FullDrainClearsRoot(t *testing.T) {
	tree, hdr := newWalkableTree(t)
	tx := txn.New(1)

	for i := int32(1); i <= 20; i++ {
		_, err := tree.Insert(i, rid(int(i)), tx)
		require.NoError(t, err)
	}
	for i := int32(20); i >= 1; i-- {
		require.NoError(t, tree.Remove(i, tx))
	}

	require.True(t, tree.IsEmpty())
	persisted, ok, err := hdr.RootPageID("walk_pk")
	require.NoError(t, err)
	require.True(t, ok, "header lost the index's record after the tree was fully drained")
	require.Equal(t, page.InvalidID, persisted, "header record does not show an invalid root after the tree was fully drained")
}

// Inserting a duplicate key is rejected and leaves the original value
// in place.
func TestScenario6_DuplicateInsertRejected(t *testing.T) {
	tree, hdr := newWalkableTree(t)
	tx := txn.New(1)

	ok, err := tree.Insert(7, RID{FileID: 1, PageID: 0, SlotID: 0}, tx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(7, RID{FileID: 1, PageID: 1, SlotID: 0}, tx)
	require.NoError(t, err)
	require.False(t, ok)
	walkTree(t, tree, hdr)

	got, err := tree.GetValue(7, tx)
	require.NoError(t, err)
	require.Equal(t, []RID{{FileID: 1, PageID: 0, SlotID: 0}}, got)
}
