package bptree

import (
	"fmt"

	"bptreedb/internal/bufferpool"
	"bptreedb/internal/dblog"
	"bptreedb/internal/diskmanager"
	"bptreedb/internal/header"
	"bptreedb/internal/page"
	"bptreedb/internal/xerrors"
)

// VerifyIndexFile opens indexName within the file at path through a real
// buffer pool (unlike InspectIndexFile, which reads pages directly off
// disk) and walks its structure end to end, checking every B+Tree
// invariant: internal key ordering and child-subtree containment,
// non-root minimum occupancy, a leaf chain that visits every leaf
// exactly once in ascending order, parent/child slot containment, and
// agreement between the header-persisted root id and the tree's own.
// log receives a trace line per page visited; pass dblog.Nop{} to run
// silently.
func VerifyIndexFile[K any](path, indexName string, codec KeyCodec[K], cmp Comparator[K], log dblog.Logger) error {
	dm, err := diskmanager.Open(path, diskmanager.BackendFile)
	if err != nil {
		return err
	}
	defer dm.Close()

	bpm, err := bufferpool.New(64, dm, log)
	if err != nil {
		return err
	}
	defer bpm.Close()

	hdr := header.New(bpm)
	tree, err := New[K](indexName, bpm, hdr, codec, cmp, 0, 0)
	if err != nil {
		return err
	}

	return verifyTree(tree, log)
}

func verifyTree[K any](tree *BPlusTree[K], log dblog.Logger) error {
	rootID := tree.getRootPageID()

	persisted, ok, err := tree.header.RootPageID(tree.indexName)
	if err != nil {
		return err
	}
	if rootID == page.InvalidID {
		if ok && persisted != page.InvalidID {
			return fmt.Errorf("verify %q: %w: header records root %d for an empty tree", tree.indexName, xerrors.ErrCorruption, persisted)
		}
		log.Info("verify: tree is empty", "index", tree.indexName)
		return nil
	}
	if !ok || persisted != rootID {
		return fmt.Errorf("verify %q: %w: header root %d disagrees with in-memory root %d", tree.indexName, xerrors.ErrCorruption, persisted, rootID)
	}

	leaves := map[int64]bool{}
	if err := verifyNode(tree, rootID, page.InvalidID, rootID, leaves, log); err != nil {
		return err
	}
	return verifyLeafChain(tree, rootID, leaves, log)
}

func verifyNode[K any](tree *BPlusTree[K], id, parentID, rootID int64, leaves map[int64]bool, log dblog.Logger) error {
	pg, err := tree.bpm.FetchPage(id)
	if err != nil {
		return err
	}
	defer tree.bpm.UnpinPage(id, false)

	if headerParentPageID(pg) != parentID {
		return fmt.Errorf("verify: node %d: %w: parent_page_id %d, want %d", id, xerrors.ErrCorruption, headerParentPageID(pg), parentID)
	}

	if headerPageType(pg) == PageTypeLeaf {
		leaves[id] = true
		log.Debug("verify: visiting leaf", "page_id", id, "size", headerSize(pg))
		if id != rootID && headerSize(pg) < (headerMaxSize(pg)+1)/2 {
			return fmt.Errorf("verify: leaf %d: %w: underflows minimum occupancy", id, xerrors.ErrCorruption)
		}
		l := NewLeafPage[K](pg, tree.codec)
		for i := 1; i < l.Size(); i++ {
			if tree.cmp(l.KeyAt(i-1), l.KeyAt(i)) >= 0 {
				return fmt.Errorf("verify: leaf %d: %w: keys not strictly ascending", id, xerrors.ErrCorruption)
			}
		}
		return nil
	}

	log.Debug("verify: visiting internal node", "page_id", id, "size", headerSize(pg))
	if id != rootID && headerSize(pg) < (headerMaxSize(pg)+1)/2 {
		return fmt.Errorf("verify: internal %d: %w: underflows minimum occupancy", id, xerrors.ErrCorruption)
	}
	n := NewInternalPage[K](pg, tree.codec)
	for i := 2; i <= n.Size(); i++ {
		if tree.cmp(n.KeyAt(i-1), n.KeyAt(i)) >= 0 {
			return fmt.Errorf("verify: internal %d: %w: keys not strictly ascending", id, xerrors.ErrCorruption)
		}
	}

	children := make([]int64, n.Size()+1)
	for i := range children {
		children[i] = n.ValueAt(i)
	}
	for i, child := range children {
		least, err := minKeyOf(tree, child)
		if err != nil {
			return err
		}
		if i == 0 {
			if n.Size() > 0 && tree.cmp(least, n.KeyAt(1)) >= 0 {
				return fmt.Errorf("verify: internal %d: %w: slot 0 child has a key >= key_1", id, xerrors.ErrCorruption)
			}
		} else if tree.cmp(least, n.KeyAt(i)) < 0 {
			return fmt.Errorf("verify: internal %d: %w: child %d has least key below its separator", id, xerrors.ErrCorruption, child)
		}
	}

	for _, child := range children {
		if err := verifyNode(tree, child, id, rootID, leaves, log); err != nil {
			return err
		}
	}
	return nil
}

func minKeyOf[K any](tree *BPlusTree[K], id int64) (K, error) {
	var zero K
	for {
		pg, err := tree.bpm.FetchPage(id)
		if err != nil {
			return zero, err
		}
		if headerPageType(pg) == PageTypeLeaf {
			l := NewLeafPage[K](pg, tree.codec)
			k := l.KeyAt(0)
			tree.bpm.UnpinPage(id, false)
			return k, nil
		}
		n := NewInternalPage[K](pg, tree.codec)
		next := n.ValueAt(0)
		tree.bpm.UnpinPage(id, false)
		id = next
	}
}

func verifyLeafChain[K any](tree *BPlusTree[K], rootID int64, leaves map[int64]bool, log dblog.Logger) error {
	id := rootID
	for {
		pg, err := tree.bpm.FetchPage(id)
		if err != nil {
			return err
		}
		if headerPageType(pg) == PageTypeLeaf {
			tree.bpm.UnpinPage(id, false)
			break
		}
		n := NewInternalPage[K](pg, tree.codec)
		next := n.ValueAt(0)
		tree.bpm.UnpinPage(id, false)
		id = next
	}

	seen := map[int64]bool{}
	var prev K
	havePrev := false
	for id != page.InvalidID {
		if seen[id] {
			return fmt.Errorf("verify: leaf chain: %w: revisits page %d", xerrors.ErrCorruption, id)
		}
		seen[id] = true

		pg, err := tree.bpm.FetchPage(id)
		if err != nil {
			return err
		}
		l := NewLeafPage[K](pg, tree.codec)
		for i := 0; i < l.Size(); i++ {
			k := l.KeyAt(i)
			if havePrev && tree.cmp(prev, k) >= 0 {
				tree.bpm.UnpinPage(id, false)
				return fmt.Errorf("verify: leaf chain: %w: keys not strictly ascending at page %d", xerrors.ErrCorruption, id)
			}
			prev = k
			havePrev = true
		}
		next := l.NextPageID()
		tree.bpm.UnpinPage(id, false)
		id = next
	}

	if len(seen) != len(leaves) {
		return fmt.Errorf("verify: leaf chain: %w: visited %d leaves, tree has %d", xerrors.ErrCorruption, len(seen), len(leaves))
	}
	log.Info("verify: ok", "leaves", len(leaves))
	return nil
}
