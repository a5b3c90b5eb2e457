package bptree

import "bptreedb/internal/page"

// InternalPage is a typed view over an internal node page: size+1 child
// pointers separated by size keys, where slot 0's key is unused (the
// separator for child 0 lives in the parent, per the standard B+Tree
// convention).
type InternalPage[K any] struct {
	pg    *page.Page
	codec KeyCodec[K]
}

// NewInternalPage wraps an already-fetched page as an internal view.
func NewInternalPage[K any](pg *page.Page, codec KeyCodec[K]) *InternalPage[K] {
	return &InternalPage[K]{pg: pg, codec: codec}
}

const childIDSize = 4

func (n *InternalPage[K]) slotWidth() int { return n.codec.EncodedSize() + childIDSize }
func (n *InternalPage[K]) slotOffset(i int) int {
	return internalHeaderSize + i*n.slotWidth()
}

// Init formats pg as a fresh, empty internal node.
func (n *InternalPage[K]) Init(pageID, parentPageID int64, maxSize int) {
	setHeaderPageType(n.pg, PageTypeInternal)
	setHeaderSize(n.pg, 0)
	setHeaderMaxSize(n.pg, maxSize)
	setHeaderParentPageID(n.pg, parentPageID)
	setHeaderPageID(n.pg, pageID)
}

func (n *InternalPage[K]) PageID() int64       { return headerPageID(n.pg) }
func (n *InternalPage[K]) ParentPageID() int64 { return headerParentPageID(n.pg) }

// Size returns the number of keys. There are Size()+1 children.
func (n *InternalPage[K]) Size() int    { return headerSize(n.pg) }
func (n *InternalPage[K]) MaxSize() int { return headerMaxSize(n.pg) }
func (n *InternalPage[K]) MinSize() int { return (n.MaxSize() + 1) / 2 }

// KeyAt returns the separator key at index i. Index 0 is never
// meaningful and must not be read.
func (n *InternalPage[K]) KeyAt(i int) K {
	off := n.slotOffset(i)
	return n.codec.Decode(n.pg.Data[off : off+n.codec.EncodedSize()])
}

// SetKeyAt overwrites the separator key at index i.
func (n *InternalPage[K]) SetKeyAt(i int, k K) {
	off := n.slotOffset(i)
	n.codec.Encode(k, n.pg.Data[off:off+n.codec.EncodedSize()])
}

// ValueAt returns the child page id at index i.
func (n *InternalPage[K]) ValueAt(i int) int64 {
	off := n.slotOffset(i) + n.codec.EncodedSize()
	return int64(int32(leUint32(n.pg.Data[off : off+4])))
}

// SetValueAt overwrites the child page id at index i.
func (n *InternalPage[K]) SetValueAt(i int, childID int64) {
	off := n.slotOffset(i) + n.codec.EncodedSize()
	putLeUint32(n.pg.Data[off:off+4], int32(childID))
}

// ValueIndex returns the slot index holding childID, or -1.
func (n *InternalPage[K]) ValueIndex(childID int64) int {
	for i := 0; i <= n.Size(); i++ {
		if n.ValueAt(i) == childID {
			return i
		}
	}
	return -1
}

// Lookup returns the child page id to descend into for key. Slot 0's
// child covers everything less than KeyAt(1); an exact match on a
// separator descends into the right subtree, since a separator key is
// the minimum key of the subtree it precedes.
func (n *InternalPage[K]) Lookup(key K, cmp Comparator[K]) int64 {
	lo, hi := 1, n.Size()+1
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.KeyAt(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return n.ValueAt(lo - 1)
}

// PopulateNewRoot formats n (already Init'd) as a new root with exactly
// two children, used when the old root splits.
func (n *InternalPage[K]) PopulateNewRoot(leftChild int64, midKey K, rightChild int64) {
	n.SetValueAt(0, leftChild)
	n.SetKeyAt(1, midKey)
	n.SetValueAt(1, rightChild)
	setHeaderSize(n.pg, 1)
}

// InsertNodeAfter inserts newChild (with separator newKey) immediately
// after oldChild and returns the new size.
func (n *InternalPage[K]) InsertNodeAfter(oldChild int64, newKey K, newChild int64) int {
	pos := n.ValueIndex(oldChild)
	size := n.Size()
	for i := size; i > pos; i-- {
		n.SetKeyAt(i+1, n.KeyAt(i))
		n.SetValueAt(i+1, n.ValueAt(i))
	}
	n.SetKeyAt(pos+1, newKey)
	n.SetValueAt(pos+1, newChild)
	size++
	setHeaderSize(n.pg, size)
	return size
}

// Remove deletes the key/child pair at index i (i must be >= 1).
func (n *InternalPage[K]) Remove(i int) {
	size := n.Size()
	for j := i; j < size; j++ {
		n.SetKeyAt(j, n.KeyAt(j+1))
		n.SetValueAt(j, n.ValueAt(j+1))
	}
	setHeaderSize(n.pg, size-1)
}

// RemoveAndReturnOnlyChild empties n (which must have exactly one
// child) and returns that child's page id. Used by AdjustRoot when the
// root collapses by a level.
func (n *InternalPage[K]) RemoveAndReturnOnlyChild() int64 {
	child := n.ValueAt(0)
	setHeaderSize(n.pg, 0)
	return child
}

// MoveHalfTo moves the upper half of n's children (and their separator
// keys) to recipient, which must be empty, and reparents every moved
// child via bpm. The key previously separating the two halves is
// removed from both pages; it is returned so the caller can promote it
// to the parent as the new separator between n and recipient.
func (n *InternalPage[K]) MoveHalfTo(recipient *InternalPage[K], bpm BufferPoolManager) (K, error) {
	size := n.Size()
	total := size + 1
	split := total / 2
	promoted := n.KeyAt(split)

	for i := split; i < total; i++ {
		childID := n.ValueAt(i)
		idx := i - split
		if idx > 0 {
			recipient.SetKeyAt(idx, n.KeyAt(i))
		}
		recipient.SetValueAt(idx, childID)
		if err := reparentChild(bpm, childID, recipient.PageID()); err != nil {
			return promoted, err
		}
	}
	setHeaderSize(recipient.pg, total-split-1)
	setHeaderSize(n.pg, split-1)
	return promoted, nil
}

// MoveAllTo appends all of n's children to the end of recipient,
// pulling down separatorKey (supplied by the caller from the parent,
// since internal slot 0 carries no key of its own) as the separator
// between recipient's last existing child and n's first child. Used
// when n and a sibling coalesce below capacity.
func (n *InternalPage[K]) MoveAllTo(recipient *InternalPage[K], separatorKey K, bpm BufferPoolManager) error {
	base := recipient.Size() + 1
	total := n.Size() + 1

	for i := 0; i < total; i++ {
		childID := n.ValueAt(i)
		idx := base + i
		if i == 0 {
			recipient.SetKeyAt(idx, separatorKey)
		} else {
			recipient.SetKeyAt(idx, n.KeyAt(i))
		}
		recipient.SetValueAt(idx, childID)
		if err := reparentChild(bpm, childID, recipient.PageID()); err != nil {
			return err
		}
	}
	setHeaderSize(recipient.pg, base+total-1)
	setHeaderSize(n.pg, 0)
	return nil
}

// MoveFirstToEndOf moves n's first child to the end of recipient, using
// parentKey (the old separator between n and recipient) as recipient's
// newly-appended key. It returns the key that must become the new
// parent separator between them: n's own key at index 1, captured
// before the shift, since slot 0 never carries a key of its own.
func (n *InternalPage[K]) MoveFirstToEndOf(recipient *InternalPage[K], parentKey K, bpm BufferPoolManager) (K, error) {
	childID := n.ValueAt(0)
	promoted := n.KeyAt(1)

	rIdx := recipient.Size() + 1
	recipient.SetKeyAt(rIdx, parentKey)
	recipient.SetValueAt(rIdx, childID)
	setHeaderSize(recipient.pg, recipient.Size()+1)
	if err := reparentChild(bpm, childID, recipient.PageID()); err != nil {
		return promoted, err
	}

	size := n.Size()
	for i := 1; i < size; i++ {
		n.SetKeyAt(i, n.KeyAt(i+1))
	}
	for i := 0; i < size; i++ {
		n.SetValueAt(i, n.ValueAt(i+1))
	}
	setHeaderSize(n.pg, size-1)
	return promoted, nil
}

// MoveLastToFrontOf moves n's last child to the front of recipient,
// using parentKey (the old separator between n and recipient) as the
// key placed just after the moved child. It returns the key that must
// become the new parent separator: n's own last key, captured before
// the shrink.
func (n *InternalPage[K]) MoveLastToFrontOf(recipient *InternalPage[K], parentKey K, bpm BufferPoolManager) (K, error) {
	size := n.Size()
	childID := n.ValueAt(size)
	promoted := n.KeyAt(size)
	setHeaderSize(n.pg, size-1)

	rSize := recipient.Size()
	for i := rSize; i > 0; i-- {
		recipient.SetValueAt(i+1, recipient.ValueAt(i))
		recipient.SetKeyAt(i+1, recipient.KeyAt(i))
	}
	recipient.SetValueAt(1, recipient.ValueAt(0))
	recipient.SetKeyAt(1, parentKey)
	recipient.SetValueAt(0, childID)
	setHeaderSize(recipient.pg, rSize+1)
	if err := reparentChild(bpm, childID, recipient.PageID()); err != nil {
		return promoted, err
	}
	return promoted, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLeUint32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}
