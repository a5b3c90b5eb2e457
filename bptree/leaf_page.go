package bptree

import "bptreedb/internal/page"

// LeafPage is a typed view over a leaf node page: a sorted array of
// (key, RID) slots plus a next-leaf pointer. It never pointer-casts the
// page's Data; every field is read and written at a computed byte
// offset.
type LeafPage[K any] struct {
	pg    *page.Page
	codec KeyCodec[K]
}

// NewLeafPage wraps an already-fetched page as a leaf view.
func NewLeafPage[K any](pg *page.Page, codec KeyCodec[K]) *LeafPage[K] {
	return &LeafPage[K]{pg: pg, codec: codec}
}

func (l *LeafPage[K]) slotWidth() int { return l.codec.EncodedSize() + RIDSize }
func (l *LeafPage[K]) slotOffset(i int) int {
	return leafHeaderSize + i*l.slotWidth()
}

// Init formats pg as a fresh, empty leaf with the given identity and
// capacity.
func (l *LeafPage[K]) Init(pageID, parentPageID int64, maxSize int) {
	setHeaderPageType(l.pg, PageTypeLeaf)
	setHeaderSize(l.pg, 0)
	setHeaderMaxSize(l.pg, maxSize)
	setHeaderParentPageID(l.pg, parentPageID)
	setHeaderPageID(l.pg, pageID)
	setHeaderNextPageID(l.pg, page.InvalidID)
}

func (l *LeafPage[K]) PageID() int64       { return headerPageID(l.pg) }
func (l *LeafPage[K]) ParentPageID() int64 { return headerParentPageID(l.pg) }
func (l *LeafPage[K]) Size() int           { return headerSize(l.pg) }
func (l *LeafPage[K]) MaxSize() int        { return headerMaxSize(l.pg) }
func (l *LeafPage[K]) MinSize() int        { return (l.MaxSize() + 1) / 2 }
func (l *LeafPage[K]) NextPageID() int64   { return headerNextPageID(l.pg) }
func (l *LeafPage[K]) SetNextPageID(id int64) { setHeaderNextPageID(l.pg, id) }

// KeyAt returns the key stored at slot i.
func (l *LeafPage[K]) KeyAt(i int) K {
	off := l.slotOffset(i)
	return l.codec.Decode(l.pg.Data[off : off+l.codec.EncodedSize()])
}

// RIDAt returns the RID stored at slot i.
func (l *LeafPage[K]) RIDAt(i int) RID {
	off := l.slotOffset(i) + l.codec.EncodedSize()
	return DecodeRID(l.pg.Data[off : off+RIDSize])
}

func (l *LeafPage[K]) setSlot(i int, key K, rid RID) {
	off := l.slotOffset(i)
	ks := l.codec.EncodedSize()
	l.codec.Encode(key, l.pg.Data[off:off+ks])
	rid.Encode(l.pg.Data[off+ks : off+ks+RIDSize])
}

// KeyIndex returns the smallest slot index i such that KeyAt(i) >= key,
// or Size() if no such slot exists (the standard lower-bound search).
func (l *LeafPage[K]) KeyIndex(key K, cmp Comparator[K]) int {
	lo, hi := 0, l.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(l.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup returns the RID for key, if present.
func (l *LeafPage[K]) Lookup(key K, cmp Comparator[K]) (RID, bool) {
	i := l.KeyIndex(key, cmp)
	if i < l.Size() && cmp(l.KeyAt(i), key) == 0 {
		return l.RIDAt(i), true
	}
	return RID{}, false
}

// Insert inserts (key, value) in sorted position and returns the new
// size. A key already present is left unchanged and the current size is
// returned.
func (l *LeafPage[K]) Insert(key K, value RID, cmp Comparator[K]) int {
	i := l.KeyIndex(key, cmp)
	n := l.Size()
	if i < n && cmp(l.KeyAt(i), key) == 0 {
		return n
	}
	for j := n; j > i; j-- {
		k, r := l.KeyAt(j-1), l.RIDAt(j-1)
		l.setSlot(j, k, r)
	}
	l.setSlot(i, key, value)
	n++
	setHeaderSize(l.pg, n)
	return n
}

// RemoveAndDeleteRecord removes key if present and returns the new
// size.
func (l *LeafPage[K]) RemoveAndDeleteRecord(key K, cmp Comparator[K]) int {
	i := l.KeyIndex(key, cmp)
	n := l.Size()
	if i >= n || cmp(l.KeyAt(i), key) != 0 {
		return n
	}
	for j := i; j < n-1; j++ {
		k, r := l.KeyAt(j+1), l.RIDAt(j+1)
		l.setSlot(j, k, r)
	}
	n--
	setHeaderSize(l.pg, n)
	return n
}

// MoveHalfTo moves the upper half of l's entries to recipient, which
// must be empty. Used when l overflows on insert.
func (l *LeafPage[K]) MoveHalfTo(recipient *LeafPage[K]) {
	n := l.Size()
	split := n / 2
	for i := split; i < n; i++ {
		recipient.setSlot(i-split, l.KeyAt(i), l.RIDAt(i))
	}
	setHeaderSize(recipient.pg, n-split)
	setHeaderSize(l.pg, split)
}

// MoveAllTo appends all of l's entries to the end of recipient and
// empties l. Used when l and a sibling coalesce below capacity.
func (l *LeafPage[K]) MoveAllTo(recipient *LeafPage[K]) {
	base := recipient.Size()
	n := l.Size()
	for i := 0; i < n; i++ {
		recipient.setSlot(base+i, l.KeyAt(i), l.RIDAt(i))
	}
	setHeaderSize(recipient.pg, base+n)
	setHeaderSize(l.pg, 0)
}

// MoveFirstToEndOf moves l's first entry to the end of recipient.
func (l *LeafPage[K]) MoveFirstToEndOf(recipient *LeafPage[K]) {
	k, r := l.KeyAt(0), l.RIDAt(0)
	recipient.setSlot(recipient.Size(), k, r)
	setHeaderSize(recipient.pg, recipient.Size()+1)

	n := l.Size()
	for i := 0; i < n-1; i++ {
		l.setSlot(i, l.KeyAt(i+1), l.RIDAt(i+1))
	}
	setHeaderSize(l.pg, n-1)
}

// MoveLastToFrontOf moves l's last entry to the front of recipient.
func (l *LeafPage[K]) MoveLastToFrontOf(recipient *LeafPage[K]) {
	n := l.Size()
	k, r := l.KeyAt(n-1), l.RIDAt(n-1)

	rn := recipient.Size()
	for i := rn; i > 0; i-- {
		rk, rr := recipient.KeyAt(i-1), recipient.RIDAt(i-1)
		recipient.setSlot(i, rk, rr)
	}
	recipient.setSlot(0, k, r)
	setHeaderSize(recipient.pg, rn+1)
	setHeaderSize(l.pg, n-1)
}
