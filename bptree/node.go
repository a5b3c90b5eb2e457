package bptree

import (
	"encoding/binary"

	"bptreedb/internal/page"
)

// PageType distinguishes leaf from internal node pages, stored in the
// common header's first field.
type PageType int32

const (
	PageTypeInvalid PageType = iota
	PageTypeInternal
	PageTypeLeaf
)

// Common node header layout:
//
//	page_type      4 bytes  offset 0
//	lsn            4 bytes  offset 4   (unused: no crash-recovery logging)
//	size           4 bytes  offset 8
//	max_size       4 bytes  offset 12
//	parent_page_id 4 bytes  offset 16
//	page_id        4 bytes  offset 20
//
// Leaf pages append next_page_id (4 bytes) at offset 24.
//
// Page ids flow through the rest of the module as int64 (room to grow
// past a 32-bit page id), but the on-disk header fields above are 4
// bytes each to keep node pages byte-exact; they are truncated to int32
// on write and sign-extended on read. This bounds a single index file
// to under 2^31 pages, which no realistic instance reaches.
const (
	offPageType       = 0
	offLSN            = 4
	offSize           = 8
	offMaxSize        = 12
	offParentPageID   = 16
	offPageID         = 20
	commonHeaderSize  = 24
	offNextPageID     = commonHeaderSize
	leafHeaderSize    = offNextPageID + 4
	internalHeaderSize = commonHeaderSize
)

func headerPageType(pg *page.Page) PageType {
	return PageType(int32(binary.LittleEndian.Uint32(pg.Data[offPageType:])))
}

func setHeaderPageType(pg *page.Page, t PageType) {
	binary.LittleEndian.PutUint32(pg.Data[offPageType:], uint32(t))
}

func headerSize(pg *page.Page) int {
	return int(int32(binary.LittleEndian.Uint32(pg.Data[offSize:])))
}

func setHeaderSize(pg *page.Page, n int) {
	binary.LittleEndian.PutUint32(pg.Data[offSize:], uint32(int32(n)))
}

func headerMaxSize(pg *page.Page) int {
	return int(int32(binary.LittleEndian.Uint32(pg.Data[offMaxSize:])))
}

func setHeaderMaxSize(pg *page.Page, n int) {
	binary.LittleEndian.PutUint32(pg.Data[offMaxSize:], uint32(int32(n)))
}

func headerParentPageID(pg *page.Page) int64 {
	return int64(int32(binary.LittleEndian.Uint32(pg.Data[offParentPageID:])))
}

func setHeaderParentPageID(pg *page.Page, id int64) {
	binary.LittleEndian.PutUint32(pg.Data[offParentPageID:], uint32(int32(id)))
}

func headerPageID(pg *page.Page) int64 {
	return int64(int32(binary.LittleEndian.Uint32(pg.Data[offPageID:])))
}

func setHeaderPageID(pg *page.Page, id int64) {
	binary.LittleEndian.PutUint32(pg.Data[offPageID:], uint32(int32(id)))
}

func headerNextPageID(pg *page.Page) int64 {
	return int64(int32(binary.LittleEndian.Uint32(pg.Data[offNextPageID:])))
}

func setHeaderNextPageID(pg *page.Page, id int64) {
	binary.LittleEndian.PutUint32(pg.Data[offNextPageID:], uint32(int32(id)))
}

// reparentChild fetches childID and rewrites its parent_page_id, used
// whenever a child pointer moves to a different internal node (splits,
// merges, redistribution, and new-root population). The child's latch
// is not taken here: a child on the caller's own latched path is
// already W-latched by that caller.
func reparentChild(bpm BufferPoolManager, childID, newParentID int64) error {
	child, err := bpm.FetchPage(childID)
	if err != nil {
		return err
	}
	setHeaderParentPageID(child, newParentID)
	child.MarkDirty()
	return bpm.UnpinPage(childID, true)
}
