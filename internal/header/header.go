// Package header implements the header page contract consumed by
// bptree: a catalog, fixed at HeaderPageID (0), mapping index name to
// root page id. A single header page can hold the catalog entries for
// any number of indexes sharing one file.
package header

import (
	"encoding/binary"
	"fmt"
	"sync"

	"bptreedb/internal/bufferpool"
	"bptreedb/internal/page"
)

// HeaderPageID is the fixed page id the catalog lives at.
const HeaderPageID int64 = 0

// Page is the header page: a catalog of (index name -> root page id).
type Page struct {
	bpm *bufferpool.Manager
	mu  sync.Mutex
}

// New wraps a buffer pool manager with header-page catalog operations.
func New(bpm *bufferpool.Manager) *Page {
	return &Page{bpm: bpm}
}

// RootPageID looks up the root page id registered for name.
func (h *Page) RootPageID(name string) (int64, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pg, err := h.bpm.FetchPage(HeaderPageID)
	if err != nil {
		return page.InvalidID, false, err
	}
	defer h.bpm.UnpinPage(HeaderPageID, false)

	recs, err := decode(pg.Data[:])
	if err != nil {
		return page.InvalidID, false, err
	}
	id, ok := recs[name]
	return id, ok, nil
}

// InsertRecord creates a new (name -> rootPageID) mapping. Called the
// first time an index's root changes from INVALID_PAGE_ID.
func (h *Page) InsertRecord(name string, rootPageID int64) error {
	return h.mutate(name, rootPageID, true)
}

// UpdateRecord overwrites an existing mapping. Called on every subsequent
// root change.
func (h *Page) UpdateRecord(name string, rootPageID int64) error {
	return h.mutate(name, rootPageID, false)
}

func (h *Page) mutate(name string, rootPageID int64, insert bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pg, err := h.bpm.FetchPage(HeaderPageID)
	if err != nil {
		return err
	}

	recs, err := decode(pg.Data[:])
	if err != nil {
		h.bpm.UnpinPage(HeaderPageID, false)
		return err
	}

	if _, exists := recs[name]; insert && exists {
		h.bpm.UnpinPage(HeaderPageID, false)
		return fmt.Errorf("header: index %q already registered", name)
	}
	recs[name] = rootPageID

	buf, err := encode(recs)
	if err != nil {
		h.bpm.UnpinPage(HeaderPageID, false)
		return err
	}
	copy(pg.Data[:], buf)

	return h.bpm.UnpinPage(HeaderPageID, true)
}

// On-disk format: [uint32 count]{[uint16 nameLen][name][int64 rootPageID]}*
func decode(data []byte) (map[string]int64, error) {
	recs := make(map[string]int64)
	if len(data) < 4 {
		return recs, nil
	}
	count := binary.LittleEndian.Uint32(data[:4])
	off := 4
	for i := uint32(0); i < count; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("header: truncated record %d", i)
		}
		nameLen := int(binary.LittleEndian.Uint16(data[off : off+2]))
		off += 2
		if off+nameLen+8 > len(data) {
			return nil, fmt.Errorf("header: truncated record %d", i)
		}
		name := string(data[off : off+nameLen])
		off += nameLen
		rootID := int64(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
		recs[name] = rootID
	}
	return recs, nil
}

func encode(recs map[string]int64) ([]byte, error) {
	buf := make([]byte, page.Size)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(recs)))
	off := 4
	for name, rootID := range recs {
		need := 2 + len(name) + 8
		if off+need > page.Size {
			return nil, fmt.Errorf("header: catalog page full, cannot add %q", name)
		}
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(name)))
		off += 2
		copy(buf[off:off+len(name)], name)
		off += len(name)
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(rootID))
		off += 8
	}
	return buf, nil
}
