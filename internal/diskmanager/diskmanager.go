// Package diskmanager persists pages to a single index file. Each page is
// written inside a frame that prefixes an xxhash64 checksum of the page
// body, so corruption is detected on read without changing the bit-exact
// 4096-byte page layout the bptree package operates on.
package diskmanager

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"bptreedb/internal/page"
	"bptreedb/internal/xerrors"
)

const checksumSize = 8
const frameSize = checksumSize + page.Size

// Backend selects the blockDevice implementation a Manager is opened
// with.
type Backend int

const (
	// BackendFile uses plain ReadAt/WriteAt on an *os.File.
	BackendFile Backend = iota
	// BackendMMap memory-maps the file. Linux/darwin only.
	BackendMMap
)

// Manager owns the on-disk index file: page allocation, framed
// read/write, and a reusable free list for deallocated pages.
type Manager struct {
	mu       sync.Mutex
	dev      blockDevice
	nextPage int64
	freeList []int64
	closed   bool
}

// Open opens or creates the index file at path with the given backend.
func Open(path string, backend Backend) (*Manager, error) {
	var (
		dev blockDevice
		err error
	)
	switch backend {
	case BackendMMap:
		dev, err = openMmapDevice(path)
	default:
		dev, err = openFileDevice(path)
	}
	if err != nil {
		return nil, fmt.Errorf("diskmanager: open %s: %w", path, err)
	}

	size, err := dev.Size()
	if err != nil {
		dev.Close()
		return nil, err
	}
	if size < frameSize {
		if err := dev.Truncate(frameSize); err != nil {
			dev.Close()
			return nil, err
		}
		size = frameSize
	}

	// Page id 0 is reserved for the header page; logical page ids
	// therefore start at 1. The mmap device reports its whole mapping as
	// its size, so there allocation starts after the frames it covers.
	numFrames := size / frameSize
	next := int64(1)
	if numFrames > next {
		next = numFrames
	}

	return &Manager{dev: dev, nextPage: next}, nil
}

// AllocatePage reserves a page id without writing anything to it yet, so
// a failure here happens before any node bytes are touched.
func (m *Manager) AllocatePage() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return page.InvalidID, xerrors.ErrClosed
	}

	if n := len(m.freeList); n > 0 {
		id := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return id, nil
	}

	id := m.nextPage
	if err := m.dev.Truncate((id + 1) * frameSize); err != nil {
		return page.InvalidID, fmt.Errorf("%w: %v", xerrors.ErrOutOfMemory, err)
	}
	m.nextPage++
	return id, nil
}

// DeallocatePage returns a page id to the free list for reuse.
func (m *Manager) DeallocatePage(pageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return xerrors.ErrClosed
	}
	m.freeList = append(m.freeList, pageID)
	return nil
}

// ReadPage reads and checksum-verifies the page at pageID into dst.
func (m *Manager) ReadPage(pageID int64, dst *page.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return xerrors.ErrClosed
	}

	var frame [frameSize]byte
	off := pageID * frameSize
	n, err := m.dev.ReadAt(frame[:], off)
	if err != nil && n == 0 {
		return fmt.Errorf("diskmanager: read page %d: %w", pageID, err)
	}

	wantSum := binary.LittleEndian.Uint64(frame[:checksumSize])
	body := frame[checksumSize:]

	if wantSum == 0 && allZero(body) {
		// Never-written page: treat as a zeroed, uninitialized page.
		dst.ID = pageID
		dst.Data = [page.Size]byte{}
		return nil
	}

	if xxhash.Sum64(body) != wantSum {
		return fmt.Errorf("%w: page %d checksum mismatch", xerrors.ErrCorruption, pageID)
	}

	dst.ID = pageID
	copy(dst.Data[:], body)
	return nil
}

// WritePage checksums and writes src's body to its own page id.
func (m *Manager) WritePage(src *page.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return xerrors.ErrClosed
	}

	var frame [frameSize]byte
	sum := xxhash.Sum64(src.Data[:])
	binary.LittleEndian.PutUint64(frame[:checksumSize], sum)
	copy(frame[checksumSize:], src.Data[:])

	off := src.ID * frameSize
	size, err := m.dev.Size()
	if err != nil {
		return fmt.Errorf("diskmanager: size before page %d: %w", src.ID, err)
	}
	if size < off+frameSize {
		if err := m.dev.Truncate(off + frameSize); err != nil {
			return fmt.Errorf("diskmanager: grow for page %d: %w", src.ID, err)
		}
	}
	if _, err := m.dev.WriteAt(frame[:], off); err != nil {
		return fmt.Errorf("diskmanager: write page %d: %w", src.ID, err)
	}
	return nil
}

// Sync flushes all pending writes to stable storage.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return xerrors.ErrClosed
	}
	return m.dev.Sync()
}

// Close syncs and closes the backing device.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if err := m.dev.Sync(); err != nil {
		m.dev.Close()
		return err
	}
	return m.dev.Close()
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
