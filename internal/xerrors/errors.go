// Package xerrors declares the sentinel error kinds surfaced by the
// storage and index layers.
package xerrors

import "errors"

var (
	// ErrOutOfMemory means the buffer pool could not provide a new page
	// during allocation. Fatal to the current operation.
	ErrOutOfMemory = errors.New("buffer pool: out of memory, cannot allocate page")

	// ErrDuplicateKey means Insert was called with a key already present
	// in the index. Recovered locally by the caller.
	ErrDuplicateKey = errors.New("bptree: duplicate key")

	// ErrNotFound means GetValue or Remove was called with an absent key.
	// Not an error condition, just an empty result.
	ErrNotFound = errors.New("bptree: key not found")

	// ErrAllPinned means the buffer pool could not fetch a required page
	// because every frame is pinned.
	ErrAllPinned = errors.New("buffer pool: all frames pinned, cannot evict")

	// ErrCorruption means an invariant was violated on a page read from
	// disk: unexpected page type, size out of range, or checksum mismatch.
	ErrCorruption = errors.New("storage: page corruption detected")

	// ErrClosed means an operation was attempted after the owning
	// manager was closed.
	ErrClosed = errors.New("storage: manager is closed")
)
