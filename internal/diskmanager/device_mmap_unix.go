//go:build linux || darwin

package diskmanager

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// initialMmapSize is the sparse-file size a fresh mmap-backed device
// starts at; it grows by doubling as pages are allocated past it.
const initialMmapSize = 16 * 1024 * 1024

// mmapDevice is an opt-in blockDevice backed by a memory-mapped file,
// grounded on alexhholmes-fredb/internal/storage/mmap_unix.go. Unlike the
// default fileDevice, reads and writes are plain memory copies instead of
// syscalls.
type mmapDevice struct {
	mu   sync.Mutex
	f    *os.File
	data []byte
}

func openMmapDevice(path string) (*mmapDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := stat.Size()
	if size == 0 {
		size = initialMmapSize
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return &mmapDevice{f: f, data: data}, nil
}

func (d *mmapDevice) ReadAt(buf []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if off < 0 || off+int64(len(buf)) > int64(len(d.data)) {
		return 0, fmt.Errorf("mmap device: read out of range at offset %d", off)
	}
	return copy(buf, d.data[off:off+int64(len(buf))]), nil
}

func (d *mmapDevice) WriteAt(buf []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if off < 0 || off+int64(len(buf)) > int64(len(d.data)) {
		return 0, fmt.Errorf("mmap device: write out of range at offset %d", off)
	}
	return copy(d.data[off:off+int64(len(buf))], buf), nil
}

// Truncate grows the backing file and remaps it when size exceeds the
// current mapping. Shrinking is a no-op; nothing in this module ever
// shrinks the file.
func (d *mmapDevice) Truncate(size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if size <= int64(len(d.data)) {
		return nil
	}

	newSize := int64(len(d.data))
	if newSize == 0 {
		newSize = initialMmapSize
	}
	for newSize < size {
		newSize *= 2
	}

	if err := d.f.Truncate(newSize); err != nil {
		return err
	}
	if err := unix.Munmap(d.data); err != nil {
		return fmt.Errorf("munmap during grow: %w", err)
	}
	data, err := unix.Mmap(int(d.f.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("remap during grow: %w", err)
	}
	d.data = data
	return nil
}

func (d *mmapDevice) Size() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.data)), nil
}

func (d *mmapDevice) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return unix.Msync(d.data, unix.MS_SYNC)
}

func (d *mmapDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := unix.Munmap(d.data); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}
