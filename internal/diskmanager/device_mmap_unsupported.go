//go:build !linux && !darwin

package diskmanager

import "fmt"

func openMmapDevice(path string) (*mmapDevice, error) {
	return nil, fmt.Errorf("diskmanager: mmap backend not supported on this platform")
}

type mmapDevice struct{}

func (d *mmapDevice) ReadAt(buf []byte, off int64) (int, error)  { return 0, nil }
func (d *mmapDevice) WriteAt(buf []byte, off int64) (int, error) { return 0, nil }
func (d *mmapDevice) Truncate(size int64) error                  { return nil }
func (d *mmapDevice) Size() (int64, error)                       { return 0, nil }
func (d *mmapDevice) Sync() error                                { return nil }
func (d *mmapDevice) Close() error                               { return nil }
