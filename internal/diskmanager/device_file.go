package diskmanager

import "os"

// fileDevice is the default blockDevice, backed by ReadAt/WriteAt on an
// *os.File.
type fileDevice struct {
	f *os.File
}

func openFileDevice(path string) (*fileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileDevice{f: f}, nil
}

func (d *fileDevice) ReadAt(buf []byte, off int64) (int, error)  { return d.f.ReadAt(buf, off) }
func (d *fileDevice) WriteAt(buf []byte, off int64) (int, error) { return d.f.WriteAt(buf, off) }
func (d *fileDevice) Truncate(size int64) error                  { return d.f.Truncate(size) }
func (d *fileDevice) Sync() error                                { return d.f.Sync() }
func (d *fileDevice) Close() error                               { return d.f.Close() }

func (d *fileDevice) Size() (int64, error) {
	stat, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}
