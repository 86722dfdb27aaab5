// Package sanitize overwrites block devices with fixed pattern plans and
// verifies the result byte for byte.
//
// The engine streams a device through one reusable block-sized buffer. It
// classifies each region as clean or dirty, applies the passes of a plan to
// the regions a mode selects, flushes, and optionally re-reads the device to
// prove the outcome. Platform handle acquisition, volume locking and operator
// prompting live outside this package and are reached through the Device,
// VolumeLocker and confirmation hooks.
package sanitize

import (
	"io"
	"os"
)

// Device is the raw block target. ReadAt and WriteAt follow the io.ReaderAt
// and io.WriterAt contracts; Flush commits any write-back cache.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Flush() error
	Close() error
}

// Sizer is implemented by devices that can report their length. A device
// without it, or one whose Length fails, is walked until exhaustion.
type Sizer interface {
	Length() (int64, error)
}

// Region is the half-open byte range [Offset, Offset+Length).
type Region struct {
	Offset int64
	Length int64
}

// End returns the first offset past the region.
func (r Region) End() int64 { return r.Offset + r.Length }

// Index returns the region's block number for the given block size.
func (r Region) Index(blockSize int) uint {
	return uint(r.Offset / int64(blockSize))
}

// FileDevice adapts an *os.File opened on a disk, partition or image.
type FileDevice struct {
	f      *os.File
	length func(*os.File) (int64, error)
}

// NewFileDevice wraps f. length may be nil when the size cannot be probed.
func NewFileDevice(f *os.File, length func(*os.File) (int64, error)) *FileDevice {
	return &FileDevice{f: f, length: length}
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error)  { return d.f.ReadAt(p, off) }
func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) { return d.f.WriteAt(p, off) }

// Flush issues fsync so later reads observe committed data.
func (d *FileDevice) Flush() error { return d.f.Sync() }

func (d *FileDevice) Close() error { return d.f.Close() }

// Name returns the path the file was opened with.
func (d *FileDevice) Name() string { return d.f.Name() }

// Length queries the device size through the platform probe.
func (d *FileDevice) Length() (int64, error) {
	if d.length == nil {
		return 0, ErrLengthUnknown
	}
	return d.length(d.f)
}

// deviceLength resolves the device length, returning -1 when unknown.
func deviceLength(dev Device) (int64, error) {
	s, ok := dev.(Sizer)
	if !ok {
		return -1, nil
	}
	n, err := s.Length()
	if err != nil {
		return -1, newError(LengthQueryFailure, 0, err)
	}
	if n < 0 {
		return -1, nil
	}
	return n, nil
}
