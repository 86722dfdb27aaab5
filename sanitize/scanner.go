package sanitize

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

// Block is one scanned region. Data aliases the caller's buffer and is only
// valid until the next call into the scanner.
type Block struct {
	Region
	Data  []byte
	Dirty bool
}

// Scanner walks a device in ascending, contiguous, non-overlapping regions of
// blockSize bytes. The final region of a finite device is the remainder.
// With an unknown length (-1) the walk ends at the first zero-byte read.
type Scanner struct {
	r         io.ReaderAt
	blockSize int
	start     int64
	length    int64 // end offset, -1 when unknown
	next      int64
	done      bool
}

func NewScanner(r io.ReaderAt, blockSize int, length int64) *Scanner {
	return newRangeScanner(r, blockSize, Region{Offset: 0, Length: length})
}

// newRangeScanner walks rg only. A negative rg.Length walks to exhaustion.
func newRangeScanner(r io.ReaderAt, blockSize int, rg Region) *Scanner {
	end := int64(-1)
	if rg.Length >= 0 {
		end = rg.End()
	}
	return &Scanner{r: r, blockSize: blockSize, start: rg.Offset, length: end, next: rg.Offset}
}

// Reset restarts the walk at its first offset.
func (s *Scanner) Reset() {
	s.next = s.start
	s.done = false
}

// Offset returns the offset the next region will start at.
func (s *Scanner) Offset() int64 { return s.next }

// NextRegion advances over the layout without reading. It needs a known
// length and returns io.EOF past the last region.
func (s *Scanner) NextRegion() (Region, error) {
	if s.length < 0 {
		return Region{}, errors.New("layout walk needs a known device length")
	}
	if s.done || s.next >= s.length {
		s.done = true
		return Region{}, io.EOF
	}
	r := Region{Offset: s.next, Length: s.want()}
	s.next = r.End()
	return r, nil
}

// Next reads the next region into buf and classifies it. buf must hold at
// least blockSize bytes. It returns io.EOF when the walk is over and a
// ReadFailure *Error when the device cannot be read; after a failure the
// scanner stays exhausted because later boundaries are no longer trusted.
func (s *Scanner) Next(buf []byte) (Block, error) {
	if s.done {
		return Block{}, io.EOF
	}
	if s.length >= 0 && s.next >= s.length {
		s.done = true
		return Block{}, io.EOF
	}
	want := s.want()
	off := s.next
	n, err := s.r.ReadAt(buf[:want], off)
	if s.length < 0 {
		n, err = s.fill(buf[:want], off, n, err)
	}

	switch {
	case s.length >= 0:
		if int64(n) != want {
			if err == nil || isEOF(err) {
				err = io.ErrUnexpectedEOF
			}
			s.done = true
			return Block{}, newError(ReadFailure, off+int64(n), err)
		}
	case n == 0:
		s.done = true
		if err == nil || isEOF(err) {
			return Block{}, io.EOF
		}
		return Block{}, newError(ReadFailure, off, err)
	case err != nil && !isEOF(err):
		s.done = true
		return Block{}, newError(ReadFailure, off+int64(n), err)
	}

	data := buf[:n]
	s.next = off + int64(n)
	return Block{
		Region: Region{Offset: off, Length: int64(n)},
		Data:   data,
		Dirty:  !isZero(data),
	}, nil
}

// fill resumes a short read that came back without an error, so regions
// of an unknown-length walk stay block aligned. Only the region where the
// device ends may be short.
func (s *Scanner) fill(p []byte, off int64, n int, err error) (int, error) {
	for err == nil && n > 0 && n < len(p) {
		var m int
		m, err = s.r.ReadAt(p[n:], off+int64(n))
		if m == 0 && err == nil {
			break
		}
		n += m
	}
	return n, err
}

func (s *Scanner) want() int64 {
	want := int64(s.blockSize)
	if s.length >= 0 && s.length-s.next < want {
		want = s.length - s.next
	}
	return want
}

// RegionCount is ceil(length/blockSize).
func RegionCount(length int64, blockSize int) int64 {
	if length <= 0 {
		return 0
	}
	b := int64(blockSize)
	return (length + b - 1) / b
}

func isZero(b []byte) bool {
	for len(b) >= 8 {
		if binary.LittleEndian.Uint64(b) != 0 {
			return false
		}
		b = b[8:]
	}
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
