package sanitize

import (
	"io"

	"github.com/cockroachdb/errors"
)

// Writer applies one buffer at one offset, resuming short writes.
type Writer struct {
	dev io.WriterAt
	eod func(error) bool
}

// NewWriter returns a writer over dev. eod classifies platform errors that
// mean "no more device" (ENOSPC, ERROR_HANDLE_DISK_FULL); io.EOF always does.
func NewWriter(dev io.WriterAt, eod func(error) bool) *Writer {
	return &Writer{dev: dev, eod: eod}
}

// Write writes all of buf at off. On a short write it retries with the
// unwritten suffix. A write that makes no progress because the device has
// ended returns ErrEndOfDevice together with the bytes already written; any
// other failure is a WriteFailure *Error at the first unwritten offset.
func (w *Writer) Write(off int64, buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := w.dev.WriteAt(buf[written:], off+int64(written))
		if n < 0 || n > len(buf)-written {
			return written, newError(WriteFailure, off+int64(written), errors.Newf("device reported %d bytes written", n))
		}
		written += n
		switch {
		case err == nil:
			if n == 0 {
				return written, ErrEndOfDevice
			}
		case n > 0 && errors.Is(err, io.ErrShortWrite):
			// retry the suffix
		case n == 0 && w.endOfDevice(err):
			return written, ErrEndOfDevice
		default:
			return written, newError(WriteFailure, off+int64(written), err)
		}
	}
	return written, nil
}

func (w *Writer) endOfDevice(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	return w.eod != nil && w.eod(err)
}
