package sanitize

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// Kind classifies a failure by the phase that produced it.
type Kind int

const (
	// Unclassified is returned by KindOf for errors that are not *Error.
	Unclassified Kind = iota
	ConfirmationRejected
	DeviceOpenFailure
	LengthQueryFailure
	VolumeLockFailure
	ReadFailure
	WriteFailure
	VerificationMismatch
)

func (k Kind) String() string {
	switch k {
	case ConfirmationRejected:
		return "confirmation rejected"
	case DeviceOpenFailure:
		return "device open failure"
	case LengthQueryFailure:
		return "length query failure"
	case VolumeLockFailure:
		return "volume lock failure"
	case ReadFailure:
		return "read failure"
	case WriteFailure:
		return "write failure"
	case VerificationMismatch:
		return "verification mismatch"
	default:
		return "unclassified"
	}
}

// PreDestructive reports whether failures of this kind happen before any
// byte has been written.
func (k Kind) PreDestructive() bool {
	switch k {
	case ConfirmationRejected, DeviceOpenFailure, VolumeLockFailure:
		return true
	}
	return false
}

var (
	// ErrEndOfDevice marks the graceful end of an unknown-length device.
	ErrEndOfDevice = errors.New("end of device")

	// ErrLengthUnknown is returned by Sizer implementations with no probe.
	ErrLengthUnknown = errors.New("device length unknown")
)

// Error carries the kind and device offset of a failure.
type Error struct {
	Kind   Kind
	Offset int64
	Err    error
}

func newError(k Kind, off int64, err error) *Error {
	return &Error{Kind: k, Offset: off, Err: err}
}

func (e *Error) Error() string {
	switch e.Kind {
	case ReadFailure, WriteFailure, VerificationMismatch:
		if e.Err == nil {
			return fmt.Sprintf("%s at offset %d", e.Kind, e.Offset)
		}
		return fmt.Sprintf("%s at offset %d: %v", e.Kind, e.Offset, e.Err)
	}
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Unclassified
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// isEOF treats io.EOF and io.ErrUnexpectedEOF alike: both end a read.
func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
