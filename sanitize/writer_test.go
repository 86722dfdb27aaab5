package sanitize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type writerAtFunc func(p []byte, off int64) (int, error)

func (f writerAtFunc) WriteAt(p []byte, off int64) (int, error) { return f(p, off) }

func TestWriterResumesShortWrites(t *testing.T) {
	dev := newMemDevice(make([]byte, 10))
	dev.maxWrite = 3

	n, err := NewWriter(dev, nil).Write(0, filled(10, 0xAB))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, filled(10, 0xAB), dev.data)

	var offs, lens []int64
	for _, w := range dev.writes {
		offs = append(offs, w.Offset)
		lens = append(lens, w.Length)
	}
	assert.Equal(t, []int64{0, 3, 6, 9}, offs, "each retry starts at the unwritten suffix")
	assert.Equal(t, []int64{10, 7, 4, 1}, lens)
}

func TestWriterFailureOffset(t *testing.T) {
	boom := errors.New("io error")
	dev := newMemDevice(make([]byte, 16))
	dev.maxWrite = 4
	dev.failWrite = map[int64]error{4: boom}

	n, err := NewWriter(dev, nil).Write(0, filled(8, 0xFF))
	assert.Equal(t, 4, n)
	require.Error(t, err)
	assert.True(t, IsKind(err, WriteFailure))
	assert.ErrorIs(t, err, boom)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(4), se.Offset)
}

func TestWriterEndOfDevice(t *testing.T) {
	dev := newMemDevice(make([]byte, 6))

	n, err := NewWriter(dev, nil).Write(4, filled(4, 0x11))
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, ErrEndOfDevice)
	assert.Equal(t, []byte{0, 0, 0, 0, 0x11, 0x11}, dev.data)
}

func TestWriterZeroProgress(t *testing.T) {
	dev := writerAtFunc(func(p []byte, off int64) (int, error) { return 0, nil })

	n, err := NewWriter(dev, nil).Write(0, make([]byte, 4))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrEndOfDevice)
}

func TestWriterPlatformEndOfDevice(t *testing.T) {
	diskFull := errors.New("no space left on device")
	dev := writerAtFunc(func(p []byte, off int64) (int, error) { return 0, diskFull })

	_, err := NewWriter(dev, func(err error) bool { return errors.Is(err, diskFull) }).Write(0, make([]byte, 4))
	assert.ErrorIs(t, err, ErrEndOfDevice)

	_, err = NewWriter(dev, nil).Write(0, make([]byte, 4))
	assert.True(t, IsKind(err, WriteFailure), "without a classifier the error is a write failure")
}

func TestWriterRejectsBogusCount(t *testing.T) {
	dev := writerAtFunc(func(p []byte, off int64) (int, error) { return len(p) + 1, nil })

	_, err := NewWriter(dev, nil).Write(0, make([]byte, 4))
	assert.True(t, IsKind(err, WriteFailure))
}
