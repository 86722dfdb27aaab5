//go:build windows

package main

import (
	"os"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/windows"
)

const ioctlDiskGetLengthInfo = 0x7405C

// queryLength returns the byte length of a regular file or raw disk handle.
func queryLength(f *os.File) (int64, error) {
	if st, err := f.Stat(); err == nil && st.Mode().IsRegular() {
		return st.Size(), nil
	}
	var (
		length   int64
		returned uint32
	)
	err := windows.DeviceIoControl(
		windows.Handle(f.Fd()),
		ioctlDiskGetLengthInfo,
		nil, 0,
		(*byte)(unsafe.Pointer(&length)), uint32(unsafe.Sizeof(length)),
		&returned, nil,
	)
	if err != nil {
		return 0, errors.Wrap(err, "IOCTL_DISK_GET_LENGTH_INFO")
	}
	return length, nil
}
