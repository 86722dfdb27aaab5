//go:build !windows

package main

import (
	"os"
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

const (
	blkGetSize64       = 0x80081272 // BLKGETSIZE64, Linux
	dkiocGetBlockSize  = 0x40046418 // DKIOCGETBLOCKSIZE, _IOR('d', 24, uint32)
	dkiocGetBlockCount = 0x40086419 // DKIOCGETBLOCKCOUNT, _IOR('d', 25, uint64)
)

// queryLength returns the byte length of a regular file or block device.
func queryLength(f *os.File) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat")
	}
	if st.Mode().IsRegular() {
		return st.Size(), nil
	}

	fd := f.Fd()
	if runtime.GOOS == "linux" {
		var size uint64
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, blkGetSize64, uintptr(unsafe.Pointer(&size))); errno != 0 {
			return 0, errors.Wrap(errno, "BLKGETSIZE64")
		}
		return int64(size), nil
	}

	var (
		blockSize  uint32
		blockCount uint64
	)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, dkiocGetBlockSize, uintptr(unsafe.Pointer(&blockSize))); errno != 0 {
		return 0, errors.Wrap(errno, "DKIOCGETBLOCKSIZE")
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, dkiocGetBlockCount, uintptr(unsafe.Pointer(&blockCount))); errno != 0 {
		return 0, errors.Wrap(errno, "DKIOCGETBLOCKCOUNT")
	}
	return int64(blockSize) * int64(blockCount), nil
}
