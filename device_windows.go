//go:build windows

package main

import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/windows"

	"zerotrace/sanitize"
)

const (
	fileFlagWriteThrough        = 0x80000000
	ioctlStorageGetDeviceNumber = 0x2D1080
)

type storageDeviceNumber struct {
	DeviceType      uint32
	DeviceNumber    uint32
	PartitionNumber uint32
}

func openHandle(path string, access uint32, flags uint32) (*os.File, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(p, access,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, flags, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return os.NewFile(uintptr(h), path), nil
}

// openRawDevice opens a physical drive with write-through so every write
// bypasses the OS cache.
func openRawDevice(path string) (sanitize.Device, error) {
	f, err := openHandle(path, windows.GENERIC_READ|windows.GENERIC_WRITE, fileFlagWriteThrough)
	if err != nil {
		return nil, errors.WithHint(err, "run as Administrator and close programs using the drive")
	}
	return sanitize.NewFileDevice(f, queryLength), nil
}

func openReadOnlyDevice(path string) (sanitize.Device, error) {
	f, err := openHandle(path, windows.GENERIC_READ, 0)
	if err != nil {
		return nil, err
	}
	return sanitize.NewFileDevice(f, queryLength), nil
}

func isEndOfDevice(err error) bool {
	return errors.Is(err, windows.ERROR_HANDLE_DISK_FULL) || errors.Is(err, windows.ERROR_DISK_FULL)
}

// normalizeDevicePath expands a bare drive number to \\.\PhysicalDriveN and
// maps a volume path like \\.\E: to the physical drive holding it.
func normalizeDevicePath(p string) string {
	if p == "" {
		return p
	}
	if isDigits(p) {
		return `\\.\PhysicalDrive` + p
	}
	letter, ok := volumeLetter(p)
	if !ok {
		return p
	}
	n, err := physicalDriveOf(letter)
	if err != nil {
		return p
	}
	return fmt.Sprintf(`\\.\PhysicalDrive%d`, n)
}

// normalizeVolume expands a bare letter to \\.\E: and maps NONE to "".
func normalizeVolume(v string) string {
	if v == "" || strings.EqualFold(v, "NONE") {
		return ""
	}
	if letter, ok := volumeLetter(v); ok {
		return `\\.\` + letter + `:`
	}
	return v
}

// volumeLetter accepts "E", "E:", `E:\` and `\\.\E:`.
func volumeLetter(v string) (string, bool) {
	v = strings.TrimPrefix(v, `\\.\`)
	v = strings.TrimSuffix(strings.TrimSuffix(v, `\`), ":")
	if len(v) != 1 {
		return "", false
	}
	c := strings.ToUpper(v)
	if c < "A" || c > "Z" {
		return "", false
	}
	return c, true
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func physicalDriveOf(letter string) (uint32, error) {
	f, err := openHandle(`\\.\`+letter+`:`, windows.GENERIC_READ, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		out      storageDeviceNumber
		returned uint32
	)
	err = windows.DeviceIoControl(windows.Handle(f.Fd()), ioctlStorageGetDeviceNumber,
		nil, 0, (*byte)(unsafe.Pointer(&out)), uint32(unsafe.Sizeof(out)), &returned, nil)
	if err != nil {
		return 0, errors.Wrap(err, "IOCTL_STORAGE_GET_DEVICE_NUMBER")
	}
	return out.DeviceNumber, nil
}
