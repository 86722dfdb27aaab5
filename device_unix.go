//go:build !windows

package main

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"zerotrace/sanitize"
)

// openRawDevice opens path for synchronous read-write access; every
// WriteAt returns only once the data has reached the device.
func openRawDevice(path string) (sanitize.Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return sanitize.NewFileDevice(f, queryLength), nil
}

func openReadOnlyDevice(path string) (sanitize.Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return sanitize.NewFileDevice(f, queryLength), nil
}

// isEndOfDevice reports the errors a block device returns for writes past
// its last sector.
func isEndOfDevice(err error) bool {
	return errors.Is(err, unix.ENOSPC)
}

func normalizeDevicePath(p string) string { return p }

// normalizeVolume maps NONE to "no volume".
func normalizeVolume(v string) string {
	if strings.EqualFold(v, "NONE") {
		return ""
	}
	return v
}
