//go:build darwin

package main

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

func listMounts() []mountedVol {
	n, err := unix.Getfsstat(nil, unix.MNT_NOWAIT)
	if err != nil || n <= 0 {
		return nil
	}
	buf := make([]unix.Statfs_t, n)
	if _, err := unix.Getfsstat(buf, unix.MNT_NOWAIT); err != nil {
		return nil
	}
	out := make([]mountedVol, 0, len(buf))
	for _, st := range buf {
		out = append(out, mountedVol{
			MountPoint: filepath.Clean(unix.ByteSliceToString(st.Mntonname[:])),
			Device:     unix.ByteSliceToString(st.Mntfromname[:]),
			FSType:     unix.ByteSliceToString(st.Fstypename[:]),
			SizeBytes:  int64(st.Blocks) * int64(st.Bsize),
		})
	}
	return out
}
