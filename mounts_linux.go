//go:build linux

package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

func listMounts() []mountedVol {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return nil
	}
	defer f.Close()
	mounts, err := readMounts(f)
	if err != nil {
		return nil
	}
	return mounts
}

// readMounts keeps the block-device mounts of a mountinfo table. Escaped
// paths ("My\040Disk") come back decoded.
func readMounts(r io.Reader) ([]mountedVol, error) {
	infos, err := mountinfo.GetMountsFromReader(r, func(i *mountinfo.Info) (skip, stop bool) {
		return !strings.HasPrefix(i.Source, "/dev/"), false
	})
	if err != nil {
		return nil, err
	}
	out := make([]mountedVol, 0, len(infos))
	for _, i := range infos {
		m := mountedVol{
			Device:     i.Source,
			MountPoint: filepath.Clean(i.Mountpoint),
			FSType:     i.FSType,
		}
		var st unix.Statfs_t
		if unix.Statfs(m.MountPoint, &st) == nil {
			m.SizeBytes = int64(st.Blocks) * int64(st.Bsize)
		}
		out = append(out, m)
	}
	return out, nil
}
