//go:build linux

package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMountinfo = `22 1 259:2 / / rw,relatime shared:1 - ext4 /dev/nvme0n1p2 rw
25 22 0:22 / /proc rw,nosuid shared:12 - proc proc rw
41 22 8:17 / /media/u/My\040Disk rw,nosuid shared:30 - vfat /dev/sdb1 rw,fmask=0022
42 22 8:18 / /media/u/tab\011and\134slash rw shared:31 - exfat /dev/sdb2 rw
`

func TestReadMountsDecodesEscapes(t *testing.T) {
	mounts, err := readMounts(strings.NewReader(sampleMountinfo))
	require.NoError(t, err)
	require.Len(t, mounts, 3, "pseudo filesystems are dropped")

	m, ok := findMount(mounts, "/media/u/My Disk")
	require.True(t, ok)
	assert.Equal(t, "/dev/sdb1", m.Device)
	assert.Equal(t, "vfat", m.FSType)

	m, ok = findMount(mounts, "/media/u/tab\tand\\slash")
	require.True(t, ok)
	assert.Equal(t, "/dev/sdb2", m.Device)

	assert.Len(t, mountsOf(mounts, "/dev/sdb"), 2)
}
