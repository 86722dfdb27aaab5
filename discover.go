package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// deviceInfo is one discovered block device. Compatible devices are whole
// disks that may be passed to --device.
type deviceInfo struct {
	Path       string
	Compatible bool
	Reason     string
}

type mountedVol struct {
	MountPoint string
	Device     string
	FSType     string
	SizeBytes  int64
}

var (
	linuxWhole     = regexp.MustCompile(`^((sd|vd|hd|xvd)[a-z]+|nvme\d+n\d+|mmcblk\d+)$`)
	linuxPartition = regexp.MustCompile(`^((sd|vd|hd|xvd)[a-z]+\d+|nvme\d+n\d+p\d+|mmcblk\d+p\d+)$`)
	darwinWhole    = regexp.MustCompile(`^r?disk\d+$`)
	darwinPart     = regexp.MustCompile(`^r?disk\d+s\d+$`)
)

func discoverDevices() ([]deviceInfo, error) {
	switch runtime.GOOS {
	case "darwin":
		return discoverDir("/dev", darwinWhole, darwinPart)
	case "linux":
		return discoverDir("/dev", linuxWhole, linuxPartition)
	case "windows":
		return discoverWindows(), nil
	}
	return nil, errors.Newf("unsupported OS: %s", runtime.GOOS)
}

func discoverDir(dir string, whole, part *regexp.Regexp) ([]deviceInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", dir)
	}
	var infos []deviceInfo
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		switch {
		case whole.MatchString(name):
			infos = append(infos, deviceInfo{Path: path, Compatible: true})
		case part.MatchString(name):
			infos = append(infos, deviceInfo{Path: path, Reason: "partition"})
		case strings.HasPrefix(name, "loop") && name != "loop-control":
			infos = append(infos, deviceInfo{Path: path, Reason: "loop device"})
		}
	}
	return infos, nil
}

func discoverWindows() []deviceInfo {
	var infos []deviceInfo
	for i := 0; i < 32; i++ {
		path := fmt.Sprintf(`\\.\PhysicalDrive%d`, i)
		dev, err := openReadOnlyDevice(path)
		if err != nil {
			if i < 8 {
				infos = append(infos, deviceInfo{Path: path, Reason: "not accessible"})
			}
			continue
		}
		_ = dev.Close()
		infos = append(infos, deviceInfo{Path: path, Compatible: true})
	}
	return infos
}

// findMount matches name against mount points and mount sources.
func findMount(mounts []mountedVol, name string) (mountedVol, bool) {
	clean := filepath.Clean(name)
	for _, m := range mounts {
		if m.MountPoint == clean || m.Device == name || m.Device == clean {
			return m, true
		}
	}
	return mountedVol{}, false
}

// mountsOf returns the volumes mounted from dev or one of its partitions.
func mountsOf(mounts []mountedVol, dev string) []mountedVol {
	var out []mountedVol
	for _, m := range mounts {
		if m.Device == dev || wholeDeviceOf(m.Device) == dev {
			out = append(out, m)
		}
	}
	return out
}

// resolvePathToDevice maps a mount point or device path to its device.
func resolvePathToDevice(p string) (device, mountpoint string, err error) {
	if strings.HasPrefix(p, "/dev/") || strings.HasPrefix(p, `\\.\`) {
		if m, ok := findMount(listMounts(), p); ok {
			return p, m.MountPoint, nil
		}
		return p, "", nil
	}
	m, ok := findMount(listMounts(), p)
	if !ok {
		return "", "", errors.Newf("cannot resolve device for %s", p)
	}
	return m.Device, m.MountPoint, nil
}

// wholeDeviceOf trims a partition suffix: sdb1 -> sdb, nvme0n1p2 -> nvme0n1,
// disk2s1 -> disk2.
func wholeDeviceOf(dev string) string {
	dir, b := filepath.Dir(dev), filepath.Base(dev)
	switch {
	case darwinPart.MatchString(b):
		return filepath.Join(dir, b[:strings.LastIndexByte(b, 's')])
	case linuxPartition.MatchString(b):
		if strings.HasPrefix(b, "nvme") || strings.HasPrefix(b, "mmcblk") {
			return filepath.Join(dir, b[:strings.LastIndexByte(b, 'p')])
		}
		return filepath.Join(dir, strings.TrimRight(b, "0123456789"))
	}
	return dev
}

// deviceDetails returns a type, a serial number and a humanised size.
func deviceDetails(path string) (kind, serial, size string) {
	kind, serial, size = "Disk", "-", "-"
	if runtime.GOOS == "windows" {
		kind = "PhysicalDrive"
	}
	if runtime.GOOS == "linux" {
		sys := filepath.Join("/sys/class/block", filepath.Base(path))
		if b, err := os.ReadFile(filepath.Join(sys, "removable")); err == nil {
			kind = "Fixed Disk"
			if strings.TrimSpace(string(b)) == "1" {
				kind = "Removable Disk"
			}
		}
		if b, err := os.ReadFile(filepath.Join(sys, "device", "serial")); err == nil {
			serial = strings.TrimSpace(string(b))
		}
	}
	if n, err := probeLength(path); err == nil {
		size = humanize.IBytes(uint64(n))
	}
	return kind, serial, size
}

// probeLength opens path read-only and queries its length.
func probeLength(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return queryLength(f)
}
