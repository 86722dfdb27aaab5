//go:build !windows

package main

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// volumeLock takes a flock on the volume's device node and unmounts it.
// volume is either a mount point or the device node of a mounted filesystem.
type volumeLock struct {
	volume string
	log    *zap.Logger
	mount  mountedVol
	f      *os.File
}

func newVolumeLock(volume string, log *zap.Logger) *volumeLock {
	return &volumeLock{volume: filepath.Clean(volume), log: log}
}

func (l *volumeLock) Lock() error {
	m, ok := findMount(listMounts(), l.volume)
	if ok {
		l.mount = m
	} else {
		if err := requireBlockDevice(l.volume); err != nil {
			return err
		}
		l.mount = mountedVol{Device: l.volume}
	}
	f, err := os.Open(l.mount.Device)
	if err != nil {
		return errors.Wrapf(err, "open volume %s", l.mount.Device)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "lock volume %s", l.mount.Device)
	}
	l.f = f
	l.log.Debug("volume locked", zap.String("volume", l.mount.Device))
	return nil
}

// requireBlockDevice accepts an unmounted volume only as a block device
// node. Anything else would lock nothing.
func requireBlockDevice(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return errors.Wrapf(err, "volume %s", path)
	}
	if uint32(st.Mode)&unix.S_IFMT != unix.S_IFBLK {
		return errors.WithHint(
			errors.Newf("volume %s is neither a mounted filesystem nor a block device", path),
			"pass the mount point or the partition device, or NONE")
	}
	return nil
}

// Dismount is a no-op for a volume that is not mounted.
func (l *volumeLock) Dismount() error {
	if l.mount.MountPoint == "" {
		return nil
	}
	if err := unix.Unmount(l.mount.MountPoint, 0); err != nil {
		return errors.Wrapf(err, "unmount %s", l.mount.MountPoint)
	}
	l.log.Info("volume unmounted", zap.String("mount", l.mount.MountPoint))
	return nil
}

func (l *volumeLock) Unlock() error {
	if l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	l.f = nil
	return errors.CombineErrors(err, cerr)
}
