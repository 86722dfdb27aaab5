//go:build windows

package main

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

const (
	fsctlLockVolume     = 0x90018
	fsctlDismountVolume = 0x90020
	fsctlUnlockVolume   = 0x9001c
)

// volumeLock holds FSCTL_LOCK_VOLUME on \\.\X: for the duration of a run.
type volumeLock struct {
	path string
	log  *zap.Logger
	h    windows.Handle
}

func newVolumeLock(volume string, log *zap.Logger) *volumeLock {
	return &volumeLock{path: normalizeVolume(volume), log: log}
}

func (l *volumeLock) control(code uint32) error {
	var returned uint32
	return windows.DeviceIoControl(l.h, code, nil, 0, nil, 0, &returned, nil)
}

func (l *volumeLock) Lock() error {
	p, err := windows.UTF16PtrFromString(l.path)
	if err != nil {
		return err
	}
	h, err := windows.CreateFile(p,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return errors.Wrapf(err, "open volume %s", l.path)
	}
	l.h = h
	if err := l.control(fsctlLockVolume); err != nil {
		_ = windows.CloseHandle(h)
		l.h = 0
		return errors.Wrapf(err, "FSCTL_LOCK_VOLUME %s", l.path)
	}
	l.log.Debug("volume locked", zap.String("volume", l.path))
	return nil
}

func (l *volumeLock) Dismount() error {
	if err := l.control(fsctlDismountVolume); err != nil {
		return errors.Wrapf(err, "FSCTL_DISMOUNT_VOLUME %s", l.path)
	}
	l.log.Info("volume dismounted", zap.String("volume", l.path))
	return nil
}

func (l *volumeLock) Unlock() error {
	if l.h == 0 {
		return nil
	}
	err := l.control(fsctlUnlockVolume)
	cerr := windows.CloseHandle(l.h)
	l.h = 0
	return errors.CombineErrors(err, cerr)
}
