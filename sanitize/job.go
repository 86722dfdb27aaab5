package sanitize

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// State is a step of the run state machine:
//
//	INIT → CONFIRM → (LOCK_VOLUME) → OPEN_DEVICE → WIPE → (VERIFY) → RELEASE → DONE
//
// with fatal exits CONFIRM_REJECTED, VOLUME_LOCK_FAILED, DEVICE_OPEN_FAILED
// before any write, and ABORTED when the scan cannot continue.
type State string

const (
	StateInit             State = "INIT"
	StateConfirm          State = "CONFIRM"
	StateLockVolume       State = "LOCK_VOLUME"
	StateOpenDevice       State = "OPEN_DEVICE"
	StateWipe             State = "WIPE"
	StateVerify           State = "VERIFY"
	StateRelease          State = "RELEASE"
	StateDone             State = "DONE"
	StateConfirmRejected  State = "CONFIRM_REJECTED"
	StateVolumeLockFailed State = "VOLUME_LOCK_FAILED"
	StateDeviceOpenFailed State = "DEVICE_OPEN_FAILED"
	StateAborted          State = "ABORTED"
)

// VolumeLocker takes a mounted volume out of service before raw writes.
// Unlock is called exactly once for every successful Lock.
type VolumeLocker interface {
	Lock() error
	Dismount() error
	Unlock() error
}

// Job is one device run with its collaborators.
type Job struct {
	// Target names the device in logs.
	Target string
	Plan   Plan
	// Confirm gates the run. Nil means the caller already confirmed.
	Confirm func() error
	// Volume is locked and dismounted before the device is opened. Nil
	// when no volume is mounted from the target.
	Volume VolumeLocker
	Open   func() (Device, error)
}

// Execute drives job through the state machine. Failures before the pass
// loop leave the device untouched. Whatever happens after a successful
// Lock, the volume is unlocked and the device closed before returning.
func Execute(job Job, opts Options) (res *RunResult, err error) {
	opts = opts.withDefaults()
	log := opts.Logger.With(zap.String("device", job.Target))
	opts.Logger = log
	emit := func(s State) {
		log.Debug("state", zap.String("state", string(s)))
		if opts.OnState != nil {
			opts.OnState(s)
		}
	}

	var release []func()
	terminal := StateDone
	defer func() {
		if len(release) > 0 {
			emit(StateRelease)
			for i := len(release) - 1; i >= 0; i-- {
				release[i]()
			}
		}
		emit(terminal)
	}()

	emit(StateInit)
	if job.Confirm != nil {
		emit(StateConfirm)
		if cerr := job.Confirm(); cerr != nil {
			terminal = StateConfirmRejected
			if !IsKind(cerr, ConfirmationRejected) {
				cerr = newError(ConfirmationRejected, 0, cerr)
			}
			log.Warn("confirmation rejected, nothing written")
			return nil, cerr
		}
	}

	if job.Volume != nil {
		emit(StateLockVolume)
		if lerr := job.Volume.Lock(); lerr != nil {
			terminal = StateVolumeLockFailed
			return nil, errors.WithHint(newError(VolumeLockFailure, 0, lerr),
				"close every program using the volume and run with administrator rights")
		}
		release = append(release, func() {
			if uerr := job.Volume.Unlock(); uerr != nil {
				log.Warn("unlock volume", zap.Error(uerr))
			}
		})
		if derr := job.Volume.Dismount(); derr != nil {
			terminal = StateVolumeLockFailed
			return nil, newError(VolumeLockFailure, 0, errors.Wrap(derr, "dismount"))
		}
		log.Info("volume locked and dismounted")
	}

	emit(StateOpenDevice)
	dev, oerr := job.Open()
	if oerr != nil {
		terminal = StateDeviceOpenFailed
		if !IsKind(oerr, DeviceOpenFailure) {
			oerr = errors.WithHint(newError(DeviceOpenFailure, 0, oerr), "raw device access needs root or Administrator")
		}
		return nil, oerr
	}
	release = append(release, func() {
		if cerr := dev.Close(); cerr != nil {
			log.Warn("close device", zap.Error(cerr))
		}
	})

	eng, err := NewEngine(job.Plan, opts)
	if err != nil {
		terminal = StateAborted
		return nil, err
	}
	res, err = eng.Run(dev)
	if err != nil {
		terminal = StateAborted
	}
	return res, err
}
