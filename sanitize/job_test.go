package sanitize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVolume struct {
	lockErr, dismountErr error
	calls                []string
}

func (v *fakeVolume) Lock() error {
	v.calls = append(v.calls, "lock")
	return v.lockErr
}

func (v *fakeVolume) Dismount() error {
	v.calls = append(v.calls, "dismount")
	return v.dismountErr
}

func (v *fakeVolume) Unlock() error {
	v.calls = append(v.calls, "unlock")
	return nil
}

func (v *fakeVolume) count(call string) int {
	n := 0
	for _, c := range v.calls {
		if c == call {
			n++
		}
	}
	return n
}

type jobFixture struct {
	dev    *memDevice
	vol    *fakeVolume
	opened int
	states []State
}

func newJobFixture(data []byte) *jobFixture {
	return &jobFixture{dev: newMemDevice(data), vol: &fakeVolume{}}
}

func (f *jobFixture) job(t *testing.T, mode Mode, confirm string) (Job, Options) {
	t.Helper()
	plan, err := PlanFor(mode, 1)
	require.NoError(t, err)
	return Job{
			Target:  "mem0",
			Plan:    plan,
			Confirm: func() error { return CheckConfirmation(confirm) },
			Volume:  f.vol,
			Open: func() (Device, error) {
				f.opened++
				return f.dev, nil
			},
		}, Options{
			BlockSize: 4,
			Verify:    true,
			OnState:   func(s State) { f.states = append(f.states, s) },
		}
}

func TestExecuteSuccess(t *testing.T) {
	f := newJobFixture(filled(8, 0x3C))
	job, opts := f.job(t, ModeClear, "CONFIRM")

	res, err := Execute(job, opts)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, make([]byte, 8), f.dev.data)

	assert.Equal(t, []string{"lock", "dismount", "unlock"}, f.vol.calls)
	assert.Equal(t, 1, f.dev.closed)
	assert.Equal(t, []State{
		StateInit, StateConfirm, StateLockVolume, StateOpenDevice,
		StateWipe, StateVerify, StateRelease, StateDone,
	}, f.states)
}

func TestExecuteConfirmationRejectedWritesNothing(t *testing.T) {
	for _, input := range []string{"", "confirm", "Confirm", "CONFIRM ", "YES"} {
		f := newJobFixture(filled(8, 0x3C))
		job, opts := f.job(t, ModePurge, input)

		res, err := Execute(job, opts)
		assert.Nil(t, res)
		assert.True(t, IsKind(err, ConfirmationRejected), "input %q", input)
		assert.True(t, KindOf(err).PreDestructive())
		assert.Zero(t, f.opened)
		assert.Empty(t, f.vol.calls)
		assert.Empty(t, f.dev.writes)
		assert.Equal(t, []State{StateInit, StateConfirm, StateConfirmRejected}, f.states)
	}
}

func TestExecuteConfirmErrorIsRejection(t *testing.T) {
	f := newJobFixture(make([]byte, 4))
	job, opts := f.job(t, ModeClear, "CONFIRM")
	job.Confirm = func() error { return errors.New("stdin closed") }

	_, err := Execute(job, opts)
	assert.True(t, IsKind(err, ConfirmationRejected))
	assert.Zero(t, f.opened)
}

func TestExecuteLockFailure(t *testing.T) {
	f := newJobFixture(make([]byte, 4))
	f.vol.lockErr = errors.New("access denied")
	job, opts := f.job(t, ModeClear, "CONFIRM")

	_, err := Execute(job, opts)
	assert.True(t, IsKind(err, VolumeLockFailure))
	assert.Zero(t, f.opened)
	assert.Zero(t, f.vol.count("unlock"), "a volume that was never locked is not unlocked")
	assert.Equal(t, StateVolumeLockFailed, f.states[len(f.states)-1])
}

func TestExecuteDismountFailureUnlocks(t *testing.T) {
	f := newJobFixture(make([]byte, 4))
	f.vol.dismountErr = errors.New("volume in use")
	job, opts := f.job(t, ModeClear, "CONFIRM")

	_, err := Execute(job, opts)
	assert.True(t, IsKind(err, VolumeLockFailure))
	assert.Zero(t, f.opened)
	assert.Equal(t, 1, f.vol.count("unlock"))
	assert.Equal(t, []State{StateRelease, StateVolumeLockFailed}, f.states[len(f.states)-2:])
}

func TestExecuteOpenFailureUnlocks(t *testing.T) {
	f := newJobFixture(make([]byte, 4))
	job, opts := f.job(t, ModeClear, "CONFIRM")
	job.Open = func() (Device, error) { return nil, errors.New("permission denied") }

	_, err := Execute(job, opts)
	assert.True(t, IsKind(err, DeviceOpenFailure))
	assert.Equal(t, 1, f.vol.count("unlock"))
	assert.Empty(t, f.dev.writes)
	assert.Equal(t, StateDeviceOpenFailed, f.states[len(f.states)-1])
}

func TestExecuteAbortReleases(t *testing.T) {
	f := newJobFixture(make([]byte, 8))
	f.dev.failRead = map[int64]error{4: errors.New("bad sector")}
	job, opts := f.job(t, ModeSelectivePurge, "CONFIRM")

	res, err := Execute(job, opts)
	assert.True(t, IsKind(err, ReadFailure))
	require.NotNil(t, res)
	assert.Equal(t, 1, f.vol.count("unlock"))
	assert.Equal(t, 1, f.dev.closed)
	assert.Equal(t, StateAborted, f.states[len(f.states)-1])
}

func TestExecuteWithoutVolume(t *testing.T) {
	f := newJobFixture(filled(4, 1))
	job, opts := f.job(t, ModeTest, "CONFIRM")
	job.Volume = nil
	job.Confirm = nil

	_, err := Execute(job, opts)
	require.NoError(t, err)
	assert.NotContains(t, f.states, StateLockVolume)
	assert.NotContains(t, f.states, StateConfirm)
	assert.Equal(t, 1, f.dev.closed)
}
