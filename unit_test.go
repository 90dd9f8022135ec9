package aunit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/aunit"
)

// stubHandle lets tests inject native failures at chosen lifecycle points.
type stubHandle struct {
	proc aunit.RenderProc

	startCode aunit.StatusCode
	stopCode  aunit.StatusCode

	starts int
	stops  int
	closes int
}

func (h *stubHandle) GetProperty(prop aunit.PropertyID, scope aunit.Scope, elem aunit.Element) (any, aunit.StatusCode) {
	if prop == aunit.PropBufferFrames {
		return uint32(256), aunit.StatusNoError
	}

	return nil, aunit.StatusInvalidProperty
}

func (h *stubHandle) SetProperty(prop aunit.PropertyID, scope aunit.Scope, elem aunit.Element, value any) aunit.StatusCode {
	return aunit.StatusNoError
}

func (h *stubHandle) SetRenderProc(proc aunit.RenderProc) aunit.StatusCode {
	h.proc = proc

	return aunit.StatusNoError
}

func (h *stubHandle) Start() aunit.StatusCode {
	h.starts++

	return h.startCode
}

func (h *stubHandle) Stop() aunit.StatusCode {
	h.stops++

	return h.stopCode
}

func (h *stubHandle) Close() aunit.StatusCode {
	h.closes++

	return aunit.StatusNoError
}

// stubDriver serves a single device through a shared stubHandle.
type stubDriver struct {
	handle *stubHandle
	dev    aunit.Device
}

func newStubDriver() *stubDriver {
	return &stubDriver{
		handle: &stubHandle{},
		dev: aunit.Device{
			ID:        "stub:0",
			Name:      "Stub",
			Direction: aunit.DirectionOut,
			IsDefault: true,
			SupportedFormats: []aunit.StreamFormat{
				{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true},
			},
		},
	}
}

func (d *stubDriver) Name() string { return "stub" }

func (d *stubDriver) Devices(dir aunit.Direction) ([]aunit.Device, error) {
	if d.dev.Matches(dir) {
		return []aunit.Device{d.dev}, nil
	}

	return nil, nil
}

func (d *stubDriver) DefaultDevice(dir aunit.Direction) (*aunit.Device, error) {
	if d.dev.Matches(dir) {
		dev := d.dev

		return &dev, nil
	}

	return nil, nil
}

func (d *stubDriver) Open(dev *aunit.Device) (aunit.Handle, error) {
	return d.handle, nil
}

func silence(req *aunit.RenderRequest) error {
	for _, buf := range req.Output {
		for i := range buf {
			buf[i] = 0
		}
	}

	return nil
}

func openSynthUnit(t *testing.T) (*aunit.SynthDriver, *aunit.Unit) {
	t.Helper()

	drv := aunit.NewSynthDriver(aunit.WithManualClock())
	u, err := aunit.Open(drv, nil)
	require.NoError(t, err)

	return drv, u
}

func TestOpenDefaultPrefersDuplex(t *testing.T) {
	_, u := openSynthUnit(t)
	defer u.Dispose()

	assert.Equal(t, aunit.StateUninitialized, u.State())
	assert.Equal(t, aunit.DirectionDuplex, u.Device().Direction)
	assert.True(t, u.Device().IsDefault)
}

func TestLifecycleWalk(t *testing.T) {
	drv, u := openSynthUnit(t)

	format := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true}
	require.NoError(t, u.Configure(format))
	assert.Equal(t, aunit.StateConfigured, u.State())
	assert.Equal(t, format, u.Format())

	require.NoError(t, u.RegisterCallback(silence))
	require.NoError(t, u.Start())
	assert.Equal(t, aunit.StateRunning, u.State())

	drv.Advance(4)
	assert.Equal(t, uint64(4), u.Ticks())
	assert.Zero(t, u.FailedTicks())

	require.NoError(t, u.Stop())
	assert.Equal(t, aunit.StateStopped, u.State())

	// A stopped stream produces no more ticks.
	drv.Advance(4)
	assert.Equal(t, uint64(4), u.Ticks())

	require.NoError(t, u.Dispose())
	assert.Equal(t, aunit.StateDisposed, u.State())
}

func TestStartRequiresConfiguration(t *testing.T) {
	_, u := openSynthUnit(t)
	defer u.Dispose()

	require.NoError(t, u.RegisterCallback(silence))

	err := u.Start()
	require.ErrorIs(t, err, aunit.ErrInvalidState)
}

func TestStartRequiresCallback(t *testing.T) {
	_, u := openSynthUnit(t)
	defer u.Dispose()

	format := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true}
	require.NoError(t, u.Configure(format))

	err := u.Start()
	require.ErrorIs(t, err, aunit.ErrInvalidState)
}

func TestStoppedUnitMustReconfigure(t *testing.T) {
	drv, u := openSynthUnit(t)
	defer u.Dispose()

	format := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true}
	require.NoError(t, u.Configure(format))
	require.NoError(t, u.RegisterCallback(silence))
	require.NoError(t, u.Start())
	require.NoError(t, u.Stop())

	require.ErrorIs(t, u.Start(), aunit.ErrInvalidState)

	require.NoError(t, u.Configure(format))
	require.NoError(t, u.Start())
	drv.Advance(1)
	assert.Equal(t, uint64(1), u.Ticks())
}

func TestConfigureRejectedWhileRunning(t *testing.T) {
	_, u := openSynthUnit(t)
	defer u.Dispose()

	format := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true}
	require.NoError(t, u.Configure(format))
	require.NoError(t, u.RegisterCallback(silence))
	require.NoError(t, u.Start())

	err := u.Configure(aunit.StreamFormat{SampleRate: 44100, Channels: 2, BitsPerChannel: 16, IsInterleaved: true})
	require.ErrorIs(t, err, aunit.ErrInvalidState)
	assert.Equal(t, format, u.Format(), "running format must stay untouched")
}

func TestRegisterWhileRunningKeepsOldLogic(t *testing.T) {
	drv, u := openSynthUnit(t)
	defer u.Dispose()

	format := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true}
	require.NoError(t, u.Configure(format))

	calls := 0
	require.NoError(t, u.RegisterCallback(func(req *aunit.RenderRequest) error {
		calls++

		return silence(req)
	}))
	require.NoError(t, u.Start())

	err := u.RegisterCallback(func(req *aunit.RenderRequest) error {
		t.Error("replacement logic must not run")

		return nil
	})
	require.ErrorIs(t, err, aunit.ErrInvalidState)

	drv.Advance(2)
	assert.Equal(t, 2, calls)
}

func TestConfigureUnsupportedFormat(t *testing.T) {
	_, u := openSynthUnit(t)
	defer u.Dispose()

	err := u.Configure(aunit.StreamFormat{SampleRate: 8000, Channels: 7, BitsPerChannel: 16, IsInterleaved: true})
	require.ErrorIs(t, err, aunit.ErrFormatUnsupported)
	assert.Equal(t, aunit.StateUninitialized, u.State())
}

func TestSetBufferFrames(t *testing.T) {
	_, u := openSynthUnit(t)
	defer u.Dispose()

	require.NoError(t, u.SetBufferFrames(256))
	require.ErrorIs(t, u.SetBufferFrames(0), aunit.ErrPropertyTypeMismatch)

	format := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true}
	require.NoError(t, u.Configure(format))
	assert.Equal(t, uint32(256), u.BufferFrames())

	require.NoError(t, u.RegisterCallback(silence))
	require.NoError(t, u.Start())
	require.ErrorIs(t, u.SetBufferFrames(128), aunit.ErrInvalidState)
}

func TestStartFailureKeepsConfigured(t *testing.T) {
	drv := newStubDriver()
	drv.handle.startCode = aunit.StatusCannotDoInCurrentContext

	u, err := aunit.Open(drv, nil)
	require.NoError(t, err)

	require.NoError(t, u.Configure(drv.dev.SupportedFormats[0]))
	require.NoError(t, u.RegisterCallback(silence))

	err = u.Start()
	require.ErrorIs(t, err, aunit.ErrStartFailed)
	assert.Equal(t, aunit.StateConfigured, u.State())

	// The native failure cleared, Start succeeds without reconfiguring.
	drv.handle.startCode = aunit.StatusNoError
	require.NoError(t, u.Start())
	assert.Equal(t, aunit.StateRunning, u.State())
}

func TestStopFailureStaysRunning(t *testing.T) {
	drv := newStubDriver()

	u, err := aunit.Open(drv, nil)
	require.NoError(t, err)

	require.NoError(t, u.Configure(drv.dev.SupportedFormats[0]))
	require.NoError(t, u.RegisterCallback(silence))
	require.NoError(t, u.Start())

	drv.handle.stopCode = aunit.StatusCannotDoInCurrentContext
	err = u.Stop()
	require.ErrorIs(t, err, aunit.ErrStopFailed)
	assert.Equal(t, aunit.StateRunning, u.State(), "unconfirmed cessation must be treated as still running")

	drv.handle.stopCode = aunit.StatusNoError
	require.NoError(t, u.Stop())
	assert.Equal(t, aunit.StateStopped, u.State())
}

func TestDisposeWithoutCessationKeepsHandle(t *testing.T) {
	drv := newStubDriver()

	u, err := aunit.Open(drv, nil)
	require.NoError(t, err)

	require.NoError(t, u.Configure(drv.dev.SupportedFormats[0]))
	require.NoError(t, u.RegisterCallback(silence))
	require.NoError(t, u.Start())

	drv.handle.stopCode = aunit.StatusCannotDoInCurrentContext
	err = u.Dispose()
	require.ErrorIs(t, err, aunit.ErrStopFailed)
	assert.Zero(t, drv.handle.closes, "handle must not be released while the realtime thread may still fire")
	assert.Equal(t, aunit.StateRunning, u.State())

	drv.handle.stopCode = aunit.StatusNoError
	require.NoError(t, u.Dispose())
	assert.Equal(t, 1, drv.handle.closes)
	assert.Equal(t, aunit.StateDisposed, u.State())
}

func TestDisposeWhileRunningStopsFirst(t *testing.T) {
	drv := newStubDriver()

	u, err := aunit.Open(drv, nil)
	require.NoError(t, err)

	require.NoError(t, u.Configure(drv.dev.SupportedFormats[0]))
	require.NoError(t, u.RegisterCallback(silence))
	require.NoError(t, u.Start())

	require.NoError(t, u.Dispose())
	assert.Equal(t, 1, drv.handle.stops)
	assert.Equal(t, 1, drv.handle.closes)
}

func TestDisposeIsIdempotent(t *testing.T) {
	drv := newStubDriver()

	u, err := aunit.Open(drv, nil)
	require.NoError(t, err)

	require.NoError(t, u.Dispose())
	require.NoError(t, u.Dispose())
	assert.Equal(t, 1, drv.handle.closes)
}

func TestDisposedUnitRejectsEverything(t *testing.T) {
	_, u := openSynthUnit(t)
	require.NoError(t, u.Dispose())

	format := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true}
	assert.ErrorIs(t, u.Configure(format), aunit.ErrUnitDisposed)
	assert.ErrorIs(t, u.RegisterCallback(silence), aunit.ErrUnitDisposed)
	assert.ErrorIs(t, u.Start(), aunit.ErrUnitDisposed)
	assert.ErrorIs(t, u.Stop(), aunit.ErrUnitDisposed)
	assert.ErrorIs(t, u.SetBufferFrames(64), aunit.ErrUnitDisposed)

	_, err := u.Latency()
	assert.ErrorIs(t, err, aunit.ErrUnitDisposed)
}

func TestDisposeClosesEventChannel(t *testing.T) {
	_, u := openSynthUnit(t)

	events := u.Events()
	require.NoError(t, u.Dispose())

	_, open := <-events
	assert.False(t, open)
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	_, u := openSynthUnit(t)
	defer u.Dispose()

	require.NoError(t, u.Stop())
	assert.Equal(t, aunit.StateUninitialized, u.State())
}

func TestFailingLogicReportsOutOfBand(t *testing.T) {
	drv, u := openSynthUnit(t)
	defer u.Dispose()

	format := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true}
	require.NoError(t, u.Configure(format))

	tick := 0
	require.NoError(t, u.RegisterCallback(func(req *aunit.RenderRequest) error {
		tick++
		if tick == 2 {
			return assert.AnError
		}

		return silence(req)
	}))
	require.NoError(t, u.Start())

	drv.Advance(3)

	assert.Equal(t, uint64(3), u.Ticks())
	assert.Equal(t, uint64(1), u.FailedTicks())

	select {
	case ev := <-u.Events():
		assert.Equal(t, aunit.ErrorKindRender, ev.Kind)
		assert.Equal(t, uint64(2), ev.Tick)
	default:
		t.Fatal("expected a render failure event")
	}
}

func TestSampleRateOverride(t *testing.T) {
	_, u := openSynthUnit(t)
	defer u.Dispose()

	format := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true}
	require.NoError(t, u.Configure(format))

	rate, err := u.SampleRate()
	require.NoError(t, err)
	assert.Equal(t, 48000.0, rate)

	require.NoError(t, u.SetSampleRate(44100))
	assert.Equal(t, 44100.0, u.Format().SampleRate)

	require.ErrorIs(t, u.SetSampleRate(-1), aunit.ErrFormatUnsupported)

	require.NoError(t, u.RegisterCallback(silence))
	require.NoError(t, u.Start())
	require.ErrorIs(t, u.SetSampleRate(96000), aunit.ErrInvalidState)
}

func TestLatency(t *testing.T) {
	_, u := openSynthUnit(t)
	defer u.Dispose()

	format := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true}
	require.NoError(t, u.Configure(format))

	lat, err := u.Latency()
	require.NoError(t, err)
	assert.Greater(t, lat.Nanoseconds(), int64(0))
}
