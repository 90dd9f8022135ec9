package aunit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// defaultBufferFrames is the buffer size applied when the caller does not
// choose one before Configure.
const defaultBufferFrames = 512

// Unit is the owned abstraction over one native audio-processing endpoint.
// It drives the lifecycle state machine
//
//	Uninitialized -> Configured -> Running -> Stopped -> Disposed
//
// and owns the native handle exclusively: the handle is released exactly
// once, on Dispose, and only after the driver has confirmed that the
// realtime thread stopped invoking the unit.
//
// All Unit methods are control-thread operations; they may block and are
// safe for concurrent use. The realtime path never touches the Unit itself,
// only the lock-free callback slot inside the bridge.
type Unit struct {
	mu sync.Mutex

	drv     Driver
	handle  Handle
	device  *Device
	props   propertyBridge
	bridge  *callbackBridge
	state   UnitState
	running atomic.Bool

	format       StreamFormat
	bufferFrames uint32
}

// Open acquires a native handle for the device and returns an uninitialized
// unit. A nil device binds to the driver's default endpoint, preferring a
// duplex one, then output, then input.
func Open(drv Driver, dev *Device) (*Unit, error) {
	if dev == nil {
		for _, dir := range []Direction{DirectionDuplex, DirectionOut, DirectionIn} {
			found, err := drv.DefaultDevice(dir)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnitCreationFailed, err)
			}

			if found != nil {
				dev = found

				break
			}
		}

		if dev == nil {
			return nil, fmt.Errorf("%w: driver %s has no default device", ErrUnitCreationFailed, drv.Name())
		}
	}

	h, err := drv.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnitCreationFailed, dev.ID, err)
	}

	u := &Unit{
		drv:    drv,
		handle: h,
		device: dev,
		bridge: newCallbackBridge(),
		state:  StateUninitialized,
	}
	u.props = propertyBridge{h: h, running: &u.running}

	// The trampoline is installed once, here; registering logic later is a
	// pure slot swap and never touches the native layer.
	if code := h.SetRenderProc(u.bridge.render); code != StatusNoError {
		_ = h.Close()

		return nil, fmt.Errorf("%w: install trampoline: %w", ErrUnitCreationFailed, statusErr(code))
	}

	return u, nil
}

// Device returns the bound device snapshot.
func (u *Unit) Device() *Device {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.device
}

// State returns the current lifecycle state.
func (u *Unit) State() UnitState {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.state
}

// Format returns the negotiated stream format. The zero value is returned
// before the first successful Configure.
func (u *Unit) Format() StreamFormat {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.format
}

// BufferFrames returns the frames delivered per render tick.
func (u *Unit) BufferFrames() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.bufferFrames
}

// SetBufferFrames requests a different tick size. Takes effect on the next
// Configure; rejected while running.
func (u *Unit) SetBufferFrames(frames uint32) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case u.state == StateDisposed:
		return ErrUnitDisposed
	case u.state == StateRunning:
		return fmt.Errorf("buffer size: %w", ErrInvalidState)
	case frames == 0:
		return fmt.Errorf("buffer size: zero frames: %w", ErrPropertyTypeMismatch)
	}

	u.bufferFrames = frames

	return nil
}

// SampleRate reads the native sample rate of the stream.
func (u *Unit) SampleRate() (float64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state == StateDisposed {
		return 0, ErrUnitDisposed
	}

	return u.props.sampleRate(ScopeGlobal)
}

// SetSampleRate overrides the stream's sample rate without renegotiating the
// rest of the format. Rejected while running.
func (u *Unit) SetSampleRate(rate float64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case u.state == StateDisposed:
		return ErrUnitDisposed
	case u.state == StateRunning:
		return fmt.Errorf("sample rate: %w", ErrInvalidState)
	case rate <= 0:
		return fmt.Errorf("%w: sample rate %v", ErrFormatUnsupported, rate)
	}

	if err := u.props.setSampleRate(ScopeGlobal, rate); err != nil {
		return fmt.Errorf("sample rate: %w", err)
	}

	if u.format.SampleRate != 0 {
		u.format.SampleRate = rate
		u.bridge.setFormat(u.format)
	}

	return nil
}

// Latency reports the native path latency, when the driver exposes it.
func (u *Unit) Latency() (time.Duration, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state == StateDisposed {
		return 0, ErrUnitDisposed
	}

	return u.props.latency()
}

// Events exposes the out-of-band channel for realtime-path failures. Consume
// it asynchronously on the control side; it is never fed back into the
// realtime path, and it is closed by Dispose.
func (u *Unit) Events() <-chan RenderError {
	return u.bridge.events
}

// Ticks returns the number of trampoline invocations since Open.
func (u *Unit) Ticks() uint64 {
	return u.bridge.ticks.Load()
}

// FailedTicks returns the number of ticks the registered logic failed and
// was replaced with silence.
func (u *Unit) FailedTicks() uint64 {
	return u.bridge.failed.Load()
}

// Configure negotiates the desired format against the bound device and
// applies the result to the native unit. Re-invoking while Configured or
// Stopped re-negotiates and replaces the stored format.
func (u *Unit) Configure(desired StreamFormat) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch u.state {
	case StateDisposed:
		return ErrUnitDisposed
	case StateRunning:
		return fmt.Errorf("configure: %w", ErrInvalidState)
	}

	negotiated, err := Negotiate(desired, u.device.SupportedFormats)
	if err != nil {
		return fmt.Errorf("configure %s: %w", u.device.ID, err)
	}

	if err := u.applyFormat(negotiated); err != nil {
		return err
	}

	frames := u.bufferFrames
	if frames == 0 {
		frames = defaultBufferFrames
	}

	if err := u.props.setBufferFrames(frames); err != nil {
		return fmt.Errorf("configure buffer: %w", err)
	}

	// The driver may have rounded the buffer size; read back and validate
	// against the negotiated frame layout.
	applied, err := u.props.bufferFrames()
	if err != nil {
		return fmt.Errorf("configure buffer: %w", err)
	}

	if applied == 0 || uint64(applied)*uint64(negotiated.BytesPerFrame()) > 1<<31 {
		return fmt.Errorf("configure: driver buffer of %d frames unusable with %s: %w",
			applied, negotiated, ErrFormatUnsupported)
	}

	u.format = negotiated
	u.bufferFrames = applied
	u.bridge.setFormat(negotiated)
	u.state = StateConfigured

	return nil
}

// applyFormat pushes the negotiated format to the native scopes matching the
// device role: the render side feeds samples into the output element's input
// scope, the capture side reads them from the input element's output scope.
func (u *Unit) applyFormat(f StreamFormat) error {
	dir := u.device.Direction

	if dir == DirectionOut || dir == DirectionDuplex {
		if err := u.props.setStreamFormat(ScopeInput, ElementOutput, f); err != nil {
			return fmt.Errorf("configure output format: %w", err)
		}
	}

	if dir == DirectionIn || dir == DirectionDuplex {
		if err := u.props.setStreamFormat(ScopeOutput, ElementInput, f); err != nil {
			return fmt.Errorf("configure input format: %w", err)
		}
	}

	return nil
}

// RegisterCallback installs processing logic into the callback slot. A nil
// logic clears the slot. Rejected while running; the previously registered
// logic then stays active and unchanged.
func (u *Unit) RegisterCallback(fn Render) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch u.state {
	case StateDisposed:
		return ErrUnitDisposed
	case StateRunning:
		return fmt.Errorf("register callback: %w", ErrInvalidState)
	}

	u.bridge.setLogic(fn)

	return nil
}

// Start arms the realtime path. The unit must be Configured with a
// registered callback. On native failure the state stays Configured.
func (u *Unit) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case u.state == StateDisposed:
		return ErrUnitDisposed
	case u.state != StateConfigured:
		return fmt.Errorf("start from %s: %w", u.state, ErrInvalidState)
	case !u.bridge.hasLogic():
		return fmt.Errorf("start without callback: %w", ErrInvalidState)
	}

	if code := u.handle.Start(); code != StatusNoError {
		return fmt.Errorf("%w: %w", ErrStartFailed, statusErr(code))
	}

	u.state = StateRunning
	u.running.Store(true)

	return nil
}

// Stop disarms the realtime path. It returns only once the driver confirms
// it has ceased invoking the trampoline; afterwards property mutation and
// callback replacement are safe again. On ErrStopFailed the unit must still
// be treated as running and Stop retried before disposal.
func (u *Unit) Stop() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch u.state {
	case StateDisposed:
		return ErrUnitDisposed
	case StateRunning:
	default:
		// Already quiescent.
		return nil
	}

	if code := u.handle.Stop(); code != StatusNoError {
		return fmt.Errorf("%w: %w", ErrStopFailed, statusErr(code))
	}

	u.state = StateStopped
	u.running.Store(false)

	return nil
}

// Dispose releases the native handle. Invoked from Running it first forces a
// Stop; if cessation cannot be confirmed the handle is NOT released, to keep
// the realtime thread from observing a freed resource, and the error is
// returned for the caller to retry. Disposing twice is a no-op.
func (u *Unit) Dispose() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state == StateDisposed {
		return nil
	}

	if u.state == StateRunning {
		if code := u.handle.Stop(); code != StatusNoError {
			return fmt.Errorf("dispose: %w: %w", ErrStopFailed, statusErr(code))
		}

		u.state = StateStopped
		u.running.Store(false)
	}

	code := u.handle.Close()

	// The realtime thread is confirmed idle, so the slot and the event
	// channel have no writers left.
	u.bridge.setLogic(nil)
	close(u.bridge.events)
	u.state = StateDisposed

	if code != StatusNoError {
		return fmt.Errorf("dispose: %w", statusErr(code))
	}

	return nil
}
