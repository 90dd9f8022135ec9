package aunit

import "time"

// RenderProc is the fixed-signature entry point a driver invokes on its
// realtime thread, once per render tick.
//
// The input and output slices hold raw sample memory owned by the driver:
// a single interleaved buffer, or one buffer per channel for non-interleaved
// formats. The memory is valid only for the duration of the call and is
// reused on the next tick. The proc must not block, allocate, or retain the
// buffers, and must always return, silence included, so the driver's timing
// contract stays intact.
type RenderProc func(frames uint32, timestamp time.Duration, input, output [][]byte) StatusCode

// Driver is the native audio layer: it enumerates hardware endpoints and
// allocates unit handles. Implementations exist for real hardware (ALSA)
// and for a deterministic in-process engine (SynthDriver).
type Driver interface {
	// Name identifies the driver, e.g. "alsa" or "synth".
	Name() string

	// Devices queries the hardware registry for endpoints matching the
	// direction. The result is a fresh snapshot on every call; it is
	// all-or-nothing and never partially populated.
	Devices(dir Direction) ([]Device, error)

	// DefaultDevice returns the default endpoint for the direction, or nil
	// if no device of that direction exists.
	DefaultDevice(dir Direction) (*Device, error)

	// Open allocates a native handle bound to the device.
	Open(dev *Device) (Handle, error)
}

// Handle is an exclusively-owned native unit resource. All methods speak raw
// StatusCode values; the unit layer translates them into the error taxonomy.
//
// Every method except the installed RenderProc invocation is control-thread
// only. Stop must not return until the driver has ceased invoking the proc;
// that ordering is what makes releasing the handle safe.
type Handle interface {
	// GetProperty reads a typed configuration value.
	GetProperty(prop PropertyID, scope Scope, elem Element) (any, StatusCode)

	// SetProperty writes a typed configuration value. Values of the wrong
	// type are rejected, never coerced.
	SetProperty(prop PropertyID, scope Scope, elem Element, value any) StatusCode

	// SetRenderProc installs the trampoline the driver will invoke on its
	// realtime thread. It may only be called while the handle is not started.
	SetRenderProc(proc RenderProc) StatusCode

	// Start arms the realtime path.
	Start() StatusCode

	// Stop disarms the realtime path. On StatusNoError the driver guarantees
	// the proc will not be invoked again until the next Start.
	Stop() StatusCode

	// Close releases the native resource. The handle must be stopped first.
	Close() StatusCode
}
