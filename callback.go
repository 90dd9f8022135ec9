package aunit

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// Render is caller-supplied processing logic, invoked synchronously on the
// driver's realtime thread once per tick. It reads input views and fills
// output views on the request. It must not block, allocate, or retain the
// request or its buffers past the call; the backing memory belongs to the
// driver and is reused every tick.
//
// Returning an error does not stop the stream: the bridge fills the tick
// with silence, counts the failure, and reports it out of band.
type Render func(req *RenderRequest) error

// RenderRequest is the structured view of one render tick. It exists only
// for the duration of a single Render invocation.
type RenderRequest struct {
	// Frames in this tick.
	Frames int
	// Timestamp of the tick on the driver clock, relative to stream start.
	Timestamp time.Duration
	// Input holds read-only sample views, one interleaved buffer or one
	// buffer per channel. Empty for output-only units.
	Input [][]byte
	// Output holds mutable sample views to be filled by the logic.
	// Empty for input-only units.
	Output [][]byte

	format StreamFormat
}

// Format returns the negotiated stream format the buffers are laid out in.
func (r *RenderRequest) Format() StreamFormat {
	return r.format
}

// InputF32 reinterprets input buffer i as 32-bit float samples, without copying.
func (r *RenderRequest) InputF32(i int) []float32 {
	return sampleViewF32(r.Input[i])
}

// OutputF32 reinterprets output buffer i as 32-bit float samples, without copying.
func (r *RenderRequest) OutputF32(i int) []float32 {
	return sampleViewF32(r.Output[i])
}

// InputI16 reinterprets input buffer i as 16-bit integer samples, without copying.
func (r *RenderRequest) InputI16(i int) []int16 {
	return sampleViewI16(r.Input[i])
}

// OutputI16 reinterprets output buffer i as 16-bit integer samples, without copying.
func (r *RenderRequest) OutputI16(i int) []int16 {
	return sampleViewI16(r.Output[i])
}

// InputI32 reinterprets input buffer i as 32-bit integer samples, without copying.
func (r *RenderRequest) InputI32(i int) []int32 {
	return sampleViewI32(r.Input[i])
}

// OutputI32 reinterprets output buffer i as 32-bit integer samples, without copying.
func (r *RenderRequest) OutputI32(i int) []int32 {
	return sampleViewI32(r.Output[i])
}

func sampleViewF32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}

	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func sampleViewI16(b []byte) []int16 {
	if len(b) < 2 {
		return nil
	}

	return unsafe.Slice((*int16)(unsafe.Pointer(&b[0])), len(b)/2)
}

func sampleViewI32(b []byte) []int32 {
	if len(b) < 4 {
		return nil
	}

	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// ErrorKind classifies a realtime-path failure.
type ErrorKind int32

const (
	// ErrorKindRender means the registered logic returned an error for a tick.
	ErrorKindRender ErrorKind = 0
	// ErrorKindNoCallback means a tick arrived with no logic registered.
	ErrorKindNoCallback ErrorKind = 1
)

// String returns a human-readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindRender:
		return "render logic failed"
	case ErrorKindNoCallback:
		return "no callback registered"
	default:
		return "unknown"
	}
}

// RenderError is an out-of-band report of a realtime-path failure. The tick
// it belongs to was completed with silence to keep the driver's timing
// contract intact.
type RenderError struct {
	Tick uint64
	Kind ErrorKind
}

// callbackBridge adapts the driver's fixed-signature trampoline to the
// registered Render logic.
//
// The logic slot is the only state shared between the control thread and the
// realtime thread. It is swapped atomically: Store on the control thread is a
// release, Load on the realtime thread an acquire, so the two never contend
// on a lock. Everything else the render path touches is either owned by the
// realtime thread (the reused request) or written strictly before Start.
type callbackBridge struct {
	logic  atomic.Pointer[Render]
	ticks  atomic.Uint64
	failed atomic.Uint64
	events chan RenderError

	// req is reused across ticks so the render path performs no heap
	// allocation. Touched only by the realtime thread.
	req RenderRequest
}

func newCallbackBridge() *callbackBridge {
	return &callbackBridge{
		events: make(chan RenderError, 64),
	}
}

// setLogic swaps the registered logic. nil clears the slot. Control thread only.
func (b *callbackBridge) setLogic(fn Render) {
	if fn == nil {
		b.logic.Store(nil)

		return
	}

	b.logic.Store(&fn)
}

// hasLogic reports whether processing logic is registered.
func (b *callbackBridge) hasLogic() bool {
	return b.logic.Load() != nil
}

// setFormat records the negotiated format for request construction.
// Only valid while the unit is not running.
func (b *callbackBridge) setFormat(f StreamFormat) {
	b.req.format = f
}

// render is the trampoline handed to the driver. Realtime thread: no heap
// allocation, no locks shared with the control thread, no blocking.
func (b *callbackBridge) render(frames uint32, timestamp time.Duration, input, output [][]byte) StatusCode {
	tick := b.ticks.Add(1)

	fn := b.logic.Load()
	if fn == nil {
		// Teardown race: still hand the driver a valid, silent tick.
		zeroBuffers(output)
		b.post(RenderError{Tick: tick, Kind: ErrorKindNoCallback})

		return StatusNoError
	}

	req := &b.req
	req.Frames = int(frames)
	req.Timestamp = timestamp
	req.Input = input
	req.Output = output

	if err := (*fn)(req); err != nil {
		zeroBuffers(output)
		b.failed.Add(1)
		b.post(RenderError{Tick: tick, Kind: ErrorKindRender})
	}

	// Drop the views so stale driver memory is not reachable between ticks.
	req.Input = nil
	req.Output = nil

	return StatusNoError
}

// post delivers an event without ever blocking the realtime thread; when the
// control thread is not draining, events are dropped, not queued unboundedly.
func (b *callbackBridge) post(ev RenderError) {
	select {
	case b.events <- ev:
	default:
	}
}

// zeroBuffers fills all output views with silence.
func zeroBuffers(bufs [][]byte) {
	for _, buf := range bufs {
		for i := range buf {
			buf[i] = 0
		}
	}
}
