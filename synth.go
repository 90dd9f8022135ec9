package aunit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// SynthDriver is a self-contained Driver with no hardware behind it. It
// advertises synthetic devices, paces render ticks on its own goroutine (the
// realtime thread) and can feed the capture side with a generated tone.
//
// It exists for test harnesses and offline rendering: with a manual clock the
// caller drives ticks deterministically through Advance, with the default
// paced clock ticks arrive on a hardware-like schedule.
type SynthDriver struct {
	mu      sync.Mutex
	devices []Device
	manual  bool
	toneHz  float64
	toneAmp float64
	sink    func(format StreamFormat, output [][]byte)
	handles []*synthHandle
}

// SynthOption configures a SynthDriver.
type SynthOption func(*SynthDriver)

// WithManualClock disables the paced tick goroutine; render ticks happen only
// when Advance is called. Handy for deterministic tests.
func WithManualClock() SynthOption {
	return func(d *SynthDriver) {
		d.manual = true
	}
}

// WithDevices replaces the built-in synthetic device set.
func WithDevices(devs ...Device) SynthOption {
	return func(d *SynthDriver) {
		d.devices = devs
	}
}

// WithInputTone makes capture buffers carry a sine of the given frequency and
// amplitude instead of silence.
func WithInputTone(freq, amp float64) SynthOption {
	return func(d *SynthDriver) {
		d.toneHz = freq
		d.toneAmp = amp
	}
}

// WithOutputSink registers a consumer for rendered output buffers. The sink
// runs on the driver's tick thread and must treat the buffers as read-only
// and valid only for the call.
func WithOutputSink(sink func(format StreamFormat, output [][]byte)) SynthOption {
	return func(d *SynthDriver) {
		d.sink = sink
	}
}

// NewSynthDriver returns a synthetic driver. Without WithDevices it
// advertises one default duplex device and one playback-only device
// supporting the common small-format matrix at 44.1 and 48 kHz.
func NewSynthDriver(opts ...SynthOption) *SynthDriver {
	d := &SynthDriver{
		devices: defaultSynthDevices(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func defaultSynthDevices() []Device {
	var formats []StreamFormat
	for _, rate := range []float64{44100, 48000} {
		for _, ch := range []uint32{1, 2} {
			formats = append(formats,
				StreamFormat{SampleRate: rate, Channels: ch, BitsPerChannel: 16, IsInterleaved: true},
				StreamFormat{SampleRate: rate, Channels: ch, BitsPerChannel: 32, IsInterleaved: true},
				StreamFormat{SampleRate: rate, Channels: ch, BitsPerChannel: 32, IsFloat: true, IsInterleaved: true},
			)
		}
	}

	return []Device{
		{
			ID:               "synth:0",
			Name:             "Synth Duplex",
			Direction:        DirectionDuplex,
			SupportedFormats: formats,
			IsDefault:        true,
		},
		{
			ID:               "synth:1",
			Name:             "Synth Playback",
			Direction:        DirectionOut,
			SupportedFormats: formats,
		},
	}
}

// Name implements Driver.
func (d *SynthDriver) Name() string {
	return "synth"
}

// Devices implements Driver. The snapshot is fresh on every call.
func (d *SynthDriver) Devices(dir Direction) ([]Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Device
	for _, dev := range d.devices {
		if dir == DirectionDuplex && dev.Direction != DirectionDuplex {
			continue
		}

		if !dev.Matches(dir) {
			continue
		}

		cp := dev
		cp.SupportedFormats = append([]StreamFormat(nil), dev.SupportedFormats...)
		out = append(out, cp)
	}

	return out, nil
}

// DefaultDevice implements Driver.
func (d *SynthDriver) DefaultDevice(dir Direction) (*Device, error) {
	devs, err := d.Devices(dir)
	if err != nil {
		return nil, err
	}

	for i := range devs {
		if devs[i].IsDefault {
			return &devs[i], nil
		}
	}

	if len(devs) > 0 {
		return &devs[0], nil
	}

	return nil, nil
}

// Open implements Driver.
func (d *SynthDriver) Open(dev *Device) (Handle, error) {
	if dev == nil {
		return nil, fmt.Errorf("no device given")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.devices {
		if d.devices[i].ID == dev.ID {
			h := &synthHandle{
				drv:        d,
				dev:        &d.devices[i],
				inEnabled:  true,
				outEnabled: true,
			}
			d.handles = append(d.handles, h)

			return h, nil
		}
	}

	return nil, fmt.Errorf("unknown device %q", dev.ID)
}

// Advance drives n render ticks synchronously on the calling goroutine for
// every running handle. Only meaningful with WithManualClock; the caller
// plays the role of the realtime thread.
func (d *SynthDriver) Advance(n int) {
	d.mu.Lock()
	hs := append([]*synthHandle(nil), d.handles...)
	d.mu.Unlock()

	for i := 0; i < n; i++ {
		for _, h := range hs {
			h.advance()
		}
	}
}

// synthHandle is an open native handle on a synthetic device.
type synthHandle struct {
	drv *SynthDriver
	dev *Device

	mu           sync.Mutex
	closed       bool
	running      bool
	format       StreamFormat
	bufferFrames uint32
	bound        DeviceID
	inEnabled    bool
	outEnabled   bool
	proc         RenderProc

	// Realtime-thread state, prepared under mu before Start and then owned
	// by the tick path until Stop confirms cessation.
	in      [][]byte
	out     [][]byte
	phase   float64
	elapsed time.Duration
	period  time.Duration
	quit    chan struct{}
	done    chan struct{}
}

// GetProperty implements Handle.
func (h *synthHandle) GetProperty(prop PropertyID, scope Scope, elem Element) (any, StatusCode) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, StatusUninitialized
	}

	switch prop {
	case PropStreamFormat:
		return h.format, StatusNoError
	case PropSampleRate:
		return h.format.SampleRate, StatusNoError
	case PropBufferFrames:
		return h.bufferFrames, StatusNoError
	case PropBoundDevice:
		return h.bound, StatusNoError
	case PropIOEnabled:
		switch scope {
		case ScopeInput:
			return h.inEnabled, StatusNoError
		case ScopeOutput:
			return h.outEnabled, StatusNoError
		default:
			return nil, StatusInvalidScope
		}
	case PropLatency:
		if h.format.SampleRate == 0 || h.bufferFrames == 0 {
			return nil, StatusPropertyNotInUse
		}
		// Two periods of scheduling slack, like a small hardware ring.
		return 2 * frameDuration(h.bufferFrames, h.format.SampleRate), StatusNoError
	default:
		return nil, StatusInvalidProperty
	}
}

// SetProperty implements Handle.
func (h *synthHandle) SetProperty(prop PropertyID, scope Scope, elem Element, value any) StatusCode {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return StatusUninitialized
	}

	if h.running && frozenWhileRunning(prop) {
		return StatusCannotDoInCurrentContext
	}

	switch prop {
	case PropStreamFormat:
		f, ok := value.(StreamFormat)
		if !ok {
			return StatusInvalidPropertyValue
		}

		if err := f.Validate(); err != nil || !h.dev.Supports(f) {
			return StatusFormatNotSupported
		}

		h.format = f

		return StatusNoError
	case PropSampleRate:
		rate, ok := value.(float64)
		if !ok {
			return StatusInvalidPropertyValue
		}

		if rate <= 0 {
			return StatusFormatNotSupported
		}

		h.format.SampleRate = rate

		return StatusNoError
	case PropBufferFrames:
		frames, ok := value.(uint32)
		if !ok {
			return StatusInvalidPropertyValue
		}

		if frames == 0 || frames > 1<<16 {
			return StatusInvalidPropertyValue
		}

		h.bufferFrames = frames

		return StatusNoError
	case PropBoundDevice:
		id, ok := value.(DeviceID)
		if !ok {
			return StatusInvalidPropertyValue
		}

		h.bound = id

		return StatusNoError
	case PropIOEnabled:
		enabled, ok := value.(bool)
		if !ok {
			return StatusInvalidPropertyValue
		}

		switch scope {
		case ScopeInput:
			h.inEnabled = enabled
		case ScopeOutput:
			h.outEnabled = enabled
		default:
			return StatusInvalidScope
		}

		return StatusNoError
	case PropLatency:
		return StatusPropertyNotWritable
	default:
		return StatusInvalidProperty
	}
}

// SetRenderProc implements Handle.
func (h *synthHandle) SetRenderProc(proc RenderProc) StatusCode {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return StatusUninitialized
	}

	if h.running {
		return StatusInitialized
	}

	h.proc = proc

	return StatusNoError
}

// Start implements Handle.
func (h *synthHandle) Start() StatusCode {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed:
		return StatusUninitialized
	case h.running:
		return StatusCannotDoInCurrentContext
	case h.proc == nil:
		return StatusNoConnection
	case h.format.SampleRate == 0 || h.bufferFrames == 0:
		return StatusCannotDoInCurrentContext
	}

	h.prepareBuffers()
	h.elapsed = 0
	h.phase = 0
	h.period = frameDuration(h.bufferFrames, h.format.SampleRate)
	h.running = true

	if !h.drv.manual {
		h.quit = make(chan struct{})
		h.done = make(chan struct{})
		go h.run(h.quit, h.done)
	}

	return StatusNoError
}

// Stop implements Handle. It returns only after the tick source is
// confirmed idle.
func (h *synthHandle) Stop() StatusCode {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()

		return StatusUninitialized
	}

	if !h.running {
		h.mu.Unlock()

		return StatusNoError
	}

	quit, done := h.quit, h.done
	h.running = false
	h.mu.Unlock()

	if quit != nil {
		close(quit)
		// Cessation confirmed only once the tick goroutine exits.
		<-done
	}

	return StatusNoError
}

// Close implements Handle.
func (h *synthHandle) Close() StatusCode {
	if code := h.Stop(); code != StatusNoError && code != StatusUninitialized {
		return code
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.proc = nil
	h.in = nil
	h.out = nil

	return StatusNoError
}

// prepareBuffers builds the per-tick driver buffers. Called under mu, before
// the realtime path is armed.
func (h *synthHandle) prepareBuffers() {
	h.in = nil
	h.out = nil

	dir := h.dev.Direction
	if (dir == DirectionIn || dir == DirectionDuplex) && h.inEnabled {
		h.in = allocBuffers(h.format, h.bufferFrames)
	}

	if (dir == DirectionOut || dir == DirectionDuplex) && h.outEnabled {
		h.out = allocBuffers(h.format, h.bufferFrames)
	}
}

func allocBuffers(f StreamFormat, frames uint32) [][]byte {
	if f.IsInterleaved {
		return [][]byte{make([]byte, frames*f.BytesPerFrame())}
	}

	bufs := make([][]byte, f.Channels)
	for i := range bufs {
		bufs[i] = make([]byte, frames*f.BytesPerSample())
	}

	return bufs
}

// run is the paced tick loop: the synthetic realtime thread.
func (h *synthHandle) run(quit, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

// advance performs one manual tick if the handle is running. The caller's
// goroutine stands in for the realtime thread; holding mu here gives Stop
// the same cessation guarantee the paced loop gets from done.
func (h *synthHandle) advance() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running || !h.drv.manual {
		return
	}

	h.tick()
}

// tick performs one render cycle: fill capture buffers, invoke the
// trampoline, hand the rendered output to the sink.
func (h *synthHandle) tick() {
	h.fillInput()

	h.proc(h.bufferFrames, h.elapsed, h.in, h.out)
	h.elapsed += h.period

	if h.drv.sink != nil && len(h.out) > 0 {
		h.drv.sink(h.format, h.out)
	}
}

// fillInput writes the configured tone, or silence, into the capture buffers.
func (h *synthHandle) fillInput() {
	if len(h.in) == 0 {
		return
	}

	if h.drv.toneAmp == 0 {
		zeroBuffers(h.in)

		return
	}

	step := 2 * math.Pi * h.drv.toneHz / h.format.SampleRate
	frames := int(h.bufferFrames)

	for frame := 0; frame < frames; frame++ {
		v := h.drv.toneAmp * math.Sin(h.phase)
		h.phase += step

		for ch := uint32(0); ch < h.format.Channels; ch++ {
			writeSample(h.format, h.in, frame, ch, v)
		}
	}

	if h.phase > 2*math.Pi {
		h.phase = math.Mod(h.phase, 2*math.Pi)
	}
}

// writeSample stores one normalized sample value in the format's layout.
func writeSample(f StreamFormat, bufs [][]byte, frame int, ch uint32, v float64) {
	buf, idx := bufs[0], frame*int(f.Channels)+int(ch)
	if !f.IsInterleaved {
		buf, idx = bufs[ch], frame
	}

	switch {
	case f.IsFloat:
		sampleViewF32(buf)[idx] = float32(v)
	case f.BitsPerChannel == 32:
		sampleViewI32(buf)[idx] = int32(v * math.MaxInt32)
	case f.BitsPerChannel == 24:
		s := int32(v * (1<<23 - 1))
		buf[idx*3] = byte(s)
		buf[idx*3+1] = byte(s >> 8)
		buf[idx*3+2] = byte(s >> 16)
	case f.BitsPerChannel == 16:
		sampleViewI16(buf)[idx] = int16(v * math.MaxInt16)
	case f.BitsPerChannel == 8:
		buf[idx] = byte(int8(v * math.MaxInt8))
	}
}

// frameDuration converts a frame count to wall time at the given rate.
func frameDuration(frames uint32, rate float64) time.Duration {
	return time.Duration(float64(frames) / rate * float64(time.Second))
}
