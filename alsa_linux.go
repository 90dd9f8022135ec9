//go:build linux && (amd64 || arm64)

package aunit

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AlsaDriver is the Driver implementation over the Linux ALSA PCM interface.
// It talks to /dev/snd device nodes directly via ioctl; the ALSA plugin layer
// (dmix, plughw) is not involved, so only direct hardware PCM devices are
// visible. The realtime thread is a per-handle I/O goroutine paced by the
// device's own transfer clock.
type AlsaDriver struct{}

// NewAlsaDriver returns a driver over the ALSA kernel interface.
func NewAlsaDriver() *AlsaDriver {
	return &AlsaDriver{}
}

// Name implements Driver.
func (d *AlsaDriver) Name() string {
	return "alsa"
}

// Candidate values probed against the refined hardware ranges during
// enumeration. ALSA reports ranges; the directory advertises discrete points.
var (
	alsaRateCandidates    = []float64{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}
	alsaChannelCandidates = []uint32{1, 2, 4, 6, 8}
)

// alsaSampleKinds maps ALSA format codes to the stream-format fields they
// express, in preference order.
var alsaSampleKinds = []struct {
	code    uint32
	bits    uint32
	isFloat bool
}{
	{sndFormatS16LE, 16, false},
	{sndFormatS243LE, 24, false},
	{sndFormatS32LE, 32, false},
	{sndFormatFloatLE, 32, true},
	{sndFormatS8, 8, false},
}

// alsaFormatCode translates a stream format to the ALSA format code.
func alsaFormatCode(f StreamFormat) (uint32, bool) {
	for _, k := range alsaSampleKinds {
		if k.bits == f.BitsPerChannel && k.isFloat == f.IsFloat {
			return k.code, true
		}
	}

	return 0, false
}

var alsaPcmLine = regexp.MustCompile(`^(\d+)-(\d+): (.*?) :`)
var alsaCardLine = regexp.MustCompile(`^\s*(\d+)\s+\[\s*([^]]*?)\s*\]:\s*(.*)`)

// Devices implements Driver. It scans /proc/asound for PCM devices and
// queries each node's refined hardware ranges. The snapshot is rebuilt on
// every call since cards can be hot-plugged.
func (d *AlsaDriver) Devices(dir Direction) ([]Device, error) {
	cardsContent, err := os.ReadFile("/proc/asound/cards")
	if err != nil {
		return nil, fmt.Errorf("could not read /proc/asound/cards: %w", err)
	}

	cardNames := make(map[int]string)
	for _, line := range strings.Split(string(cardsContent), "\n") {
		if m := alsaCardLine.FindStringSubmatch(line); len(m) == 4 {
			if id, err := strconv.Atoi(m[1]); err == nil {
				cardNames[id] = strings.TrimSpace(m[3])
			}
		}
	}

	pcmContent, err := os.ReadFile("/proc/asound/pcm")
	if err != nil {
		return nil, fmt.Errorf("could not read /proc/asound/pcm: %w", err)
	}

	var result []Device
	for _, line := range strings.Split(string(pcmContent), "\n") {
		m := alsaPcmLine.FindStringSubmatch(line)
		if len(m) < 4 {
			continue
		}

		card, _ := strconv.Atoi(m[1])
		devNum, _ := strconv.Atoi(m[2])
		hasPlayback := strings.Contains(line, "playback")
		hasCapture := strings.Contains(line, "capture")

		var devDir Direction
		switch {
		case hasPlayback && hasCapture:
			devDir = DirectionDuplex
		case hasPlayback:
			devDir = DirectionOut
		case hasCapture:
			devDir = DirectionIn
		default:
			continue
		}

		if dir == DirectionDuplex && devDir != DirectionDuplex {
			continue
		}

		dev := Device{
			ID:        DeviceID(fmt.Sprintf("hw:%d,%d", card, devNum)),
			Name:      fmt.Sprintf("%s, %s", cardNames[card], strings.TrimSpace(m[3])),
			Direction: devDir,
			IsDefault: card == 0 && devNum == 0,
		}

		if !dev.Matches(dir) {
			continue
		}

		formats, err := alsaQueryFormats(uint(card), uint(devNum), !hasPlayback)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EACCES) {
				// Node owned by someone else right now; not an enumeration failure.
				continue
			}

			return nil, err
		}

		dev.SupportedFormats = formats
		result = append(result, dev)
	}

	return result, nil
}

// DefaultDevice implements Driver. ALSA's convention makes card 0 device 0
// the system default.
func (d *AlsaDriver) DefaultDevice(dir Direction) (*Device, error) {
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

// alsaQueryFormats opens a PCM node and asks the kernel to refine the full
// parameter space down to what the hardware supports.
func alsaQueryFormats(card, devNum uint, capture bool) ([]StreamFormat, error) {
	file, err := alsaOpenNode(card, devNum, capture, true)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hw := &sndPcmHwParams{}
	hwParamsInit(hw)

	if err := ioctl(file.Fd(), pcmIoctlHwRefine, uintptr(unsafe.Pointer(hw))); err != nil {
		return nil, fmt.Errorf("ioctl HW_REFINE on hw:%d,%d failed: %w", card, devNum, err)
	}

	rateMin, rateMax := hwParamsInterval(hw, hwParamRate)
	chMin, chMax := hwParamsInterval(hw, hwParamChannels)

	var formats []StreamFormat
	for _, rate := range alsaRateCandidates {
		if rate < float64(rateMin) || rate > float64(rateMax) {
			continue
		}

		for _, ch := range alsaChannelCandidates {
			if ch < chMin || ch > chMax {
				continue
			}

			for _, k := range alsaSampleKinds {
				if !hwParamsMaskTest(hw, hwParamFormat, k.code) {
					continue
				}

				formats = append(formats, StreamFormat{
					SampleRate:     rate,
					Channels:       ch,
					BitsPerChannel: k.bits,
					IsFloat:        k.isFloat,
					IsInterleaved:  true,
				})
			}
		}
	}

	return formats, nil
}

// alsaOpenNode opens a /dev/snd PCM node. Opening is always non-blocking to
// avoid getting stuck on a busy device; the flag is cleared afterwards when
// blocking I/O is wanted.
func alsaOpenNode(card, devNum uint, capture, nonblock bool) (*os.File, error) {
	streamChar := byte('p')
	if capture {
		streamChar = 'c'
	}

	path := fmt.Sprintf("/dev/snd/pcmC%dD%d%c", card, devNum, streamChar)

	file, err := os.OpenFile(path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCM device %s: %w", path, err)
	}

	if !nonblock {
		flags, err := unix.FcntlInt(file.Fd(), unix.F_GETFL, 0)
		if err == nil {
			_, err = unix.FcntlInt(file.Fd(), unix.F_SETFL, flags&^syscall.O_NONBLOCK)
		}

		if err != nil {
			_ = file.Close()

			return nil, fmt.Errorf("failed to set blocking mode on %s: %w", path, err)
		}
	}

	return file, nil
}

// Open implements Driver.
func (d *AlsaDriver) Open(dev *Device) (Handle, error) {
	if dev == nil {
		return nil, fmt.Errorf("no device given")
	}

	var card, devNum uint
	if _, err := fmt.Sscanf(string(dev.ID), "hw:%d,%d", &card, &devNum); err != nil {
		return nil, fmt.Errorf("invalid device id %q: expected 'hw:card,device'", dev.ID)
	}

	h := &alsaHandle{
		dev:        dev,
		inEnabled:  true,
		outEnabled: true,
	}

	var err error
	if dev.Direction == DirectionOut || dev.Direction == DirectionDuplex {
		h.playback, err = alsaOpenNode(card, devNum, false, false)
		if err != nil {
			return nil, err
		}
	}

	if dev.Direction == DirectionIn || dev.Direction == DirectionDuplex {
		h.capture, err = alsaOpenNode(card, devNum, true, false)
		if err != nil {
			if h.playback != nil {
				_ = h.playback.Close()
			}

			return nil, err
		}
	}

	return h, nil
}

// alsaHandle is an open native handle on an ALSA PCM device.
type alsaHandle struct {
	dev      *Device
	playback *os.File
	capture  *os.File

	mu           sync.Mutex
	closed       bool
	running      bool
	format       StreamFormat
	bufferFrames uint32
	periods      uint32
	bound        DeviceID
	inEnabled    bool
	outEnabled   bool
	proc         RenderProc
	xruns        int

	quit chan struct{}
	done chan struct{}
}

// GetProperty implements Handle.
func (h *alsaHandle) GetProperty(prop PropertyID, scope Scope, elem Element) (any, StatusCode) {
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
		if h.bound != "" {
			return h.bound, StatusNoError
		}

		return h.dev.ID, StatusNoError
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

		return time.Duration(h.periods) * frameDuration(h.bufferFrames, h.format.SampleRate), StatusNoError
	default:
		return nil, StatusInvalidProperty
	}
}

// SetProperty implements Handle. Format and buffer size are pushed to the
// kernel as soon as both are known; the kernel's refined values replace the
// requested ones.
func (h *alsaHandle) SetProperty(prop PropertyID, scope Scope, elem Element, value any) StatusCode {
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

		if f.Validate() != nil || !f.IsInterleaved {
			// The read/write transfer path carries interleaved frames only.
			return StatusFormatNotSupported
		}

		if _, ok := alsaFormatCode(f); !ok {
			return StatusFormatNotSupported
		}

		h.format = f

		return h.applyParams()
	case PropBufferFrames:
		frames, ok := value.(uint32)
		if !ok {
			return StatusInvalidPropertyValue
		}

		if frames == 0 || frames > 1<<16 {
			return StatusInvalidPropertyValue
		}

		h.bufferFrames = frames

		return h.applyParams()
	case PropSampleRate:
		rate, ok := value.(float64)
		if !ok {
			return StatusInvalidPropertyValue
		}

		if rate <= 0 {
			return StatusFormatNotSupported
		}

		h.format.SampleRate = rate

		return h.applyParams()
	case PropBoundDevice:
		id, ok := value.(DeviceID)
		if !ok {
			return StatusInvalidPropertyValue
		}

		if id != h.dev.ID {
			// Rebinding an open ALSA node to another card is not expressible.
			return StatusPropertyNotWritable
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

// applyParams pushes hardware and software parameters to every open node.
// Called under mu with the unit not running. No-op until both format and
// buffer size are known.
func (h *alsaHandle) applyParams() StatusCode {
	if h.format.SampleRate == 0 || h.bufferFrames == 0 {
		return StatusNoError
	}

	if h.playback != nil {
		if code := h.applyParamsTo(h.playback, false); code != StatusNoError {
			return code
		}
	}

	if h.capture != nil {
		if code := h.applyParamsTo(h.capture, true); code != StatusNoError {
			return code
		}
	}

	return StatusNoError
}

func (h *alsaHandle) applyParamsTo(file *os.File, capture bool) StatusCode {
	formatCode, _ := alsaFormatCode(h.format)

	hw := &sndPcmHwParams{}
	hwParamsInit(hw)
	hwParamsSetMask(hw, hwParamAccess, accessRWInterleaved)
	hwParamsSetMask(hw, hwParamFormat, formatCode)
	hwParamsSetInt(hw, hwParamChannels, h.format.Channels)
	hwParamsSetInt(hw, hwParamRate, uint32(h.format.SampleRate))
	hwParamsSetMin(hw, hwParamPeriodSize, h.bufferFrames)
	hwParamsSetInt(hw, hwParamPeriods, 4)

	if err := ioctl(file.Fd(), pcmIoctlHwParams, uintptr(unsafe.Pointer(hw))); err != nil {
		if errors.Is(err, syscall.EINVAL) {
			return StatusFormatNotSupported
		}

		return statusFromErrno(err)
	}

	// The kernel narrows the requested intervals; the negotiated rate and
	// channel count must survive, the buffer geometry we take as refined.
	if hwParamsGetInt(hw, hwParamRate) != uint32(h.format.SampleRate) ||
		hwParamsGetInt(hw, hwParamChannels) != h.format.Channels {
		return StatusFormatNotSupported
	}

	h.bufferFrames = hwParamsGetInt(hw, hwParamPeriodSize)
	h.periods = hwParamsGetInt(hw, hwParamPeriods)

	sw := &sndPcmSwParams{
		TstampMode: 1, // SNDRV_PCM_TSTAMP_ENABLE
		PeriodStep: 1,
		AvailMin:   uframes(h.bufferFrames),
		XferAlign:  1,
	}

	if capture {
		sw.StartThreshold = 1 // Arm on the first read.
		sw.StopThreshold = uframes(h.bufferFrames * h.periods * 10)
	} else {
		sw.StartThreshold = uframes(h.bufferFrames * h.periods / 2)
		sw.StopThreshold = uframes(h.bufferFrames * h.periods)
	}

	if err := ioctl(file.Fd(), pcmIoctlSwParams, uintptr(unsafe.Pointer(sw))); err != nil {
		return statusFromErrno(err)
	}

	return StatusNoError
}

// SetRenderProc implements Handle.
func (h *alsaHandle) SetRenderProc(proc RenderProc) StatusCode {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed:
		return StatusUninitialized
	case h.running:
		return StatusInitialized
	}

	h.proc = proc

	return StatusNoError
}

// Start implements Handle: prepare the streams and launch the I/O loop.
func (h *alsaHandle) Start() StatusCode {
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

	for _, file := range h.files() {
		if err := ioctl(file.Fd(), pcmIoctlPrepare, 0); err != nil {
			return statusFromErrno(err)
		}
	}

	h.quit = make(chan struct{})
	h.done = make(chan struct{})
	h.running = true

	go h.ioLoop(h.quit, h.done)

	return StatusNoError
}

// Stop implements Handle. The pending transfer is dropped to unblock the I/O
// loop, and Stop returns only after the loop has exited: from then on the
// trampoline is guaranteed not to be invoked again.
func (h *alsaHandle) Stop() StatusCode {
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
	h.mu.Unlock()

	close(quit)
	for _, file := range h.files() {
		_ = ioctl(file.Fd(), pcmIoctlDrop, 0)
	}
	<-done

	h.mu.Lock()
	h.running = false
	h.mu.Unlock()

	return StatusNoError
}

// Close implements Handle.
func (h *alsaHandle) Close() StatusCode {
	if code := h.Stop(); code != StatusNoError && code != StatusUninitialized {
		return code
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return StatusNoError
	}

	for _, file := range h.files() {
		_ = file.Close()
	}

	h.closed = true
	h.proc = nil

	return StatusNoError
}

func (h *alsaHandle) files() []*os.File {
	var fs []*os.File
	if h.playback != nil {
		fs = append(fs, h.playback)
	}

	if h.capture != nil {
		fs = append(fs, h.capture)
	}

	return fs
}

// ioLoop is the realtime thread: one capture read, one trampoline tick, one
// playback write per period, paced by the device's transfer clock.
func (h *alsaHandle) ioLoop(quit, done chan struct{}) {
	defer close(done)

	h.mu.Lock()
	var (
		frames   = h.bufferFrames
		format   = h.format
		proc     = h.proc
		playback = h.playback
		capture  = h.capture
	)

	var in, out [][]byte
	if capture != nil && h.inEnabled {
		in = [][]byte{make([]byte, frames*format.BytesPerFrame())}
	}

	if playback != nil && h.outEnabled {
		out = [][]byte{make([]byte, frames*format.BytesPerFrame())}
	}
	h.mu.Unlock()

	period := frameDuration(frames, format.SampleRate)

	var elapsed time.Duration
	for {
		select {
		case <-quit:
			return
		default:
		}

		if in != nil {
			if !h.xfer(capture, pcmIoctlReadi, in[0], frames, quit) {
				return
			}
		}

		proc(frames, elapsed, in, out)

		if out != nil {
			if !h.xfer(playback, pcmIoctlWritei, out[0], frames, quit) {
				return
			}
		}

		elapsed += period
	}
}

// xfer moves one period of interleaved frames, recovering from xruns the way
// the kernel expects: re-prepare and retry. Returns false once the loop
// should exit.
func (h *alsaHandle) xfer(file *os.File, req uintptr, buf []byte, frames uint32, quit chan struct{}) bool {
	frameSize := uint32(len(buf)) / frames

	var moved uint32
	for moved < frames {
		x := sndXferi{
			Frames: uframes(frames - moved),
			Buf:    uintptr(unsafe.Pointer(&buf[moved*frameSize])),
		}

		err := ioctl(file.Fd(), req, uintptr(unsafe.Pointer(&x)))
		if x.Result > 0 {
			moved += uint32(x.Result)
		}

		if err == nil {
			continue
		}

		select {
		case <-quit:
			return false
		default:
		}

		if errors.Is(err, syscall.EPIPE) || errors.Is(err, unix.ESTRPIPE) {
			h.mu.Lock()
			h.xruns++
			h.mu.Unlock()

			if prepErr := ioctl(file.Fd(), pcmIoctlPrepare, 0); prepErr != nil {
				return false
			}

			continue
		}

		return false
	}

	return true
}

// statusFromErrno passes a kernel errno through as a raw native code, the
// negated errno, for the taxonomy's NativeError catch-all.
func statusFromErrno(err error) StatusCode {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return StatusCode(-int32(errno))
	}

	return StatusCannotDoInCurrentContext
}
