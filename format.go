package aunit

import (
	"fmt"
	"math"
)

// StreamFormat describes the layout of linear PCM samples in a stream.
// It is a plain value: construct it, validate it, compare it with ==.
type StreamFormat struct {
	// SampleRate in frames per second.
	SampleRate float64
	// Channels per frame.
	Channels uint32
	// BitsPerChannel must be one of 8, 16, 24 or 32.
	BitsPerChannel uint32
	// IsFloat selects 32-bit floating point samples instead of signed integers.
	IsFloat bool
	// IsInterleaved selects a single buffer with channel samples interleaved
	// per frame, instead of one buffer per channel.
	IsInterleaved bool
}

// Validate checks the format for internal consistency.
func (f StreamFormat) Validate() error {
	if f.SampleRate <= 0 || math.IsNaN(f.SampleRate) || math.IsInf(f.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate %v", ErrFormatUnsupported, f.SampleRate)
	}

	if f.Channels == 0 {
		return fmt.Errorf("%w: zero channels", ErrFormatUnsupported)
	}

	switch f.BitsPerChannel {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: %d bits per channel", ErrFormatUnsupported, f.BitsPerChannel)
	}

	if f.IsFloat && f.BitsPerChannel != 32 {
		return fmt.Errorf("%w: float samples require 32 bits, got %d", ErrFormatUnsupported, f.BitsPerChannel)
	}

	// The frame size must stay representable.
	if uint64(f.Channels)*uint64(f.BytesPerSample()) > math.MaxUint32 {
		return fmt.Errorf("%w: frame size overflows with %d channels", ErrFormatUnsupported, f.Channels)
	}

	return nil
}

// BytesPerSample returns the size of a single channel sample in bytes.
func (f StreamFormat) BytesPerSample() uint32 {
	return f.BitsPerChannel / 8
}

// BytesPerFrame returns the size of one frame (one sample per channel) in bytes.
func (f StreamFormat) BytesPerFrame() uint32 {
	return f.Channels * f.BytesPerSample()
}

// Compatible reports whether two formats agree on sample rate and channel
// count. Bit depth and interleaving may still differ; the unit converts those.
func (f StreamFormat) Compatible(other StreamFormat) bool {
	return f.SampleRate == other.SampleRate && f.Channels == other.Channels
}

// String returns a human-readable representation of the format.
func (f StreamFormat) String() string {
	kind := "int"
	if f.IsFloat {
		kind = "float"
	}

	layout := "non-interleaved"
	if f.IsInterleaved {
		layout = "interleaved"
	}

	return fmt.Sprintf("%gHz %dch %dbit %s %s", f.SampleRate, f.Channels, f.BitsPerChannel, kind, layout)
}

// Negotiate picks the supported format closest to the requested one.
//
// An exact match wins. Otherwise, among supported formats sharing the
// requested sample rate and channel count, the one with the smallest
// bit-depth difference is chosen; ties are broken toward the higher bit
// depth, then toward a matching sample kind (float vs integer), then toward
// matching interleaving. If no supported format shares sample rate and
// channel count with the request, ErrFormatUnsupported is returned.
func Negotiate(requested StreamFormat, supported []StreamFormat) (StreamFormat, error) {
	if err := requested.Validate(); err != nil {
		return StreamFormat{}, err
	}

	var (
		best  StreamFormat
		found bool
	)

	for _, cand := range supported {
		if cand == requested {
			return cand, nil
		}

		if !cand.Compatible(requested) {
			continue
		}

		if !found || closerTo(requested, cand, best) {
			best = cand
			found = true
		}
	}

	if !found {
		return StreamFormat{}, fmt.Errorf("%w: no supported format matches %gHz/%dch",
			ErrFormatUnsupported, requested.SampleRate, requested.Channels)
	}

	return best, nil
}

// closerTo reports whether candidate a is a better match for the request than b.
func closerTo(req, a, b StreamFormat) bool {
	da, db := bitDelta(req, a), bitDelta(req, b)
	if da != db {
		return da < db
	}

	if a.BitsPerChannel != b.BitsPerChannel {
		return a.BitsPerChannel > b.BitsPerChannel
	}

	if (a.IsFloat == req.IsFloat) != (b.IsFloat == req.IsFloat) {
		return a.IsFloat == req.IsFloat
	}

	if (a.IsInterleaved == req.IsInterleaved) != (b.IsInterleaved == req.IsInterleaved) {
		return a.IsInterleaved == req.IsInterleaved
	}

	return false
}

// bitDelta returns the absolute bit-depth difference between the request and a candidate.
func bitDelta(req, cand StreamFormat) uint32 {
	if cand.BitsPerChannel > req.BitsPerChannel {
		return cand.BitsPerChannel - req.BitsPerChannel
	}

	return req.BitsPerChannel - cand.BitsPerChannel
}
