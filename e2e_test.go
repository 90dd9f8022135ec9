package aunit_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/aunit"
)

// TestDuplexPassthroughToWav walks the whole stack: negotiate a float format
// on a duplex device, run ten deterministic ticks of tone passthrough,
// confirm cessation, and persist what came out of the render side as a WAV
// file that decodes back to the same shape.
func TestDuplexPassthroughToWav(t *testing.T) {
	dev := aunit.Device{
		ID:        "synth:duplex",
		Name:      "Duplex Rig",
		Direction: aunit.DirectionDuplex,
		IsDefault: true,
		SupportedFormats: []aunit.StreamFormat{
			{SampleRate: 48000, Channels: 2, BitsPerChannel: 16, IsInterleaved: true},
			{SampleRate: 48000, Channels: 2, BitsPerChannel: 32, IsFloat: true, IsInterleaved: true},
		},
	}

	var rendered []float32
	drv := aunit.NewSynthDriver(
		aunit.WithManualClock(),
		aunit.WithDevices(dev),
		aunit.WithInputTone(440, 0.5),
		aunit.WithOutputSink(func(f aunit.StreamFormat, output [][]byte) {
			for _, buf := range output {
				for i := 0; i+4 <= len(buf); i += 4 {
					bits := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24
					rendered = append(rendered, math.Float32frombits(bits))
				}
			}
		}),
	)

	u, err := aunit.Open(drv, nil)
	require.NoError(t, err)
	defer u.Dispose()

	want := aunit.StreamFormat{SampleRate: 48000, Channels: 2, BitsPerChannel: 32, IsFloat: true, IsInterleaved: true}
	require.NoError(t, u.SetBufferFrames(512))
	require.NoError(t, u.Configure(want))
	require.Equal(t, want, u.Format(), "exact advertised match must win negotiation")
	require.Equal(t, uint32(512), u.BufferFrames())

	calls := 0
	require.NoError(t, u.RegisterCallback(func(req *aunit.RenderRequest) error {
		calls++
		require.Equal(t, 512, req.Frames)
		require.Equal(t, want, req.Format())

		in, out := req.InputF32(0), req.OutputF32(0)
		require.Len(t, in, req.Frames*2)
		copy(out, in)

		return nil
	}))

	require.NoError(t, u.Start())
	drv.Advance(10)
	require.NoError(t, u.Stop())

	assert.Equal(t, 10, calls, "one callback invocation per tick")
	assert.Equal(t, uint64(10), u.Ticks())
	assert.Zero(t, u.FailedTicks())
	require.Len(t, rendered, 10*512*2)

	// The tone must have survived the passthrough.
	var peak float32
	for _, s := range rendered {
		if s > peak {
			peak = s
		}
	}
	assert.InDelta(t, 0.5, peak, 0.01)

	path := filepath.Join(t.TempDir(), "passthrough.wav")
	writeWav(t, path, want, rendered)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 48000, buf.Format.SampleRate)
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Len(t, buf.Data, 10*512*2)
}

// writeWav persists normalized float samples as 16-bit PCM.
func writeWav(t *testing.T, path string, format aunit.StreamFormat, samples []float32) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, int(format.SampleRate), 16, int(format.Channels), 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: int(format.SampleRate), NumChannels: int(format.Channels)},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(s * 32767)
	}

	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}
