package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/gen2brain/aunit"
)

func main() {
	var (
		rate     int
		channels int
		freq     float64
		amp      float64
		duration float64
		frames   int
	)

	flag.IntVar(&rate, "rate", 48000, "The sample rate in Hz")
	flag.IntVar(&channels, "channels", 2, "The number of channels")
	flag.Float64Var(&freq, "freq", 440, "The tone frequency in Hz")
	flag.Float64Var(&amp, "amp", 0.5, "The tone amplitude, 0 to 1")
	flag.Float64Var(&duration, "duration", 2, "The duration in seconds")
	flag.IntVar(&frames, "buffer", 512, "The buffer size in frames")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <output-wav-file>\n", os.Args[0])
		os.Exit(1)
	}

	outputPath := flag.Arg(0)

	var samples []int
	drv := aunit.NewSynthDriver(
		aunit.WithManualClock(),
		aunit.WithOutputSink(func(f aunit.StreamFormat, output [][]byte) {
			buf := output[0]
			for i := 0; i+4 <= len(buf); i += 4 {
				v := math.Float32frombits(binary.LittleEndian.Uint32(buf[i:]))
				samples = append(samples, int(v*32767))
			}
		}),
	)

	u, err := aunit.Open(drv, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer u.Dispose()

	format := aunit.StreamFormat{
		SampleRate:     float64(rate),
		Channels:       uint32(channels),
		BitsPerChannel: 32,
		IsFloat:        true,
		IsInterleaved:  true,
	}

	if err := u.SetBufferFrames(uint32(frames)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := u.Configure(format); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	negotiated := u.Format()
	fmt.Printf("Rendering %gs of %gHz tone as %s\n", duration, freq, negotiated)

	var phase float64
	step := 2 * math.Pi * freq / negotiated.SampleRate

	err = u.RegisterCallback(func(req *aunit.RenderRequest) error {
		out := req.OutputF32(0)
		ch := int(req.Format().Channels)

		for frame := 0; frame < req.Frames; frame++ {
			v := float32(amp * math.Sin(phase))
			phase += step

			for c := 0; c < ch; c++ {
				out[frame*ch+c] = v
			}
		}

		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := u.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ticks := int(duration*negotiated.SampleRate)/int(u.BufferFrames()) + 1
	drv.Advance(ticks)

	if err := u.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for {
		select {
		case ev := <-u.Events():
			fmt.Fprintf(os.Stderr, "Render fault at tick %d: %s\n", ev.Tick, ev.Kind)

			continue
		default:
		}

		break
	}

	if err := writeWav(outputPath, negotiated, samples); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d frames to %s\n", len(samples)/int(negotiated.Channels), outputPath)
}

// writeWav persists interleaved 16-bit samples as a PCM WAV file.
func writeWav(path string, format aunit.StreamFormat, samples []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, int(format.SampleRate), 16, int(format.Channels), 1)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			SampleRate:  int(format.SampleRate),
			NumChannels: int(format.Channels),
		},
		SourceBitDepth: 16,
		Data:           samples,
	}

	if err := enc.Write(buf); err != nil {
		return err
	}

	return enc.Close()
}
