package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/hajimehoshi/go-mp3"

	"github.com/go-audio/wav"

	"github.com/gen2brain/aunit"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <wav-or-mp3-file>\n", os.Args[0])
		os.Exit(1)
	}

	path := os.Args[1]

	samples, rate, channels, err := decode(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %s: %v\n", path, err)
		os.Exit(1)
	}

	drv, err := nativeDriver()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	u, err := aunit.Open(drv, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer u.Dispose()

	format := aunit.StreamFormat{
		SampleRate:     float64(rate),
		Channels:       uint32(channels),
		BitsPerChannel: 16,
		IsInterleaved:  true,
	}

	if err := u.Configure(format); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	negotiated := u.Format()
	if negotiated.BitsPerChannel != 16 || !negotiated.IsInterleaved {
		fmt.Fprintf(os.Stderr, "Device negotiated %s, only 16-bit interleaved playback is supported\n", negotiated)
		os.Exit(1)
	}

	fmt.Printf("Playing %s as %s on %s\n", filepath.Base(path), negotiated, u.Device().ID)

	var (
		pos      int
		finish   sync.Once
		finished = make(chan struct{})
	)

	err = u.RegisterCallback(func(req *aunit.RenderRequest) error {
		out := req.OutputI16(0)

		n := copy(out, samples[pos:])
		pos += n

		for i := n; i < len(out); i++ {
			out[i] = 0
		}

		if pos >= len(samples) {
			finish.Do(func() { close(finished) })
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

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-finished:
	case <-sig:
		fmt.Println("\nInterrupted")
	case ev := <-u.Events():
		fmt.Fprintf(os.Stderr, "Render fault at tick %d: %s\n", ev.Tick, ev.Kind)
	}

	if err := u.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping: %v\n", err)
		os.Exit(1)
	}
}

// decode reads the whole file into interleaved 16-bit samples.
func decode(path string) (samples []int16, rate, channels int, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWav(path)
	case ".mp3":
		return decodeMp3(path)
	default:
		return nil, 0, 0, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func decodeWav(path string) ([]int16, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}

	shift := 0
	if buf.SourceBitDepth > 16 {
		shift = buf.SourceBitDepth - 16
	}

	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s >> shift)
	}

	return samples, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

func decodeMp3(path string) ([]int16, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, 0, err
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, err
	}

	// The decoder always produces 16-bit stereo little-endian PCM.
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	return samples, dec.SampleRate(), 2, nil
}
