//go:build !linux || (!amd64 && !arm64)

package main

import (
	"errors"

	"github.com/gen2brain/aunit"
)

// nativeDriver reports that no native backend exists on this platform.
func nativeDriver() (aunit.Driver, error) {
	return nil, errors.New("no native playback driver on this platform")
}
