//go:build linux && (amd64 || arm64)

package main

import (
	"github.com/gen2brain/aunit"
)

// nativeDriver returns the ALSA driver.
func nativeDriver() (aunit.Driver, error) {
	return aunit.NewAlsaDriver(), nil
}
