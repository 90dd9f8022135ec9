package aunit

import (
	"fmt"
	"strings"
)

// DeviceID is an opaque, stable identifier for a hardware endpoint.
type DeviceID string

// Device describes a hardware endpoint at a point in time. It holds no live
// handle; resolve it to a Unit with Open. After a hot-plug event a snapshot
// goes stale and must be re-queried, not mutated.
type Device struct {
	ID               DeviceID
	Name             string
	Direction        Direction
	SupportedFormats []StreamFormat
	IsDefault        bool
}

// Supports reports whether the device advertises the exact format.
func (d Device) Supports(f StreamFormat) bool {
	for _, s := range d.SupportedFormats {
		if s == f {
			return true
		}
	}

	return false
}

// Matches reports whether the device can serve the given direction.
// A duplex device serves input and output roles as well.
func (d Device) Matches(dir Direction) bool {
	return d.Direction == dir || d.Direction == DirectionDuplex
}

// String returns a human-readable representation of the device.
func (d Device) String() string {
	var sb strings.Builder

	def := ""
	if d.IsDefault {
		def = " (default)"
	}

	sb.WriteString(fmt.Sprintf("%s: %s [%s]%s\n", d.ID, d.Name, d.Direction, def))
	for _, f := range d.SupportedFormats {
		sb.WriteString("  " + f.String() + "\n")
	}

	return sb.String()
}

// Directory enumerates hardware endpoints through a driver. Every query goes
// to the native registry; nothing is cached across calls, since hardware can
// be hot-plugged between them.
type Directory struct {
	drv Driver
}

// NewDirectory returns a directory backed by the driver.
func NewDirectory(drv Driver) *Directory {
	return &Directory{drv: drv}
}

// Devices returns a snapshot of all endpoints serving the direction.
func (dir *Directory) Devices(d Direction) ([]Device, error) {
	devs, err := dir.drv.Devices(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceQueryFailed, dir.drv.Name(), err)
	}

	return devs, nil
}

// Default returns the system default endpoint for the direction, or nil if
// no device of that direction exists.
func (dir *Directory) Default(d Direction) (*Device, error) {
	dev, err := dir.drv.DefaultDevice(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceQueryFailed, dir.drv.Name(), err)
	}

	return dev, nil
}
