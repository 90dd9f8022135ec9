// Package aunit provides a safe lifecycle and render-callback layer over native
// audio hardware. It lets an application enumerate devices, negotiate a stream
// format for an audio-processing unit, and exchange samples with the hardware
// through a realtime render callback, without handling raw native resources or
// violating realtime-thread constraints.
package aunit

import "fmt"

// Direction identifies the I/O role of a device or unit.
type Direction int32

const (
	// DirectionOut is a playback (render) role.
	DirectionOut Direction = 0
	// DirectionIn is a capture role.
	DirectionIn Direction = 1
	// DirectionDuplex is a combined capture and playback role.
	DirectionDuplex Direction = 2
)

// String returns a human-readable name for the direction.
func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "output"
	case DirectionIn:
		return "input"
	case DirectionDuplex:
		return "duplex"
	default:
		return fmt.Sprintf("direction(%d)", int32(d))
	}
}

// UnitState is the lifecycle state of a Unit.
type UnitState int32

const (
	StateUninitialized UnitState = 0 // Handle acquired, no format applied.
	StateConfigured    UnitState = 1 // Format negotiated and applied.
	StateRunning       UnitState = 2 // Realtime path armed, driver is invoking the trampoline.
	StateStopped       UnitState = 3 // Driver confirmed cessation; unit may be reconfigured.
	StateDisposed      UnitState = 4 // Native handle released.
)

// unitStateNames provides human-readable names for unit states.
var unitStateNames = map[UnitState]string{
	StateUninitialized: "uninitialized",
	StateConfigured:    "configured",
	StateRunning:       "running",
	StateStopped:       "stopped",
	StateDisposed:      "disposed",
}

// String returns a human-readable name for the state.
func (s UnitState) String() string {
	if name, ok := unitStateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", int32(s))
}

// Scope selects which side of a unit a property applies to.
// The values mirror the native kAudioUnitScope_* identifiers.
type Scope uint32

const (
	ScopeGlobal Scope = 0
	ScopeInput  Scope = 1
	ScopeOutput Scope = 2
)

// String returns a human-readable name for the scope.
func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeInput:
		return "input"
	case ScopeOutput:
		return "output"
	default:
		return fmt.Sprintf("scope(%d)", uint32(s))
	}
}

// Element selects a bus of a unit. Output units use element 0 for the
// render side and element 1 for the capture side.
type Element uint32

const (
	ElementOutput Element = 0
	ElementInput  Element = 1
)

// PropertyID identifies a native-unit configuration slot.
// The values mirror the native kAudioUnitProperty_* identifiers.
type PropertyID uint32

const (
	PropSampleRate   PropertyID = 2    // float64
	PropStreamFormat PropertyID = 8    // StreamFormat
	PropLatency      PropertyID = 12   // time.Duration, read-only
	PropBufferFrames PropertyID = 14   // uint32, frames per render tick
	PropBoundDevice  PropertyID = 2000 // DeviceID
	PropIOEnabled    PropertyID = 2003 // bool, per Scope
)

// PropertyNames provides human-readable names for property identifiers.
var PropertyNames = map[PropertyID]string{
	PropSampleRate:   "SampleRate",
	PropStreamFormat: "StreamFormat",
	PropLatency:      "Latency",
	PropBufferFrames: "BufferFrames",
	PropBoundDevice:  "BoundDevice",
	PropIOEnabled:    "IOEnabled",
}

// String returns a human-readable name for the property.
func (p PropertyID) String() string {
	if name, ok := PropertyNames[p]; ok {
		return name
	}

	return fmt.Sprintf("property(%d)", uint32(p))
}

// StatusCode is the raw result code of a native-layer operation.
// Zero means success; the nonzero values mirror the native
// kAudioUnitErr_* constants. Codes outside this set (for example
// negated errnos from a kernel driver) are passed through unmapped.
type StatusCode int32

const (
	StatusNoError                  StatusCode = 0
	StatusInvalidProperty          StatusCode = -10879
	StatusInvalidParameter         StatusCode = -10878
	StatusInvalidElement           StatusCode = -10877
	StatusNoConnection             StatusCode = -10876
	StatusFailedInitialization     StatusCode = -10875
	StatusTooManyFrames            StatusCode = -10874
	StatusFormatNotSupported       StatusCode = -10868
	StatusUninitialized            StatusCode = -10867
	StatusInvalidScope             StatusCode = -10866
	StatusPropertyNotWritable      StatusCode = -10865
	StatusCannotDoInCurrentContext StatusCode = -10863
	StatusInvalidPropertyValue     StatusCode = -10851
	StatusPropertyNotInUse         StatusCode = -10850
	StatusInitialized              StatusCode = -10849
	StatusInvalidOfflineRender     StatusCode = -10848
	StatusUnauthorized             StatusCode = -10847
)

// statusNames provides human-readable names for the mapped status codes.
var statusNames = map[StatusCode]string{
	StatusNoError:                  "no error",
	StatusInvalidProperty:          "invalid property",
	StatusInvalidParameter:         "invalid parameter",
	StatusInvalidElement:           "invalid element",
	StatusNoConnection:             "no connection",
	StatusFailedInitialization:     "failed initialization",
	StatusTooManyFrames:            "too many frames to process",
	StatusFormatNotSupported:       "format not supported",
	StatusUninitialized:            "uninitialized",
	StatusInvalidScope:             "invalid scope",
	StatusPropertyNotWritable:      "property not writable",
	StatusCannotDoInCurrentContext: "cannot do in current context",
	StatusInvalidPropertyValue:     "invalid property value",
	StatusPropertyNotInUse:         "property not in use",
	StatusInitialized:              "initialized",
	StatusInvalidOfflineRender:     "invalid offline render",
	StatusUnauthorized:             "unauthorized",
}

// String returns a human-readable name for the status code.
func (c StatusCode) String() string {
	if name, ok := statusNames[c]; ok {
		return name
	}

	return fmt.Sprintf("status(%d)", int32(c))
}
