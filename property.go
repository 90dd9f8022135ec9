package aunit

import (
	"fmt"
	"sync/atomic"
	"time"
)

// propertyBridge is the typed get/set surface over a native handle. It
// translates between Go values and the native (property, scope, element)
// addressing scheme and maps native status codes into the error taxonomy.
//
// The bridge is control-thread only. Mutations of live-frozen properties are
// rejected while the unit is running; the state machine makes the check
// race-free, since only the control thread transitions state.
type propertyBridge struct {
	h       Handle
	running *atomic.Bool
}

// frozenWhileRunning reports whether the native layer forbids changing the
// property on a started unit.
func frozenWhileRunning(prop PropertyID) bool {
	switch prop {
	case PropStreamFormat, PropBufferFrames, PropBoundDevice, PropSampleRate:
		return true
	default:
		return false
	}
}

// get reads a raw property value.
func (pb *propertyBridge) get(prop PropertyID, scope Scope, elem Element) (any, error) {
	v, code := pb.h.GetProperty(prop, scope, elem)
	if code != StatusNoError {
		return nil, fmt.Errorf("get %s/%s: %w", prop, scope, statusErr(code))
	}

	return v, nil
}

// set writes a raw property value, refusing live mutation of frozen properties.
func (pb *propertyBridge) set(prop PropertyID, scope Scope, elem Element, value any) error {
	if pb.running.Load() && frozenWhileRunning(prop) {
		return fmt.Errorf("set %s: unit is running: %w", prop, ErrInvalidState)
	}

	if code := pb.h.SetProperty(prop, scope, elem, value); code != StatusNoError {
		return fmt.Errorf("set %s/%s: %w", prop, scope, statusErr(code))
	}

	return nil
}

func (pb *propertyBridge) streamFormat(scope Scope, elem Element) (StreamFormat, error) {
	v, err := pb.get(PropStreamFormat, scope, elem)
	if err != nil {
		return StreamFormat{}, err
	}

	f, ok := v.(StreamFormat)
	if !ok {
		return StreamFormat{}, fmt.Errorf("%w: %s holds %T, want StreamFormat", ErrPropertyTypeMismatch, PropStreamFormat, v)
	}

	return f, nil
}

func (pb *propertyBridge) setStreamFormat(scope Scope, elem Element, f StreamFormat) error {
	return pb.set(PropStreamFormat, scope, elem, f)
}

func (pb *propertyBridge) bufferFrames() (uint32, error) {
	v, err := pb.get(PropBufferFrames, ScopeGlobal, ElementOutput)
	if err != nil {
		return 0, err
	}

	n, ok := v.(uint32)
	if !ok {
		return 0, fmt.Errorf("%w: %s holds %T, want uint32", ErrPropertyTypeMismatch, PropBufferFrames, v)
	}

	return n, nil
}

func (pb *propertyBridge) setBufferFrames(n uint32) error {
	return pb.set(PropBufferFrames, ScopeGlobal, ElementOutput, n)
}

func (pb *propertyBridge) sampleRate(scope Scope) (float64, error) {
	v, err := pb.get(PropSampleRate, scope, ElementOutput)
	if err != nil {
		return 0, err
	}

	rate, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s holds %T, want float64", ErrPropertyTypeMismatch, PropSampleRate, v)
	}

	return rate, nil
}

func (pb *propertyBridge) setSampleRate(scope Scope, rate float64) error {
	return pb.set(PropSampleRate, scope, ElementOutput, rate)
}

func (pb *propertyBridge) setBoundDevice(id DeviceID) error {
	return pb.set(PropBoundDevice, ScopeGlobal, ElementOutput, id)
}

func (pb *propertyBridge) setIOEnabled(scope Scope, elem Element, enabled bool) error {
	return pb.set(PropIOEnabled, scope, elem, enabled)
}

func (pb *propertyBridge) latency() (time.Duration, error) {
	v, err := pb.get(PropLatency, ScopeGlobal, ElementOutput)
	if err != nil {
		return 0, err
	}

	d, ok := v.(time.Duration)
	if !ok {
		return 0, fmt.Errorf("%w: %s holds %T, want time.Duration", ErrPropertyTypeMismatch, PropLatency, v)
	}

	return d, nil
}
