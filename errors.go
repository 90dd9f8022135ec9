package aunit

import (
	"errors"
	"fmt"
)

// Closed error taxonomy for the control surface. Configuration-time failures
// wrap one of these sentinels; callers match them with errors.Is.
var (
	// ErrDeviceQueryFailed wraps a native failure while enumerating devices.
	ErrDeviceQueryFailed = errors.New("device query failed")
	// ErrUnitCreationFailed reports that the native layer could not allocate a unit.
	ErrUnitCreationFailed = errors.New("unit creation failed")
	// ErrFormatUnsupported reports that no supported format shares sample rate
	// and channel count with the requested one.
	ErrFormatUnsupported = errors.New("format unsupported")
	// ErrPropertyTypeMismatch reports a value of the wrong type for a native
	// property slot. Values are never silently coerced.
	ErrPropertyTypeMismatch = errors.New("property type mismatch")
	// ErrInvalidState reports an operation not permitted in the unit's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid state for operation")
	// ErrStartFailed reports that the native layer refused to arm the realtime path.
	ErrStartFailed = errors.New("start failed")
	// ErrStopFailed reports that the native layer could not confirm cessation.
	// The unit must then still be treated as running.
	ErrStopFailed = errors.New("stop failed")
	// ErrUnitDisposed reports an operation on a unit whose handle was released.
	ErrUnitDisposed = errors.New("unit disposed")
)

// NativeError carries a raw native status code that has no mapping in the
// closed taxonomy. The code is preserved for diagnostics.
type NativeError struct {
	Code StatusCode
}

// Error implements the error interface.
func (e *NativeError) Error() string {
	return fmt.Sprintf("native error %d (%s)", int32(e.Code), e.Code)
}

// statusErr translates a native status code into the closed taxonomy.
// Unmapped codes come back as *NativeError carrying the raw value.
func statusErr(code StatusCode) error {
	switch code {
	case StatusNoError:
		return nil
	case StatusFormatNotSupported:
		return fmt.Errorf("%w: %s", ErrFormatUnsupported, code)
	case StatusInvalidPropertyValue, StatusInvalidParameter:
		return fmt.Errorf("%w: %s", ErrPropertyTypeMismatch, code)
	case StatusPropertyNotWritable, StatusCannotDoInCurrentContext, StatusInitialized:
		return fmt.Errorf("%w: %s", ErrInvalidState, code)
	case StatusUninitialized:
		return fmt.Errorf("%w: %s", ErrUnitDisposed, code)
	default:
		return &NativeError{Code: code}
	}
}
