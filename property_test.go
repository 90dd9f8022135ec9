package aunit

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// typeConfusedHandle serves property reads from a canned map, so the bridge's
// type checking can be exercised without a driver.
type typeConfusedHandle struct {
	values map[PropertyID]any
	sets   int
}

func (h *typeConfusedHandle) GetProperty(prop PropertyID, scope Scope, elem Element) (any, StatusCode) {
	v, ok := h.values[prop]
	if !ok {
		return nil, StatusInvalidProperty
	}

	return v, StatusNoError
}

func (h *typeConfusedHandle) SetProperty(prop PropertyID, scope Scope, elem Element, value any) StatusCode {
	h.sets++

	return StatusNoError
}

func (h *typeConfusedHandle) SetRenderProc(proc RenderProc) StatusCode { return StatusNoError }
func (h *typeConfusedHandle) Start() StatusCode                        { return StatusNoError }
func (h *typeConfusedHandle) Stop() StatusCode                         { return StatusNoError }
func (h *typeConfusedHandle) Close() StatusCode                        { return StatusNoError }

func newTestBridge(h Handle) (*propertyBridge, *atomic.Bool) {
	running := &atomic.Bool{}

	return &propertyBridge{h: h, running: running}, running
}

func TestPropertyTypeMismatchNeverCoerces(t *testing.T) {
	h := &typeConfusedHandle{values: map[PropertyID]any{
		PropBufferFrames: "five hundred twelve",
		PropSampleRate:   int(48000),
		PropStreamFormat: 3.14,
	}}
	pb, _ := newTestBridge(h)

	_, err := pb.bufferFrames()
	require.ErrorIs(t, err, ErrPropertyTypeMismatch)

	_, err = pb.sampleRate(ScopeInput)
	require.ErrorIs(t, err, ErrPropertyTypeMismatch)

	_, err = pb.streamFormat(ScopeInput, ElementOutput)
	require.ErrorIs(t, err, ErrPropertyTypeMismatch)
}

func TestPropertyLiveMutationRejected(t *testing.T) {
	h := &typeConfusedHandle{values: map[PropertyID]any{}}
	pb, running := newTestBridge(h)
	running.Store(true)

	for _, prop := range []PropertyID{PropStreamFormat, PropBufferFrames, PropBoundDevice, PropSampleRate} {
		err := pb.set(prop, ScopeGlobal, ElementOutput, nil)
		require.ErrorIs(t, err, ErrInvalidState, "property %s must be frozen while running", prop)
	}

	assert.Zero(t, h.sets, "no native set may happen for a frozen property while running")

	// Non-frozen properties still go through.
	require.NoError(t, pb.setIOEnabled(ScopeInput, ElementInput, false))
	assert.Equal(t, 1, h.sets)

	running.Store(false)
	require.NoError(t, pb.setBufferFrames(256))
	assert.Equal(t, 2, h.sets)
}

func TestStatusErrTaxonomy(t *testing.T) {
	require.NoError(t, statusErr(StatusNoError))

	require.ErrorIs(t, statusErr(StatusFormatNotSupported), ErrFormatUnsupported)
	require.ErrorIs(t, statusErr(StatusInvalidPropertyValue), ErrPropertyTypeMismatch)
	require.ErrorIs(t, statusErr(StatusCannotDoInCurrentContext), ErrInvalidState)
	require.ErrorIs(t, statusErr(StatusUninitialized), ErrUnitDisposed)

	// Unmapped codes surface the raw value for diagnostics.
	var native *NativeError
	err := statusErr(StatusCode(-77))
	require.ErrorAs(t, err, &native)
	assert.Equal(t, StatusCode(-77), native.Code)
	assert.Contains(t, native.Error(), "-77")
}
