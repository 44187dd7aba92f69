package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicStateLoadStoreCompareAndSwap(t *testing.T) {
	var s AtomicState
	assert.Equal(t, StateInitializing, s.Load())

	s.Store(StateStarting)
	assert.Equal(t, StateStarting, s.Load())

	assert.True(t, s.CompareAndSwap(StateStarting, StateStarted))
	assert.Equal(t, StateStarted, s.Load())

	assert.False(t, s.CompareAndSwap(StateStarting, StateBuffering), "stale compare must fail")
	assert.Equal(t, StateStarted, s.Load())
}

func TestAtomicResetTakeAndClear(t *testing.T) {
	var r AtomicReset
	assert.Equal(t, ResetNone, r.TakeAndClear())

	r.Request(ResetFull)
	assert.Equal(t, ResetFull, r.TakeAndClear())
	assert.Equal(t, ResetNone, r.TakeAndClear(), "must clear after reading")
}

func TestDeviceStateStringMonotonicOrder(t *testing.T) {
	order := []DeviceState{StateInitializing, StateStarting, StateStarted, StateBuffering, StateRunning}
	names := []string{"Initializing", "Starting", "Started", "Buffering", "Running"}
	for i, s := range order {
		assert.Equal(t, names[i], s.String())
	}
}
