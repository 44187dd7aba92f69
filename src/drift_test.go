package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDriftFilterConvergesToOne verifies testable property 5: a constant
// readable level equal to fill_target*factor converges rb_ratio to 1.0.
func TestDriftFilterConvergesToOne(t *testing.T) {
	tunables := DefaultTunables()
	tunables.ClockDriftWaitDelay1 = 0
	tunables.ClockDriftWaitDelay2 = 0

	numBuffering := 1000
	d := NewDriftStats(48000, numBuffering, tunables)
	readable := uint32(d.FillTarget * kRingBufferDataFactor)

	for i := 0; i < tunables.ClockFilterSteps2*3; i++ {
		d.Update(64, readable)
	}

	assert.InDelta(t, 1.0, d.RBRatio, 1e-4)
}

// TestDriftFilterAppliesF1ShortStageDamping pins down the exact two-stage
// formula of original_source/src/audio-device.cpp:282-291: the fill-target
// deviation is damped by ClockFilterSteps1 (F1) before the ClockFilterSteps2
// (F2) exponential smoother ever sees it. Values chosen small enough to
// verify by hand: x=2 (double the fill target), F1=4, F2=4, prev=1.0 ->
// rbRatioInstant = 2-(2+4-1)/4 = 0.75, smoothed = (0.75+1.0*(4-1))/4 = 0.9375,
// inside the [0.9, 1.1] clamp (without the F1 stage the instant value would
// be 0 and the result would clamp to 0.9).
func TestDriftFilterAppliesF1ShortStageDamping(t *testing.T) {
	tunables := DefaultTunables()
	tunables.ClockDriftWaitDelay1 = 0
	tunables.ClockDriftWaitDelay2 = 100
	tunables.ClockFilterSteps1 = 4
	tunables.ClockFilterSteps2 = 4

	d := NewDriftStats(48000, 1000, tunables)
	readable := uint32(d.FillTarget * kRingBufferDataFactor * 2)

	d.Update(64, readable)

	assert.InDelta(t, 0.9375, d.RBRatio, 1e-9)
}

func TestDriftUpdateSuppressedDuringWarmup(t *testing.T) {
	tunables := DefaultTunables()
	d := NewDriftStats(48000, 1000, tunables)

	_, apply := d.Update(64, 500)
	assert.False(t, apply, "no ratio push before warm-up delay 1 elapses")
}

func TestDriftResetRestoresDefaults(t *testing.T) {
	tunables := DefaultTunables()
	tunables.ClockDriftWaitDelay1 = 0
	d := NewDriftStats(48000, 1000, tunables)
	d.Update(64, 0)

	d.Reset()
	assert.Equal(t, uint64(0), d.FramesDone)
	assert.Equal(t, 1.0, d.RBRatio)
	assert.Equal(t, BalanceNormal, d.Balance)
}
