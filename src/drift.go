// drift.go - asynchronous-mode clock drift measurement (spec §3, §4.3 step 6)

package bridge

// BalanceMode classifies which way the filtered ratio is currently
// leaning, as a diagnostic readout. Supplemented from
// original_source/src/audio-process.hpp's DeviceAudio::Balance, which the
// distilled spec dropped; it is pure diagnostics, never an input to the
// ratio filter itself.
type BalanceMode uint8

const (
	BalanceNormal BalanceMode = iota
	BalanceSlowingDown
	BalanceSpeedingUp
)

func (m BalanceMode) String() string {
	switch m {
	case BalanceSlowingDown:
		return "SlowingDown"
	case BalanceSpeedingUp:
		return "SpeedingUp"
	default:
		return "Normal"
	}
}

// DriftStats tracks the asynchronous back-end's ring-buffer occupancy and
// the filtered resampler ratio that compensates for host/device clock
// drift (spec §3, §4.3 step 6).
type DriftStats struct {
	FramesDone uint64
	FillTarget float64
	RBRatio    float64 // filtered output ratio, starts at 1.0

	Balance BalanceMode

	tunables Tunables
	hostRate uint32
}

// NewDriftStats creates drift stats for the given host rate and tunables,
// with fill target derived from numBufferingSamples (spec §4.4).
func NewDriftStats(hostRate uint32, numBufferingSamples int, t Tunables) *DriftStats {
	return &DriftStats{
		FillTarget: float64(numBufferingSamples) / kRingBufferDataFactor,
		RBRatio:    1.0,
		tunables:   t,
		hostRate:   hostRate,
	}
}

// Reset clears frames_done and the ratio back to 1.0 (a StatsOnly reset,
// spec §7).
func (d *DriftStats) Reset() {
	d.FramesDone = 0
	d.RBRatio = 1.0
	d.Balance = BalanceNormal
}

// Update folds in one block's worth of ring-buffer occupancy and returns
// true if the resampler's ratio should be pushed (frames_done has passed
// the second warm-up delay, spec §4.3 step 6).
func (d *DriftStats) Update(blockFrames uint32, readable uint32) (ratio float64, apply bool) {
	d.FramesDone += uint64(blockFrames)

	w1Frames := uint64(float64(d.hostRate) * d.tunables.ClockDriftWaitDelay1)
	if d.FramesDone <= w1Frames {
		return d.RBRatio, false
	}

	// Stage 1 (F1, short): damp the instantaneous fill-target deviation by
	// dividing it down over ClockFilterSteps1 blocks before stage 2 ever
	// sees it (original_source/src/audio-device.cpp:282-286). Skipping this
	// division would feed stage 2 a value ~F1x too large in magnitude.
	f1 := float64(d.tunables.ClockFilterSteps1)
	x := float64(readable) / kRingBufferDataFactor / d.FillTarget
	rbRatioInstant := 2 - (x+f1-1)/f1

	// Stage 2 (F2, long): exponential smoothing of the stage-1 output.
	f2 := float64(d.tunables.ClockFilterSteps2)
	prev := d.RBRatio
	smoothed := clampf64((rbRatioInstant+prev*(f2-1))/f2, 0.9, 1.1)

	if smoothed > prev {
		d.Balance = BalanceSpeedingUp
	} else if smoothed < prev {
		d.Balance = BalanceSlowingDown
	} else {
		d.Balance = BalanceNormal
	}

	d.RBRatio = smoothed

	w2Frames := uint64(float64(d.hostRate) * d.tunables.ClockDriftWaitDelay2)
	if d.FramesDone <= w2Frames {
		return d.RBRatio, false
	}

	// Ratio update is suppressed while |delta rb_ratio| <= 2e-9 (spec §4.3
	// tie-break), to avoid churning the resampler with noise-level nudges.
	if absf64(smoothed-prev) <= 2e-9 {
		return d.RBRatio, false
	}

	return d.RBRatio, true
}

func clampf64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absf64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
