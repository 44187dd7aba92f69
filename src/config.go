// config.go - device, hardware and tunable configuration for the bridge core

package bridge

import "fmt"

// Direction is the data path a device runs: capture (device -> host) or
// playback (host -> device).
type Direction uint8

const (
	Capture Direction = iota
	Playback
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// SampleFormat is a device-native PCM sample representation.
type SampleFormat uint8

const (
	FormatS16 SampleFormat = iota
	FormatS24In32
	FormatS24LE3
	FormatS32
)

// Size returns the number of bytes one sample occupies in this format.
func (f SampleFormat) Size() int {
	switch f {
	case FormatS16:
		return 2
	case FormatS24LE3:
		return 3
	case FormatS24In32, FormatS32:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatS16:
		return "S16"
	case FormatS24In32:
		return "S24-in-32"
	case FormatS24LE3:
		return "S24-3LE"
	case FormatS32:
		return "S32"
	default:
		return "unknown"
	}
}

// DeviceConfig is immutable after construction: what the host wants from a
// device.
type DeviceConfig struct {
	DeviceID  string
	Direction Direction
	N         int // host block size, in frames
	HostRate  uint32
	Channels  int // channels requested at open; C_host
}

func (c DeviceConfig) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("pcmbridge: empty device id")
	}
	if c.N <= 0 {
		return fmt.Errorf("pcmbridge: block size must be positive, got %d", c.N)
	}
	if c.HostRate == 0 {
		return fmt.Errorf("pcmbridge: host rate must be positive")
	}
	if c.Channels <= 0 || c.Channels > 32 {
		return fmt.Errorf("pcmbridge: channels must be in 1..32, got %d", c.Channels)
	}
	return nil
}

// HardwareConfig is discovered during open and immutable thereafter.
type HardwareConfig struct {
	Format     SampleFormat
	Channels   int // 1..32
	PeriodSize int // P, frames
	NumPeriods int // K, 3..12 typical
	SampleRate uint32
}

// FullBufferSize returns K*P, the device's full ring in frames.
func (h HardwareConfig) FullBufferSize() int {
	return h.PeriodSize * h.NumPeriods
}

// Tunables mirrors the compile-time knobs of spec §6 as runtime
// configuration with the same defaults.
type Tunables struct {
	CaptureRingbufferBlocks  int
	PlaybackRingbufferBlocks int

	ClockDriftWaitDelay1 float64 // seconds, W1
	ClockDriftWaitDelay2 float64 // seconds, W2

	ClockFilterSteps1 int // F1
	ClockFilterSteps2 int // F2

	DeviceBufferSize int // target period size, frames

	ResampleQuality int // Q, half-length

	CaptureThreadPriority  int
	PlaybackThreadPriority int

	NumPeriodsMin int
	NumPeriodsMax int
}

// DefaultTunables returns the spec's documented defaults.
func DefaultTunables() Tunables {
	return Tunables{
		CaptureRingbufferBlocks:  4,
		PlaybackRingbufferBlocks: 4,
		ClockDriftWaitDelay1:     2,
		ClockDriftWaitDelay2:     10,
		ClockFilterSteps1:        1024,
		ClockFilterSteps2:        8192,
		DeviceBufferSize:         16,
		ResampleQuality:          8,
		CaptureThreadPriority:    71,
		PlaybackThreadPriority:   70,
		NumPeriodsMin:            3,
		NumPeriodsMax:            12,
	}
}

// numBufferingSamplesFor returns max(N, K*P) * blocks, the asynchronous
// back-end's target ring occupancy before it reports Running (spec §4.4).
func numBufferingSamplesFor(cfg DeviceConfig, hw HardwareConfig, t Tunables) int {
	blocks := t.CaptureRingbufferBlocks
	if cfg.Direction == Playback {
		blocks = t.PlaybackRingbufferBlocks
	}
	base := cfg.N
	if hw.FullBufferSize() > base {
		base = hw.FullBufferSize()
	}
	return base * blocks
}

// kRingBufferDataFactor is the constant dividing/scaling readable frames
// into "buffering units" throughout the drift filter (spec §3, §9 open
// question 1). Kept as an explicit named float64, not uint8, per the open
// question: both of its uses, in drift.go (the fill_target divisor in
// NewDriftStats and the readable-frames divisor in Update), must agree, so
// there is exactly one definition.
const kRingBufferDataFactor = 32.0
