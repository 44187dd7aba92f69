package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal asynchronous stand-in: Open succeeds immediately
// and hands back a small hardware config; the test drives state/ring
// directly instead of running a real worker goroutine.
type fakeBackend struct {
	opened *ProcessBlock
	alive  bool
}

func (f *fakeBackend) Open(pb *ProcessBlock) (HardwareConfig, error) {
	f.opened = pb
	f.alive = true
	return HardwareConfig{Format: FormatS32, Channels: pb.Config.Channels, PeriodSize: 32, NumPeriods: 4, SampleRate: pb.Config.HostRate}, nil
}
func (f *fakeBackend) Close()                                    {}
func (f *fakeBackend) RunCaptureSync(_ [][]float32, _ int) bool  { return true }
func (f *fakeBackend) RunPlaybackSync(_ [][]float32, _ int) bool { return true }
func (f *fakeBackend) Post(_ int) bool                           { return f.alive }

func testCfg(dir Direction) DeviceConfig {
	return DeviceConfig{DeviceID: "fake", Direction: dir, N: 32, HostRate: 48000, Channels: 1}
}

func TestOrchestratorCaptureZerosOnUnderrun(t *testing.T) {
	backend := &fakeBackend{}
	o, err := NewOrchestrator(testCfg(Capture), DefaultTunables(), backend, ModeAsync)
	require.NoError(t, err)
	defer o.Close()

	o.pb.State.Store(StateRunning)

	buf := [][]float32{{1, 1, 1, 1}}
	o.Run(buf, 4)
	assert.Equal(t, []float32{0, 0, 0, 0}, buf[0], "empty ring must yield silence")
	assert.Equal(t, StateStarting, o.pb.State.Load(), "starvation while Running degrades to Starting")
}

func TestOrchestratorPlaybackWritesIntoRing(t *testing.T) {
	backend := &fakeBackend{}
	o, err := NewOrchestrator(testCfg(Playback), DefaultTunables(), backend, ModeAsync)
	require.NoError(t, err)
	defer o.Close()

	o.pb.State.Store(StateRunning)

	buf := [][]float32{{0.1, 0.2, 0.3, 0.4}}
	o.Run(buf, 4)

	assert.Greater(t, o.pb.Ring.Readable(), uint32(0), "playback must deliver samples into the ring")
}

func TestOrchestratorStartedAdvancesToBuffering(t *testing.T) {
	backend := &fakeBackend{}
	o, err := NewOrchestrator(testCfg(Capture), DefaultTunables(), backend, ModeAsync)
	require.NoError(t, err)
	defer o.Close()

	o.pb.State.Store(StateStarted)
	buf := [][]float32{{9, 9, 9, 9}}
	o.Run(buf, 4)

	assert.Equal(t, StateBuffering, o.pb.State.Load())
	assert.Equal(t, []float32{0, 0, 0, 0}, buf[0])
}

func TestOrchestratorResetFullFlushesRingAndStats(t *testing.T) {
	backend := &fakeBackend{}
	o, err := NewOrchestrator(testCfg(Playback), DefaultTunables(), backend, ModeAsync)
	require.NoError(t, err)
	defer o.Close()

	o.pb.State.Store(StateRunning)
	o.pb.Drift.RBRatio = 1.05

	o.pb.Reset.Request(ResetFull)
	buf := [][]float32{{0, 0, 0, 0}}
	o.Run(buf, 4)

	assert.Equal(t, uint32(0), o.pb.Ring.Readable())
	assert.Equal(t, 1.0, o.pb.Drift.RBRatio)
}
