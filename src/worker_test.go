package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failOnceBackend struct {
	fail bool
}

func (f *failOnceBackend) Open(pb *ProcessBlock) (HardwareConfig, error) {
	if f.fail {
		return HardwareConfig{}, ErrDeviceOpenFailed
	}
	return HardwareConfig{Format: FormatS32, Channels: pb.Config.Channels, PeriodSize: 32, NumPeriods: 4, SampleRate: pb.Config.HostRate}, nil
}
func (f *failOnceBackend) Close()                                    {}
func (f *failOnceBackend) RunCaptureSync(_ [][]float32, _ int) bool  { return true }
func (f *failOnceBackend) RunPlaybackSync(_ [][]float32, _ int) bool { return true }
func (f *failOnceBackend) Post(_ int) bool                           { return true }

func TestBridgeRunsSilentWhileNoDeviceIsOpen(t *testing.T) {
	backend := &failOnceBackend{fail: true}
	br := NewBridge(testCfg(Capture), DefaultTunables(), ModeAsync, func() Backend { return backend })
	defer br.Close()

	buf := [][]float32{{1, 1, 1, 1}}
	ok := br.Run(buf, 4)

	assert.False(t, ok)
	assert.Equal(t, []float32{0, 0, 0, 0}, buf[0])
}

func TestBridgeOpensOnceBackendSucceeds(t *testing.T) {
	backend := &failOnceBackend{fail: false}
	br := NewBridge(testCfg(Playback), DefaultTunables(), ModeAsync, func() Backend { return backend })
	defer br.Close()

	require.Eventually(t, func() bool {
		return br.Stats().NumChannels == 1
	}, 2*time.Second, 10*time.Millisecond)
}
