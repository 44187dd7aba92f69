//go:build !headless

package bridge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackFloat32LERoundTrips(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 0.5, -0.5, 0.000001} {
		var buf [4]byte
		packFloat32LE(buf[:], v)
		bits := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
		assert.Equal(t, v, math.Float32frombits(bits))
	}
}

func TestOtoBackendRejectsCaptureDirection(t *testing.T) {
	b := &otoBackend{}
	pb := &ProcessBlock{Config: testCfg(Capture)}
	_, err := b.Open(pb)
	assert.Error(t, err)
}
