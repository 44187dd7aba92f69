package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResamplerRatioOnePassesThroughAfterWarmup(t *testing.T) {
	r := NewResampler()
	require.True(t, r.Setup(1.0, 1, 4))

	n := 64
	inp := make([]float32, n)
	for i := range inp {
		inp[i] = float32(i%7) - 3
	}
	out := make([]float32, n)

	// Feed the same block twice: the first call pays for the filter's
	// warm-up tail, the second should reproduce input samples closely.
	for pass := 0; pass < 2; pass++ {
		r.InpCount = uint32(n)
		r.OutCount = uint32(n)
		r.SetBuffers([][]float32{inp}, [][]float32{out})
		r.Process()
	}

	produced := n - int(r.OutCount)
	assert.Greater(t, produced, 0)
	assert.InDeltaSlice(t, inp[:produced], out[:produced], 1e-6, "second pass must reproduce the input")
}

func TestResamplerRatioNotOneProducesExpectedFrameCount(t *testing.T) {
	r := NewResampler()
	require.True(t, r.Setup(1.0, 1, 8))
	r.SetRatio(2.0) // two input frames advance per output frame produced

	n := 256
	inp := make([]float32, n)
	out := make([]float32, n)

	r.InpCount = uint32(n)
	r.OutCount = uint32(n)
	r.SetBuffers([][]float32{inp}, [][]float32{out})
	r.Process()

	produced := n - int(r.OutCount)
	want := n / 2
	assert.InDelta(t, want, produced, 1, "expected floor(n/r) output frames within +-1")
}

func TestResamplerRatioClampedTo0And4(t *testing.T) {
	r := NewResampler()
	r.Setup(1.0, 1, 8)

	r.SetRatio(-1)
	assert.Equal(t, 0.0, r.Ratio())

	r.SetRatio(10)
	assert.Equal(t, 4.0, r.Ratio())
}

func TestResamplerResetClearsHistory(t *testing.T) {
	r := NewResampler()
	r.Setup(1.0, 1, 4)

	inp := make([]float32, 16)
	for i := range inp {
		inp[i] = 1
	}
	out := make([]float32, 16)
	r.InpCount, r.OutCount = 16, 16
	r.SetBuffers([][]float32{inp}, [][]float32{out})
	r.Process()

	r.Reset()
	for _, v := range r.history[0] {
		assert.Equal(t, 0.0, v)
	}
}
