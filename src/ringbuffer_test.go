package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNextPowerOf2(t *testing.T) {
	cases := map[uint32]uint32{
		1: 1, 2: 2, 3: 4, 17: 32, 4096: 4096, 4097: 8192,
	}
	for in, want := range cases {
		assert.Equal(t, want, nextPowerOf2(in), "size=%d", in)
	}
}

func TestRingBufferBasicReadWrite(t *testing.T) {
	rb, err := NewAudioRingBuffer(2, 16)
	require.NoError(t, err)
	defer rb.Close()

	in := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}
	require.True(t, rb.Write(in, 4))
	assert.Equal(t, uint32(4), rb.Readable())

	out := [][]float32{make([]float32, 4), make([]float32, 4)}
	require.True(t, rb.Read(out, 4, 0))
	assert.Equal(t, in, out)
	assert.Equal(t, uint32(0), rb.Readable())
}

func TestRingBufferUnderflowLeavesTailUnchanged(t *testing.T) {
	rb, err := NewAudioRingBuffer(1, 8)
	require.NoError(t, err)
	defer rb.Close()

	in := [][]float32{{1, 2}}
	require.True(t, rb.Write(in, 2))

	out := [][]float32{make([]float32, 8)}
	assert.False(t, rb.Read(out, 5, 0))
	assert.Equal(t, uint32(2), rb.Readable(), "failed read must not mutate tail")
}

func TestRingBufferOverflowLeavesHeadUnchanged(t *testing.T) {
	rb, err := NewAudioRingBuffer(1, 8)
	require.NoError(t, err)
	defer rb.Close()

	require.True(t, rb.Write([][]float32{{1, 2, 3, 4, 5}}, 5))
	before := rb.Writable()

	in := [][]float32{{6, 7, 8}}
	assert.False(t, rb.Write(in, 3), "3 more frames exceed the 2 still writable")
	assert.Equal(t, before, rb.Writable(), "failed write must not mutate head")
}

func TestRingBufferNeverStoresMoreThanCapacityMinusOne(t *testing.T) {
	rb, err := NewAudioRingBuffer(1, 8)
	require.NoError(t, err)
	defer rb.Close()

	assert.Equal(t, rb.Capacity()-1, rb.Writable())
}

// TestRingBufferSPSCProperty checks testable property 1: for any sequence
// of writes/reads where cumulative written stays ahead of cumulative read,
// read returns exactly what was written, per channel, in order.
func TestRingBufferSPSCProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := uint32(rapid.SampledFrom([]int{8, 16, 32}).Draw(t, "capacity"))
		rb, err := NewAudioRingBuffer(1, capacity)
		require.NoError(t, err)
		defer rb.Close()

		var reference []float32
		var consumed int
		var nextValue float32 = 1

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "doWrite") {
				n := uint32(rapid.IntRange(0, int(rb.Capacity()/2)).Draw(t, "writeN"))
				if n == 0 {
					continue
				}
				chunk := make([]float32, n)
				for j := range chunk {
					chunk[j] = nextValue
					nextValue++
				}
				if rb.Write([][]float32{chunk}, n) {
					reference = append(reference, chunk...)
				}
			} else {
				n := uint32(rapid.IntRange(0, int(rb.Capacity()/2)).Draw(t, "readN"))
				if n == 0 {
					continue
				}
				out := [][]float32{make([]float32, n)}
				if rb.Read(out, n, 0) {
					want := reference[consumed : consumed+int(n)]
					assert.Equal(t, want, out[0])
					consumed += int(n)
				}
			}
		}
	})
}
