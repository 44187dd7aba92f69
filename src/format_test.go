package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFormatRoundTrip verifies testable property 3 in the float->int->float
// direction: zero and both full-scale peaks round trip exactly; the most
// negative integer code is the one given up, since -1 packs to -full_scale.
func TestFormatRoundTrip(t *testing.T) {
	for _, format := range []SampleFormat{FormatS16, FormatS24In32, FormatS24LE3, FormatS32} {
		t.Run(format.String(), func(t *testing.T) {
			n := 5
			src := [][]float32{{-1, -1.0 / 32768, 0, 1.0 / 32768, 1}}
			buf := make([]byte, n*format.Size())
			PackFloatToInt(format, buf, src, 1, n)

			got := [][]float32{make([]float32, n)}
			UnpackIntToFloat(format, got, buf, 0, 1, n)

			assert.InDelta(t, 0, got[0][2], 1e-9, "zero must round-trip exactly")
			assert.InDelta(t, src[0][4], got[0][4], 1e-9, "+full_scale must round-trip exactly")
			// -1 packs to -full_scale (not -(full_scale+1)), which unpacks
			// back to exactly -1.
			assert.Equal(t, float32(-1), got[0][0])
			assert.InDelta(t, -1, got[0][0], 1.0/8388607)
		})
	}
}

func TestFloat16ClampsSymmetric(t *testing.T) {
	assert.Equal(t, int16(-32767), float16(-1))
	assert.Equal(t, int16(-32767), float16(-2))
	assert.Equal(t, int16(32767), float16(1))
	assert.Equal(t, int16(32767), float16(2))
	assert.Equal(t, int16(0), float16(0))
}

func TestS24LE3SignExtension(t *testing.T) {
	// -1.0 at full scale: 0x800001 as a 24-bit two's complement value
	// (-8388607), little-endian bytes 01 00 80.
	buf := []byte{0x01, 0x00, 0x80}
	out := [][]float32{make([]float32, 1)}
	UnpackIntToFloat(FormatS24LE3, out, buf, 0, 1, 1)
	assert.InDelta(t, -1.0, out[0][0], 1e-6)
}
