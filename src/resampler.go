// resampler.go - variable-ratio windowed-sinc resampler wrapper
//
// The original implementation wraps Fons Adriaensen's zita-resampler
// (original_source/src/zita-resampler/vresampler.h), a C++ library we were
// not given the rest of (only the header). Rather than fabricate a cgo
// binding against a library we cannot vendor, this reimplements the same
// four-operation contract (setup/set_rratio/reset/process) natively in Go
// as a windowed-sinc interpolator, see DESIGN.md.
//
// Ratio convention: Ratio is the number of input frames advanced per
// output frame produced (matching the worked example of the ratio!=1
// testable property: n input frames at ratio r yield floor(n/r) output
// frames). It is clamped to [0, 4] by SetRatio, per spec.

package bridge

import "math"

// Resampler is a per-channel variable-ratio polyphase-shaped resampler.
type Resampler struct {
	InpCount uint32 // set by caller before Process; remaining-not-consumed after
	OutCount uint32 // set by caller before Process; remaining-not-produced after

	channels int
	quality  int // Q, window radius in input samples
	ratio    float64

	pos     float64     // fractional read position within the current extended frame
	history [][]float64 // per channel, length 2*quality

	scratch [][]float64 // reusable extended = history ++ inp, per channel

	inpData [][]float32 // set by SetBuffers, read by Process
	outData [][]float32 // set by SetBuffers, written by Process
}

// NewResampler constructs an unconfigured resampler; call Setup before use.
func NewResampler() *Resampler {
	return &Resampler{ratio: 1.0}
}

// Setup configures the resampler for nchan channels with the given initial
// ratio and window quality (half-length). Quality defaults to 8 in the
// spec's tunables.
func (r *Resampler) Setup(ratio float64, nchan, quality int) bool {
	if nchan <= 0 || quality <= 0 {
		return false
	}
	r.channels = nchan
	r.quality = quality
	r.ratio = clampRatio(ratio)
	r.history = make([][]float64, nchan)
	r.scratch = make([][]float64, nchan)
	for c := 0; c < nchan; c++ {
		r.history[c] = make([]float64, 2*quality)
	}
	// Start q frames into the zeroed history: output leads with a q-frame
	// warm-up tail, and each call yields floor(InpCount/ratio) frames.
	r.pos = float64(quality)
	return true
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 4 {
		return 4
	}
	return r
}

// SetRatio adjusts the running input-per-output ratio, clamped to [0, 4].
func (r *Resampler) SetRatio(ratio float64) { r.ratio = clampRatio(ratio) }

// Ratio returns the currently applied ratio.
func (r *Resampler) Ratio() float64 { return r.ratio }

// Reset discards internal state (history and fractional phase), restoring
// a cold warm-up tail.
func (r *Resampler) Reset() {
	for c := range r.history {
		for i := range r.history[c] {
			r.history[c][i] = 0
		}
	}
	r.pos = float64(r.quality)
}

func sincWindowed(x float64, radius int) float64 {
	if x == 0 {
		return 1
	}
	ax := math.Abs(x)
	if ax >= float64(radius) {
		return 0
	}
	s := math.Sin(math.Pi*x) / (math.Pi * x)
	w := 0.5 * (1 + math.Cos(math.Pi*x/float64(radius)))
	return s * w
}

// Process consumes up to InpCount frames per channel from inp (starting at
// index 0) and produces up to OutCount frames per channel into out
// (starting at index 0), then sets InpCount/OutCount to what was NOT
// consumed/produced this call. The caller owns carrying forward any
// unconsumed input tail to the front of its own scratch buffer before the
// next call (spec §4.3 step 4).
func (r *Resampler) Process() {
	q := r.quality
	inpCount := int(r.InpCount)
	outCount := int(r.OutCount)

	extLen := 2*q + inpCount
	for c := 0; c < r.channels; c++ {
		if cap(r.scratch[c]) < extLen {
			r.scratch[c] = make([]float64, extLen)
		} else {
			r.scratch[c] = r.scratch[c][:extLen]
		}
		copy(r.scratch[c], r.history[c])
		for i := 0; i < inpCount; i++ {
			r.scratch[c][2*q+i] = float64(r.inpData[c][i])
		}
	}

	produced := 0
	pos := r.pos
	step := r.ratio

	for produced < outCount {
		idx := int(math.Floor(pos))
		if idx+q >= extLen || idx-q+1 < 0 {
			break
		}
		frac := pos - float64(idx)
		for c := 0; c < r.channels; c++ {
			var acc float64
			ext := r.scratch[c]
			for k := -q + 1; k <= q; k++ {
				tap := idx + k
				if tap < 0 || tap >= extLen {
					continue
				}
				acc += ext[tap] * sincWindowed(frac-float64(k), q)
			}
			r.outData[c][produced] = float32(acc)
		}
		produced++
		pos += step
	}

	consumed := int(math.Floor(pos)) - 2*q
	if consumed < 0 {
		consumed = 0
	}
	if consumed > inpCount {
		consumed = inpCount
	}

	for c := 0; c < r.channels; c++ {
		copy(r.history[c], r.scratch[c][consumed:consumed+2*q])
	}
	r.pos = pos - float64(consumed)

	r.InpCount = uint32(inpCount - consumed)
	r.OutCount = uint32(outCount - produced)
}

// SetBuffers installs the input and output buffer views for the next
// Process call. inp and out are deinterleaved, one slice per channel.
func (r *Resampler) SetBuffers(inp, out [][]float32) {
	r.inpData = inp
	r.outData = out
}
