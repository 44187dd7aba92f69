// orchestrator.go - host-side process orchestrator (spec §4.3)
//
// Owns the resampler, the ring buffer and drift filter on the asynchronous
// path, the reset protocol, and the callback-side error fallback. Run is
// called once per host block and must never block longer than the ring
// buffer's short mutex.

package bridge

import (
	"runtime"
	"sync/atomic"
)

// Mode selects which of the two run algorithms of spec §4.3 applies.
type Mode uint8

const (
	ModeAsync Mode = iota
	ModeSync
)

const maxCaptureRetries = 5

// Orchestrator is the public entry point a host shell drives once per
// block. It is safe for exactly one caller at a time (spec §4.3
// "run is single-threaded per device"); set_enabled may be called
// concurrently.
type Orchestrator struct {
	pb      *ProcessBlock
	backend Backend
	mode    Mode

	enabled      atomic.Bool
	statsEnabled atomic.Bool

	resampler *Resampler // nil in synchronous mode

	// Preallocated scratch, sized 4*N per channel (design note "real-time
	// safety": never grow on the audio thread). Orchestrator-exclusive
	// (ownership note in spec §3).
	captureScratch  [][]float32
	captureLeftover int

	playbackScratch  [][]float32
	playbackLeftover int

	resampleOut [][]float32 // scratch resampler output, playback direction

	// Reusable channel-slice views into caller/scratch buffers at a given
	// offset, so per-block resampling never allocates (testable property
	// "no allocation on the audio thread"): only the per-channel header
	// slots are reassigned, the outer [][]float32 is allocated once.
	captureOutView [][]float32
}

// NewOrchestrator opens the given back-end and wires it to a fresh
// orchestrator. mode must match the back-end kind: ModeAsync for a back-end
// backed by a ring buffer and worker thread, ModeSync for one that reads and
// writes a kernel-shared region directly inside RunCaptureSync/RunPlaybackSync.
func NewOrchestrator(cfg DeviceConfig, tunables Tunables, backend Backend, mode Mode) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pb := &ProcessBlock{
		Config:   cfg,
		Tunables: tunables,
		State:    &AtomicState{},
		Reset:    &AtomicReset{},
	}

	if mode == ModeAsync {
		hw, err := backend.Open(pb)
		if err != nil {
			return nil, err
		}
		pb.Hardware = hw

		numBuf := numBufferingSamplesFor(cfg, hw, tunables)
		// Capacity is next power of two >= max(S_h, S_d) (spec §3).
		capacity := nextPowerOf2(uint32(maxInt(int(cfg.HostRate), int(hw.SampleRate))))
		ring, err := NewAudioRingBuffer(cfg.Channels, capacity)
		if err != nil {
			backend.Close()
			return nil, err
		}
		pb.Ring = ring
		pb.Drift = NewDriftStats(cfg.HostRate, numBuf, tunables)
	} else {
		hw, err := backend.Open(pb)
		if err != nil {
			return nil, err
		}
		pb.Hardware = hw
	}

	o := &Orchestrator{
		pb:      pb,
		backend: backend,
		mode:    mode,
	}
	o.enabled.Store(true)

	if mode == ModeAsync {
		o.resampler = NewResampler()
		o.resampler.Setup(1.0, cfg.Channels, tunables.ResampleQuality)

		scratchLen := 4 * cfg.N
		o.captureScratch = makeChannelBuffers(cfg.Channels, scratchLen)
		o.playbackScratch = makeChannelBuffers(cfg.Channels, scratchLen)
		o.resampleOut = makeChannelBuffers(cfg.Channels, scratchLen)

		o.captureOutView = make([][]float32, cfg.Channels)
	}

	return o, nil
}

func makeChannelBuffers(channels, n int) [][]float32 {
	b := make([][]float32, channels)
	for c := range b {
		b[c] = make([]float32, n)
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// SetEnabled is a relaxed atomic toggle (spec §4.3 "set_enabled is a relaxed
// atomic").
func (o *Orchestrator) SetEnabled(v bool) { o.enabled.Store(v) }

// Enabled reports the current relaxed toggle.
func (o *Orchestrator) Enabled() bool { return o.enabled.Load() }

// Close tears the back-end down and releases scratch resources (spec §5
// "resource lifecycle").
func (o *Orchestrator) Close() {
	o.pb.Closing.Store(true)
	o.backend.Close()
	if o.pb.Ring != nil {
		o.pb.Ring.Close()
	}
}

// Run processes one host block of n frames (spec §4.3 public contract).
// Returns false when the device is gone.
func (o *Orchestrator) Run(buffers [][]float32, n int) bool {
	if o.mode == ModeSync {
		return o.runSync(buffers, n)
	}
	return o.runAsync(buffers, n)
}

func (o *Orchestrator) runSync(buffers [][]float32, n int) bool {
	var alive bool
	if o.pb.Config.Direction == Capture {
		alive = o.backend.RunCaptureSync(buffers, n)
	} else {
		alive = o.backend.RunPlaybackSync(buffers, n)
	}
	if !alive {
		zeroBuffers(buffers, n)
	}
	return o.backend.Post(n)
}

func (o *Orchestrator) runAsync(buffers [][]float32, n int) bool {
	// Step 1: consume pending reset.
	switch o.pb.Reset.TakeAndClear() {
	case ResetFull:
		o.pb.RingMu.Lock()
		o.pb.Ring.Flush()
		o.pb.RingMu.Unlock()
		o.pb.Drift.Reset()
		o.resampler.Reset()
		o.captureLeftover = 0
		o.playbackLeftover = 0
	case ResetStatsOnly:
		o.pb.Drift.Reset()
	}

	// Step 2: read state.
	state := o.pb.State.Load()

	stepOK := true
	switch o.pb.Config.Direction {
	case Capture:
		stepOK = o.runCaptureAsync(buffers, n, state)
	case Playback:
		stepOK = o.runPlaybackAsync(buffers, n, state)
	}

	// Step 5: on failure while Running, degrade back to Starting and reset.
	if !stepOK {
		if o.pb.State.CompareAndSwap(StateRunning, StateStarting) {
			o.pb.RingMu.Lock()
			o.pb.Ring.Flush()
			o.pb.RingMu.Unlock()
			o.pb.Drift.Reset()
		}
	} else {
		// Step 6: drift/ratio update, gated on warm-up delays.
		o.pb.RingMu.Lock()
		readable := o.pb.Ring.Readable()
		o.pb.RingMu.Unlock()

		ratio, apply := o.pb.Drift.Update(uint32(n), readable)
		if apply {
			o.resampler.SetRatio(ratio)
		}
	}

	// Step 7: back-end post-hook and liveness.
	return o.backend.Post(n)
}

// runCaptureAsync implements spec §4.3 step 3/4 for the capture direction:
// on Started, advance to Buffering (the worker moves Buffering to Running
// once the ring holds numBufferingSamples); on Running, drain the ring
// through the resampler into the caller's buffer, retrying short reads with
// a scheduling yield between attempts so the worker goroutine gets a chance
// to refill the ring even on a single core. Other states output silence.
func (o *Orchestrator) runCaptureAsync(buffers [][]float32, n int, state DeviceState) bool {
	if state == StateStarted {
		o.pb.State.CompareAndSwap(StateStarted, StateBuffering)
		zeroBuffers(buffers, n)
		return true
	}
	if state != StateRunning {
		zeroBuffers(buffers, n)
		return true
	}

	produced := 0
	for attempt := 0; attempt < maxCaptureRetries && produced < n; attempt++ {
		want := n - o.captureLeftover
		if want <= 0 {
			want = 0
		}

		o.pb.RingMu.Lock()
		var got int
		if want > 0 {
			if o.pb.Ring.Read(o.captureScratch, uint32(want), uint32(o.captureLeftover)) {
				got = want
			}
		}
		o.pb.RingMu.Unlock()

		if got == 0 && want > 0 {
			runtime.Gosched()
			continue
		}

		total := o.captureLeftover + got
		o.resampler.InpCount = uint32(total)
		o.resampler.OutCount = uint32(n - produced)
		setView(o.captureOutView, buffers, produced)
		o.resampler.SetBuffers(o.captureScratch, o.captureOutView)
		o.resampler.Process()

		consumed := total - int(o.resampler.InpCount)
		producedThisCall := (n - produced) - int(o.resampler.OutCount)
		produced += producedThisCall

		leftover := total - consumed
		for c := range o.captureScratch {
			copy(o.captureScratch[c][:leftover], o.captureScratch[c][consumed:total])
		}
		o.captureLeftover = leftover
	}

	if produced < n {
		setView(o.captureOutView, buffers, produced)
		zeroBuffers(o.captureOutView, n-produced)
		return false
	}
	return true
}

// runPlaybackAsync implements spec §4.3 step 3 for the playback direction:
// resample the host's buffer and write everything produced into the ring.
func (o *Orchestrator) runPlaybackAsync(buffers [][]float32, n int, state DeviceState) bool {
	if state == StateStarted {
		o.pb.State.CompareAndSwap(StateStarted, StateBuffering)
		return true
	}
	if state != StateRunning && state != StateBuffering {
		return true
	}

	total := o.playbackLeftover + n
	for c := range o.playbackScratch {
		copy(o.playbackScratch[c][o.playbackLeftover:total], buffers[c][:n])
	}

	outCap := len(o.resampleOut[0])
	o.resampler.InpCount = uint32(total)
	o.resampler.OutCount = uint32(outCap)
	o.resampler.SetBuffers(o.playbackScratch, o.resampleOut)
	o.resampler.Process()

	produced := outCap - int(o.resampler.OutCount)
	consumed := total - int(o.resampler.InpCount)

	leftover := total - consumed
	for c := range o.playbackScratch {
		copy(o.playbackScratch[c][:leftover], o.playbackScratch[c][consumed:total])
	}
	o.playbackLeftover = leftover

	o.pb.RingMu.Lock()
	ok := o.pb.Ring.Write(o.resampleOut, uint32(produced))
	o.pb.RingMu.Unlock()
	if !ok {
		// Spec §4.3 tie-break: ring write failure in playback at state >=
		// Buffering is a hard internal invariant, not a recoverable
		// underrun. Degrade rather than panic on the audio thread (spec §7
		// "invariant violation": log-once and degrade to silence/drop).
		o.pb.Ring.log.Once("orchestrator: playback ring write failed", func() {
			Logger.Error("pcmbridge: playback ring write failed at state >= Buffering", "state", state.String())
		})
		return false
	}

	if state == StateBuffering {
		o.pb.RingMu.Lock()
		readable := o.pb.Ring.Readable()
		o.pb.RingMu.Unlock()
		numBuf := numBufferingSamplesFor(o.pb.Config, o.pb.Hardware, o.pb.Tunables)
		if readable >= uint32(numBuf) {
			o.pb.State.CompareAndSwap(StateBuffering, StateRunning)
		}
	}
	return true
}

// setView reassigns view's per-channel slots to base[c][offset:], reusing
// view's outer slice so the audio thread never allocates.
func setView(view, base [][]float32, offset int) {
	for c := range base {
		view[c] = base[c][offset:]
	}
}

func zeroBuffers(buffers [][]float32, n int) {
	for c := range buffers {
		b := buffers[c]
		for i := 0; i < n && i < len(b); i++ {
			b[i] = 0
		}
	}
}
