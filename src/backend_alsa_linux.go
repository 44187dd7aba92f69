//go:build linux && cgo

// backend_alsa_linux.go - asynchronous ALSA PCM back-end
//
// Generalises the teacher's audio_backend_alsa.go (a single fixed-format
// cgo playback stream) into the full open/negotiate/worker-thread back-end
// of spec §4.4 and §6: memory-mapped access, format negotiation trying
// S32/S24-3LE/S24/S16 in order, rate negotiation, period/buffer
// negotiation over K in [NumPeriodsMin, NumPeriodsMax], and the
// EPIPE/ESTRPIPE/EAGAIN recovery policy of original_source's xrun_recovery.

package bridge

/*
#cgo LDFLAGS: -lasound
#include <alsa/asoundlib.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

var ratesToTry = [...]uint32{48000, 44100, 96000, 88200}

// alsaBackend is the asynchronous PCM back-end (spec §4.4).
type alsaBackend struct {
	handle *C.snd_pcm_t

	pb        *ProcessBlock
	direction Direction

	raw     []byte
	scratch [][]float32 // format-converted scratch, per channel, period-sized

	closing  *atomic.Bool
	workerWG sync.WaitGroup

	mu           *sync.Mutex // the ProcessBlock's RingMu, shared with the orchestrator
	disconnected atomic.Bool
	startedAt    time.Time
	watchdogOK   atomic.Bool
}

// NewALSABackend constructs an unopened asynchronous ALSA back-end.
func NewALSABackend() Backend { return &alsaBackend{} }

func (b *alsaBackend) Open(pb *ProcessBlock) (HardwareConfig, error) {
	b.pb = pb
	b.direction = pb.Config.Direction
	b.closing = &pb.Closing
	b.mu = &pb.RingMu

	mode := C.SND_PCM_STREAM_PLAYBACK
	if b.direction == Capture {
		mode = C.SND_PCM_STREAM_CAPTURE
	}

	cDevice := C.CString(pb.Config.DeviceID)
	defer C.free(unsafe.Pointer(cDevice))

	flags := C.int(C.SND_PCM_NONBLOCK | C.SND_PCM_NO_AUTO_RESAMPLE | C.SND_PCM_NO_AUTO_CHANNELS | C.SND_PCM_NO_AUTO_FORMAT)
	var handle *C.snd_pcm_t
	if err := C.snd_pcm_open(&handle, cDevice, C.snd_pcm_stream_t(mode), flags); err < 0 {
		return HardwareConfig{}, fmt.Errorf("%w: snd_pcm_open: %s", ErrDeviceOpenFailed, alsaStrError(err))
	}

	hw, err := alsaNegotiate(handle, pb.Config, pb.Tunables)
	if err != nil {
		C.snd_pcm_close(handle)
		return HardwareConfig{}, err
	}

	b.handle = handle

	sampleSize := hw.Format.Size()
	periodBytes := hw.PeriodSize * hw.Channels * sampleSize
	b.raw = make([]byte, periodBytes)
	b.scratch = make([][]float32, hw.Channels)
	for c := range b.scratch {
		b.scratch[c] = make([]float32, hw.PeriodSize)
	}

	pb.State.Store(StateInitializing)

	b.workerWG.Add(1)
	go b.worker(hw)

	return hw, nil
}

func alsaStrError(err C.int) string {
	return C.GoString(C.snd_strerror(err))
}

// alsaNegotiate opens hw_params/sw_params following original_source's
// audio-process.cpp initDeviceAudio: memory-mapped interleaved access,
// format negotiation in the spec's documented order, then rate, then
// period/buffer negotiation over NumPeriodsMin..NumPeriodsMax.
func alsaNegotiate(handle *C.snd_pcm_t, cfg DeviceConfig, t Tunables) (HardwareConfig, error) {
	var params *C.snd_pcm_hw_params_t
	C.snd_pcm_hw_params_malloc(&params)
	defer C.snd_pcm_hw_params_free(params)

	if err := C.snd_pcm_hw_params_any(handle, params); err < 0 {
		return HardwareConfig{}, fmt.Errorf("hw_params_any: %s", alsaStrError(err))
	}
	C.snd_pcm_hw_params_set_rate_resample(handle, params, 0)

	if err := C.snd_pcm_hw_params_set_access(handle, params, C.SND_PCM_ACCESS_MMAP_INTERLEAVED); err < 0 {
		return HardwareConfig{}, fmt.Errorf("hw_params_set_access: %s", alsaStrError(err))
	}

	formatsToTry := []struct {
		f C.snd_pcm_format_t
		h SampleFormat
	}{
		{C.SND_PCM_FORMAT_S32, FormatS32},
		{C.SND_PCM_FORMAT_S24_3LE, FormatS24LE3},
		{C.SND_PCM_FORMAT_S24, FormatS24In32},
		{C.SND_PCM_FORMAT_S16, FormatS16},
	}
	var chosen SampleFormat
	found := false
	for _, cand := range formatsToTry {
		if err := C.snd_pcm_hw_params_set_format(handle, params, cand.f); err >= 0 {
			chosen = cand.h
			found = true
			break
		}
	}
	if !found {
		return HardwareConfig{}, fmt.Errorf("no supported sample format")
	}

	if err := C.snd_pcm_hw_params_set_channels(handle, params, C.uint(channelsForConfig(cfg))); err < 0 {
		return HardwareConfig{}, fmt.Errorf("hw_params_set_channels: %s", alsaStrError(err))
	}

	var chosenRate uint32
	for _, rate := range ratesToTry {
		if err := C.snd_pcm_hw_params_set_rate(handle, params, C.uint(rate), 0); err >= 0 {
			chosenRate = rate
			break
		}
	}
	if chosenRate == 0 {
		return HardwareConfig{}, fmt.Errorf("no supported sample rate")
	}

	period := C.snd_pcm_uframes_t(t.DeviceBufferSize)
	var periods C.uint
	okPeriods := false
	for k := t.NumPeriodsMin; k <= t.NumPeriodsMax; k++ {
		p := period
		if err := C.snd_pcm_hw_params_set_period_size_near(handle, params, &p, nil); err < 0 {
			continue
		}
		kk := C.uint(k)
		if err := C.snd_pcm_hw_params_set_periods_near(handle, params, &kk, nil); err < 0 {
			continue
		}
		period = p
		periods = kk
		okPeriods = true
		break
	}
	if !okPeriods {
		return HardwareConfig{}, fmt.Errorf("no supported period/buffer configuration")
	}

	if err := C.snd_pcm_hw_params(handle, params); err < 0 {
		return HardwareConfig{}, fmt.Errorf("hw_params: %s", alsaStrError(err))
	}

	var swparams *C.snd_pcm_sw_params_t
	C.snd_pcm_sw_params_malloc(&swparams)
	defer C.snd_pcm_sw_params_free(swparams)
	C.snd_pcm_sw_params_current(handle, swparams)
	C.snd_pcm_sw_params_set_tstamp_mode(handle, swparams, C.SND_PCM_TSTAMP_NONE)
	C.snd_pcm_sw_params_set_avail_min(handle, swparams, period)
	C.snd_pcm_sw_params_set_start_threshold(handle, swparams, 0)
	C.snd_pcm_sw_params_set_stop_threshold(handle, swparams, C.snd_pcm_uframes_t(^C.ulong(0)))
	C.snd_pcm_sw_params_set_silence_threshold(handle, swparams, 0)
	if err := C.snd_pcm_sw_params(handle, swparams); err < 0 {
		return HardwareConfig{}, fmt.Errorf("sw_params: %s", alsaStrError(err))
	}

	if err := C.snd_pcm_prepare(handle); err < 0 {
		return HardwareConfig{}, fmt.Errorf("prepare: %s", alsaStrError(err))
	}

	return HardwareConfig{
		Format:     chosen,
		Channels:   channelsForConfig(cfg),
		PeriodSize: int(period),
		NumPeriods: int(periods),
		SampleRate: chosenRate,
	}, nil
}

func channelsForConfig(cfg DeviceConfig) int {
	return cfg.Channels
}

func (b *alsaBackend) worker(hw HardwareConfig) {
	defer b.workerWG.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	prio := b.pb.Tunables.PlaybackThreadPriority
	if b.direction == Capture {
		prio = b.pb.Tunables.CaptureThreadPriority
	}
	setRealtimePriority(prio)

	numBuf := uint32(numBufferingSamplesFor(b.pb.Config, hw, b.pb.Tunables))

	prevState := b.pb.State.Load()
	for {
		if b.closing.Load() {
			return
		}

		state := b.pb.State.Load()
		if state == StateStarting && prevState != StateStarting {
			// Entered Starting from outside enterStarting (the
			// orchestrator's Running->Starting fallback): re-arm.
			b.startedAt = time.Now()
		}
		prevState = state
		switch state {
		case StateInitializing:
			b.initPhase(state)
		case StateStarting:
			b.startingPhase()
		case StateStarted:
			// idle-wait for host to move us to Buffering; playback
			// writes silence to avoid underrun while it waits.
			if b.direction == Playback {
				b.writeSilence(hw)
			}
			time.Sleep(time.Millisecond)
		case StateBuffering:
			b.runPeriod(hw, numBuf)
		case StateRunning:
			b.runPeriod(hw, numBuf)
		}

		if !b.watchdog() {
			b.disconnected.Store(true)
			return
		}
	}
}

// enterStarting transitions into StateStarting and arms a fresh ~1s
// watchdog window for this excursion (spec §3/§4.4: "Starting that never
// sees availability is treated as permanent failure"). Every path that
// the worker takes into Starting - the initial start, and every later
// reset-to-Starting on an unrecovered I/O or ring error - goes through this
// so the watchdog can fire again on a later excursion rather than staying
// latched open from the first one (scenario D: a later disconnect must
// still be caught within ~1s). The orchestrator's own Running->Starting
// fallback is caught by the worker loop, which re-arms the window when it
// first sees Starting.
func (b *alsaBackend) enterStarting() {
	b.startedAt = time.Now()
	b.watchdogOK.Store(false)
	b.pb.State.Store(StateStarting)
}

func (b *alsaBackend) watchdog() bool {
	if b.pb.State.Load() != StateStarting {
		return true
	}
	if b.watchdogOK.Load() {
		return true
	}
	return time.Since(b.startedAt) < time.Second
}

func (b *alsaBackend) initPhase(_ DeviceState) {
	if b.direction == Capture {
		// Drain the device by reading until empty.
		var n C.snd_pcm_sframes_t
		for {
			n = C.snd_pcm_readi(b.handle, unsafe.Pointer(&b.raw[0]), C.snd_pcm_uframes_t(len(b.scratch[0])))
			if n < C.snd_pcm_sframes_t(len(b.scratch[0])) {
				break
			}
		}
		if n >= 0 || n == -C.EAGAIN {
			b.enterStarting()
		}
	} else {
		// Prime the device by writing silence until full.
		for i := range b.raw {
			b.raw[i] = 0
		}
		var n C.snd_pcm_sframes_t
		for {
			n = C.snd_pcm_writei(b.handle, unsafe.Pointer(&b.raw[0]), C.snd_pcm_uframes_t(len(b.scratch[0])))
			if n < C.snd_pcm_sframes_t(len(b.scratch[0])) {
				break
			}
		}
		if n >= 0 || n == -C.EAGAIN {
			b.enterStarting()
		}
	}
}

func (b *alsaBackend) startingPhase() {
	avail := C.snd_pcm_avail_update(b.handle)
	if avail > 0 {
		b.startedAt = time.Now()
		b.pb.State.Store(StateStarted)
		b.pb.Reset.Request(ResetFull)
	}
}

func (b *alsaBackend) writeSilence(hw HardwareConfig) {
	for i := range b.raw {
		b.raw[i] = 0
	}
	C.snd_pcm_writei(b.handle, unsafe.Pointer(&b.raw[0]), C.snd_pcm_uframes_t(hw.PeriodSize))
}

func (b *alsaBackend) runPeriod(hw HardwareConfig, numBuf uint32) {
	if b.direction == Capture {
		b.runCapturePeriod(hw, numBuf)
	} else {
		b.runPlaybackPeriod(hw, numBuf)
	}
}

func (b *alsaBackend) runCapturePeriod(hw HardwareConfig, numBuf uint32) {
	n := C.snd_pcm_readi(b.handle, unsafe.Pointer(&b.raw[0]), C.snd_pcm_uframes_t(hw.PeriodSize))
	if n < 0 {
		if !b.recover(C.int(n)) {
			b.enterStarting()
			b.pb.Reset.Request(ResetFull)
		}
		return
	}

	UnpackIntToFloat(hw.Format, b.scratch, b.raw, 0, hw.Channels, int(n))

	b.mu.Lock()
	ok := b.pb.Ring.Write(b.scratch, uint32(n))
	b.mu.Unlock()

	if !ok {
		b.enterStarting()
		b.pb.Reset.Request(ResetFull)
		return
	}

	if b.pb.State.Load() == StateBuffering && b.pb.Ring.Readable() >= numBuf {
		b.pb.State.Store(StateRunning)
	}
}

func (b *alsaBackend) runPlaybackPeriod(hw HardwareConfig, numBuf uint32) {
	b.mu.Lock()
	readable := b.pb.Ring.Readable()
	if b.pb.State.Load() == StateBuffering && readable < numBuf {
		b.mu.Unlock()
		b.writeSilence(hw)
		return
	}
	ok := b.pb.Ring.Read(b.scratch, uint32(hw.PeriodSize), 0)
	b.mu.Unlock()

	if b.pb.State.Load() == StateBuffering && readable >= numBuf {
		b.pb.State.Store(StateRunning)
	}

	if !ok {
		b.writeSilence(hw)
		return
	}

	PackFloatToInt(hw.Format, b.raw, b.scratch, hw.Channels, hw.PeriodSize)

	remaining := hw.PeriodSize
	offset := 0
	sampleSize := hw.Format.Size()
	retries := 0
	for remaining > 0 && retries < 8 {
		n := C.snd_pcm_writei(b.handle, unsafe.Pointer(&b.raw[offset*hw.Channels*sampleSize]), C.snd_pcm_uframes_t(remaining))
		if n < 0 {
			if !b.recover(C.int(n)) {
				b.enterStarting()
				b.pb.Reset.Request(ResetFull)
				return
			}
			retries++
			continue
		}
		offset += int(n)
		remaining -= int(n)
		retries++
	}
}

// recover implements the EPIPE/ESTRPIPE/EAGAIN policy of
// original_source/src/audio-process.cpp's xrun_recovery: true means the
// caller may retry this cycle, false means the condition is permanent.
func (b *alsaBackend) recover(err C.int) bool {
	switch err {
	case -C.EPIPE:
		C.snd_pcm_prepare(b.handle)
		return true
	case -C.ESTRPIPE:
		for {
			r := C.snd_pcm_resume(b.handle)
			if r != -C.EAGAIN {
				if r < 0 {
					C.snd_pcm_prepare(b.handle)
				}
				return true
			}
			time.Sleep(10 * time.Millisecond)
		}
	case -C.EAGAIN:
		return true
	default:
		return false
	}
}

func (b *alsaBackend) Close() {
	b.workerWG.Wait()
	if b.handle != nil {
		C.snd_pcm_drop(b.handle)
		C.snd_pcm_close(b.handle)
		b.handle = nil
	}
}

func (b *alsaBackend) RunCaptureSync(_ [][]float32, _ int) bool  { return true }
func (b *alsaBackend) RunPlaybackSync(_ [][]float32, _ int) bool { return true }

func (b *alsaBackend) Post(_ int) bool {
	return !b.disconnected.Load()
}

// setRealtimePriority raises the calling OS thread to SCHED_FIFO at the
// given priority (spec §5: capture 71, playback 70, one step below the
// host thread); failure is logged once and otherwise ignored, since
// unprivileged processes cannot always obtain real-time scheduling.
func setRealtimePriority(priority int) {
	param := unix.SchedParam{Priority: int32(priority)}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, &param); err != nil {
		Logger.Debug("sched_setscheduler failed, continuing at default priority", "err", err, "priority", priority)
	}
}
