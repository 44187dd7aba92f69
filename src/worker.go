// worker.go - worker/scheduler glue (spec §4.6)
//
// Opens a device in a non-real-time context on cold start and after
// disconnection, publishes the newly opened orchestrator to the audio
// thread via a single atomic pointer swap, and releases whatever it
// replaced. Re-open attempts are paced at one per second of audio while no
// back-end is present.

package bridge

import (
	"sync/atomic"
	"time"
)

// BackendFactory constructs a fresh, unopened Backend for one open attempt.
// A fresh value is required per attempt because a failed Backend generally
// cannot be reused (its internal handle, if any, is gone).
type BackendFactory func() Backend

const reopenPace = time.Second

// Bridge is the host-facing shell: it owns the worker goroutine and
// publishes a ready-to-run *Orchestrator for Run to pick up, never blocking
// the audio thread on device open (spec §4.6 "Open-device is a
// non-real-time operation invoked from a worker context").
type Bridge struct {
	cfg      DeviceConfig
	tunables Tunables
	mode     Mode
	newBackend BackendFactory

	current atomic.Pointer[Orchestrator]
	closing atomic.Bool
	reopen  chan struct{}
	done    chan struct{}
}

// NewBridge constructs a bridge and starts its worker goroutine; the
// returned bridge has no orchestrator until the first successful open.
func NewBridge(cfg DeviceConfig, tunables Tunables, mode Mode, newBackend BackendFactory) *Bridge {
	br := &Bridge{
		cfg:        cfg,
		tunables:   tunables,
		mode:       mode,
		newBackend: newBackend,
		reopen:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go br.loop()
	return br
}

// Run forwards to the current orchestrator, if any; with no device open it
// reports silence/failure and leaves re-opening to the once-per-second
// pacing. When the current device reports itself gone, Run drops it and
// nudges the worker to re-open immediately.
func (br *Bridge) Run(buffers [][]float32, n int) bool {
	o := br.current.Load()
	if o == nil {
		zeroBuffers(buffers, n)
		return false
	}
	alive := o.Run(buffers, n)
	if !alive {
		if br.current.CompareAndSwap(o, nil) {
			go o.Close()
		}
		br.nudge()
	}
	return alive
}

func (br *Bridge) nudge() {
	select {
	case br.reopen <- struct{}{}:
	default:
	}
}

// SetEnabled forwards the relaxed toggle to the current orchestrator, if
// any (spec §4.3 "set_enabled is a relaxed atomic").
func (br *Bridge) SetEnabled(v bool) {
	if o := br.current.Load(); o != nil {
		o.SetEnabled(v)
	}
}

// Stats returns the current orchestrator's observability snapshot, or the
// zero value with State == StateInitializing while no device is open.
func (br *Bridge) Stats() Stats {
	if o := br.current.Load(); o != nil {
		return o.Stats()
	}
	return Stats{}
}

// Close signals the worker to stop and releases whatever orchestrator is
// current (spec §5 "resource lifecycle").
func (br *Bridge) Close() {
	br.closing.Store(true)
	br.nudge()
	<-br.done
	if o := br.current.Swap(nil); o != nil {
		o.Close()
	}
}

func (br *Bridge) loop() {
	defer close(br.done)

	ticker := time.NewTicker(reopenPace)
	defer ticker.Stop()

	for {
		if br.closing.Load() {
			return
		}
		if br.current.Load() == nil {
			o, err := NewOrchestrator(br.cfg, br.tunables, br.newBackend(), br.mode)
			if err != nil {
				Logger.Debug("pcmbridge: device open failed, will retry", "device", br.cfg.DeviceID, "err", err)
			} else {
				br.current.Store(o)
			}
		}

		select {
		case <-ticker.C:
		case <-br.reopen:
		}
	}
}
