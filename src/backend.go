// backend.go - capability-based back-end abstraction (spec §9 "Dynamic
// dispatch across back-ends")
//
// A back-end exposes Open/Close, RunCaptureSync/RunPlaybackSync and Post.
// Asynchronous back-ends (the ALSA worker-thread back-end) leave the *Sync
// operations as no-ops and do their work on a background goroutine that
// reaches into the shared ProcessBlock; synchronous back-ends (the MMAP
// back-end) do all their work inside RunCaptureSync/RunPlaybackSync and
// leave Post trivial. The orchestrator is told which kind it holds through
// its Mode.

package bridge

import (
	"sync"
	"sync/atomic"
)

// ProcessBlock is the plain data aggregate the orchestrator owns and the
// back-end holds a pointer into (spec §9 "Cyclic references"): the back-end
// uses it from Open until the orchestrator closes it, so this is a strictly
// nested borrow, not a real cycle.
type ProcessBlock struct {
	Config   DeviceConfig
	Hardware HardwareConfig
	Tunables Tunables

	Ring  *AudioRingBuffer // asynchronous mode only
	RingMu sync.Mutex       // short-held lock around every Ring.Read/Write (spec §4.1, §5)
	State *AtomicState
	Reset *AtomicReset
	Drift *DriftStats // asynchronous mode only

	Closing atomic.Bool
}

// Backend is the device-specific implementation plugged behind the
// orchestrator (spec §9 "Hidden implementation").
type Backend interface {
	// Open performs the non-real-time device open/negotiation and, for
	// asynchronous back-ends, starts the worker. It returns the discovered
	// HardwareConfig.
	Open(pb *ProcessBlock) (HardwareConfig, error)

	// Close tears the device down; for asynchronous back-ends this joins
	// the worker thread.
	Close()

	// RunCaptureSync/RunPlaybackSync are called by the orchestrator once
	// per host block in synchronous mode only; asynchronous back-ends
	// leave these as no-ops returning true.
	RunCaptureSync(buffers [][]float32, n int) bool
	RunPlaybackSync(buffers [][]float32, n int) bool

	// Post is the orchestrator's per-block liveness check (spec §4.3 step
	// 7, §4.6); liveness comes from Post alone. Asynchronous back-ends
	// report whether the worker has disconnected; synchronous back-ends
	// report the disconnection their sync calls detected. A false return
	// from a sync call only makes the orchestrator zero that block.
	Post(numFrames int) bool
}
