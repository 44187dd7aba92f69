// state.go - the device state machine and reset-request atomics

package bridge

import "sync/atomic"

// DeviceState is the asynchronous back-end's start-up/recovery state
// machine (spec §3, §4.4). Synchronous mode collapses this to Running plus
// a one-shot started flag tracked by the MMAP back-end itself.
type DeviceState uint32

const (
	StateInitializing DeviceState = iota
	StateStarting
	StateStarted
	StateBuffering
	StateRunning
)

func (s DeviceState) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateStarting:
		return "Starting"
	case StateStarted:
		return "Started"
	case StateBuffering:
		return "Buffering"
	case StateRunning:
		return "Running"
	default:
		return "unknown"
	}
}

// ResetKind is the value of a pending ResetRequest.
type ResetKind uint32

const (
	ResetNone ResetKind = iota
	ResetStatsOnly
	ResetFull
)

// AtomicState is a thin wrapper around atomic.Uint32 giving happens-before
// between the worker's state transition and the orchestrator's observation
// of buffered data (acquire on read, release on write), per spec §5.
type AtomicState struct {
	v atomic.Uint32
}

func (a *AtomicState) Load() DeviceState      { return DeviceState(a.v.Load()) }
func (a *AtomicState) Store(s DeviceState)    { a.v.Store(uint32(s)) }
func (a *AtomicState) CompareAndSwap(old, new DeviceState) bool {
	return a.v.CompareAndSwap(uint32(old), uint32(new))
}

// AtomicReset is written by the worker and read-and-cleared by the
// orchestrator; it is the sole channel by which the worker requests a
// reset (spec §3, §7).
type AtomicReset struct {
	v atomic.Uint32
}

func (a *AtomicReset) Request(k ResetKind) { a.v.Store(uint32(k)) }

// TakeAndClear atomically reads the pending reset kind and clears it back
// to None, so a concurrent worker-side request arriving after this call is
// never lost.
func (a *AtomicReset) TakeAndClear() ResetKind {
	return ResetKind(a.v.Swap(uint32(ResetNone)))
}
