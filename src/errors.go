// errors.go - error kinds and policy (spec §7)

package bridge

import "errors"

// ErrDeviceOpenFailed is returned by Open when the device could not be
// opened; the shell is expected to retry at 1 Hz (spec §7 "Open failure").
var ErrDeviceOpenFailed = errors.New("pcmbridge: device open failed")

// ErrDeviceGone names the case of a back-end that has reported permanent
// failure. Run reports that case by returning false; nothing in this
// package returns ErrDeviceGone.
var ErrDeviceGone = errors.New("pcmbridge: device disconnected")

// ErrInvariant marks an invariant violation: debug builds should panic on
// it, release builds log once and degrade to silence/drop (spec §7).
var ErrInvariant = errors.New("pcmbridge: invariant violation")
