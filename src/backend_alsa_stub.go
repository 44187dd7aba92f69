//go:build !linux || !cgo

// backend_alsa_stub.go - non-Linux/no-cgo stand-in for the asynchronous
// ALSA back-end, mirroring the teacher's audio_backend_headless.go: Open
// always fails so the bridge's 1 Hz re-open pacing and
// ErrDeviceOpenFailed path are exercised the same way they would be on a
// machine without ALSA.

package bridge

import "fmt"

type alsaBackend struct{}

// NewALSABackend constructs a stand-in back-end that always fails to open.
func NewALSABackend() Backend { return &alsaBackend{} }

func (b *alsaBackend) Open(pb *ProcessBlock) (HardwareConfig, error) {
	return HardwareConfig{}, fmt.Errorf("%w: ALSA unavailable on this build", ErrDeviceOpenFailed)
}

func (b *alsaBackend) Close()                                    {}
func (b *alsaBackend) RunCaptureSync(_ [][]float32, _ int) bool  { return true }
func (b *alsaBackend) RunPlaybackSync(_ [][]float32, _ int) bool { return true }
func (b *alsaBackend) Post(_ int) bool                           { return true }
