//go:build !linux

// backend_mmap_stub.go - non-Linux stand-in for the synchronous MMAP
// back-end, which depends on a Linux-only kernel gadget export.

package bridge

import "fmt"

type mmapBackend struct{}

// NewMMAPBackend constructs a stand-in back-end that always fails to open.
func NewMMAPBackend(path string) Backend { return &mmapBackend{} }

func (b *mmapBackend) Open(pb *ProcessBlock) (HardwareConfig, error) {
	return HardwareConfig{}, fmt.Errorf("%w: MMAP gadget unavailable on this build", ErrDeviceOpenFailed)
}

func (b *mmapBackend) Close()                                    {}
func (b *mmapBackend) RunCaptureSync(_ [][]float32, _ int) bool  { return true }
func (b *mmapBackend) RunPlaybackSync(_ [][]float32, _ int) bool { return true }
func (b *mmapBackend) Post(_ int) bool                           { return true }
