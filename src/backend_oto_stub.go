//go:build headless

package bridge

// NewOtoBackend is unavailable in headless builds (no host audio output is
// linked in): Open always fails with ErrDeviceOpenFailed, so the demo's
// --backend oto never obtains a device in these builds.
func NewOtoBackend() Backend { return &otoBackendStub{} }

type otoBackendStub struct{}

func (otoBackendStub) Open(_ *ProcessBlock) (HardwareConfig, error) {
	return HardwareConfig{}, ErrDeviceOpenFailed
}
func (otoBackendStub) Close()                                    {}
func (otoBackendStub) RunCaptureSync(_ [][]float32, _ int) bool  { return false }
func (otoBackendStub) RunPlaybackSync(_ [][]float32, _ int) bool { return false }
func (otoBackendStub) Post(_ int) bool                           { return false }
