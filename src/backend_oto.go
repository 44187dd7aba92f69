//go:build !headless

// backend_oto.go - oto/v3 headless playback back-end
//
// Not a real device: a host-audio output used to exercise the bridge
// end to end (demo shell, integration tests) without a kernel UAC gadget.
// Playback-only, synchronous: RunPlaybackSync pushes into an internal ring
// that oto's own callback goroutine drains via Read, mirroring the
// producer/consumer split of the teacher's OtoPlayer (atomic chip pointer,
// pre-allocated sample buffer). ringMu is held briefly around every ring
// Read/Write, on both the oto and the host side.

package bridge

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

type otoBackend struct {
	ctx    *oto.Context
	player *oto.Player

	ring     *AudioRingBuffer
	ringMu   sync.Mutex
	channels int

	closed atomic.Bool

	chanBuf [][]float32 // pre-allocated Read() scratch, grown on demand only
	view    [][]float32 // reused outer slice into chanBuf, never reallocated per call
}

// NewOtoBackend returns a playback-only synchronous Backend that renders
// through the local host's audio output instead of a UAC gadget.
func NewOtoBackend() Backend { return &otoBackend{} }

func (b *otoBackend) Open(pb *ProcessBlock) (HardwareConfig, error) {
	if pb.Config.Direction != Playback {
		return HardwareConfig{}, fmt.Errorf("pcmbridge: oto back-end is playback-only")
	}

	opts := &oto.NewContextOptions{
		SampleRate:   int(pb.Config.HostRate),
		ChannelCount: pb.Config.Channels,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return HardwareConfig{}, fmt.Errorf("pcmbridge: oto context: %w", err)
	}
	<-ready

	capacity := nextPowerOf2(uint32(pb.Config.N * pb.Tunables.PlaybackRingbufferBlocks * 2))
	ring, err := NewAudioRingBuffer(pb.Config.Channels, capacity)
	if err != nil {
		return HardwareConfig{}, err
	}

	b.ctx = ctx
	b.ring = ring
	b.channels = pb.Config.Channels
	b.chanBuf = makeChannelBuffers(pb.Config.Channels, pb.Config.N*4)
	b.view = make([][]float32, pb.Config.Channels)

	b.player = ctx.NewPlayer(b)
	b.player.Play()

	return HardwareConfig{
		Format:     FormatS32,
		Channels:   pb.Config.Channels,
		PeriodSize: pb.Config.N,
		NumPeriods: pb.Tunables.PlaybackRingbufferBlocks,
		SampleRate: pb.Config.HostRate,
	}, nil
}

// Read satisfies io.Reader for oto.Player: runs on oto's own playback
// goroutine, never the host's block-processing thread.
func (b *otoBackend) Read(p []byte) (int, error) {
	frames := len(p) / (4 * b.channels)
	if frames == 0 {
		return 0, nil
	}
	if cap(b.chanBuf[0]) < frames {
		b.chanBuf = makeChannelBuffers(b.channels, frames)
	}
	setView(b.view, b.chanBuf, 0)
	for c := range b.view {
		b.view[c] = b.view[c][:frames]
	}

	b.ringMu.Lock()
	got := b.ring.Read(b.view, uint32(frames), 0)
	b.ringMu.Unlock()

	if !got {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	i := 0
	for f := 0; f < frames; f++ {
		for c := 0; c < b.channels; c++ {
			packFloat32LE(p[i:i+4], b.view[c][f])
			i += 4
		}
	}
	return len(p), nil
}

func packFloat32LE(dst []byte, v float32) {
	bits := math.Float32bits(v)
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
	dst[2] = byte(bits >> 16)
	dst[3] = byte(bits >> 24)
}

func (b *otoBackend) Close() {
	if b.player != nil {
		b.player.Close()
	}
	b.closed.Store(true)
}

func (b *otoBackend) RunCaptureSync(_ [][]float32, _ int) bool { return true }

func (b *otoBackend) RunPlaybackSync(buffers [][]float32, n int) bool {
	if b.closed.Load() {
		return false
	}
	b.ringMu.Lock()
	ok := b.ring.Write(buffers, uint32(n))
	b.ringMu.Unlock()
	if !ok {
		b.ring.log.Once("oto: playback ring overflow, dropping block", func() {})
	}
	return true
}

func (b *otoBackend) Post(_ int) bool { return !b.closed.Load() }
