// ringbuffer.go - lock-free-shaped SPSC deinterleaved audio ring buffer
//
// Ported from the layout and invariants of DISTRHO's AudioRingBuffer
// (RingBuffer.hpp): one float slice per channel, capacity rounded up to a
// power of two, one free slot kept to distinguish full from empty. This is
// not a fully lock-free primitive (spec §4.1) - callers sharing it across
// the host and a worker goroutine must hold a short external mutex around
// both read and write.

package bridge

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// AudioRingBuffer is a bounded single-producer/single-consumer buffer of
// deinterleaved float32 samples for a fixed channel count.
type AudioRingBuffer struct {
	buf      [][]float32
	channels int
	samples  uint32 // capacity, power of two
	head     uint32 // producer
	tail     uint32 // consumer

	errReading bool
	errWriting bool

	log logGate
}

// nextPowerOf2 rounds size up to the next power of two (size must be > 0).
func nextPowerOf2(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	size--
	size |= size >> 1
	size |= size >> 2
	size |= size >> 4
	size |= size >> 8
	size |= size >> 16
	return size + 1
}

// NewAudioRingBuffer allocates a ring for the given channel count with
// capacity rounded up to a power of two >= samples, and attempts to pin its
// pages into physical RAM (spec §3 "memory is locked into physical RAM
// after creation"; best-effort, failure is not fatal since mlock requires
// privileges this process may not have).
func NewAudioRingBuffer(channels int, samples uint32) (*AudioRingBuffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("pcmbridge: ring buffer channels must be positive, got %d", channels)
	}
	if samples == 0 {
		return nil, fmt.Errorf("pcmbridge: ring buffer samples must be positive")
	}

	p2 := nextPowerOf2(samples)

	rb := &AudioRingBuffer{
		buf:      make([][]float32, channels),
		channels: channels,
		samples:  p2,
	}
	for c := range rb.buf {
		rb.buf[c] = make([]float32, p2)
		_ = unix.Mlock(float32SliceBytes(rb.buf[c]))
	}
	return rb, nil
}

// Close unpins the buffer's pages, if they were locked.
func (rb *AudioRingBuffer) Close() {
	for _, ch := range rb.buf {
		_ = unix.Munlock(float32SliceBytes(ch))
	}
}

// Channels returns the configured channel count.
func (rb *AudioRingBuffer) Channels() int { return rb.channels }

// Capacity returns the power-of-two sample capacity (one slot of which is
// never usable, to distinguish full from empty).
func (rb *AudioRingBuffer) Capacity() uint32 { return rb.samples }

// Readable returns the number of frames currently available to Read.
func (rb *AudioRingBuffer) Readable() uint32 {
	head, tail := rb.head, rb.tail
	wrap := uint32(0)
	if head < tail {
		wrap = rb.samples
	}
	return wrap + head - tail
}

// Writable returns the number of frames currently available to Write.
func (rb *AudioRingBuffer) Writable() uint32 {
	head, tail := rb.head, rb.tail
	wrap := uint32(0)
	if tail <= head {
		wrap = rb.samples
	}
	return wrap + tail - head - 1
}

// Flush clears head and tail, marking the buffer empty. Legal only when
// neither side is mid read/write (spec §4.1).
func (rb *AudioRingBuffer) Flush() {
	rb.head, rb.tail = 0, 0
	rb.errWriting = false
	rb.errReading = false
}

// Read copies n frames per channel into out[c][offset:offset+n], wrapping
// at the capacity boundary. Returns false and leaves tail unchanged if
// fewer than n frames are readable.
func (rb *AudioRingBuffer) Read(out [][]float32, n uint32, offset uint32) bool {
	if rb.head == rb.tail {
		return false
	}
	if n > rb.Readable() {
		rb.log.Once("ring: read underflow", func() {})
		return false
	}

	tail := rb.tail
	readTo := tail + n
	if readTo > rb.samples {
		readTo -= rb.samples
		firstPart := rb.samples - tail
		for c := 0; c < rb.channels; c++ {
			copy(out[c][offset:offset+firstPart], rb.buf[c][tail:])
			copy(out[c][offset+firstPart:offset+n], rb.buf[c][:readTo])
		}
	} else {
		for c := 0; c < rb.channels; c++ {
			copy(out[c][offset:offset+n], rb.buf[c][tail:tail+n])
		}
		if readTo == rb.samples {
			readTo = 0
		}
	}

	rb.tail = readTo
	rb.errReading = false
	return true
}

// Write copies n frames per channel from in[c][:n] into the ring, wrapping
// at the capacity boundary. Returns false and leaves head unchanged if
// fewer than n frames are writable.
func (rb *AudioRingBuffer) Write(in [][]float32, n uint32) bool {
	if n > rb.Writable() {
		rb.log.Once("ring: write overflow", func() {})
		return false
	}

	head := rb.head
	writeTo := head + n
	if writeTo > rb.samples {
		writeTo -= rb.samples
		firstPart := rb.samples - head
		for c := 0; c < rb.channels; c++ {
			copy(rb.buf[c][head:], in[c][:firstPart])
			copy(rb.buf[c][:writeTo], in[c][firstPart:n])
		}
	} else {
		for c := 0; c < rb.channels; c++ {
			copy(rb.buf[c][head:head+n], in[c][:n])
		}
		if writeTo == rb.samples {
			writeTo = 0
		}
	}

	rb.head = writeTo
	rb.errWriting = false
	return true
}

func float32SliceBytes(s []float32) []byte {
	b := float32ToBytes(s)
	runtime.KeepAlive(s)
	return b
}
