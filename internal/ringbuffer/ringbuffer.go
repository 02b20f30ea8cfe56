// Package ringbuffer implements the fixed-capacity sample ring used by the
// correlator. Windows into the ring are returned as index descriptors so the
// correlator can multiply contiguous runs without copying.
package ringbuffer

import (
	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// Sample is the set of element types a ring can hold: raw ADC samples and
// DC-removed signed samples.
type Sample interface {
	~uint16 | ~int16
}

// Chunk describes one contiguous run inside a buffer's backing array.
type Chunk struct {
	Offset int
	Len    int
}

// Chunks holds the one or two chunks of a window, oldest first. The zero
// value is the empty (failed) window.
type Chunks struct {
	c [2]Chunk
	n int
}

// Len returns the number of chunks, 0 for a rejected window.
func (c Chunks) Len() int { return c.n }

// At returns chunk i.
func (c Chunks) At(i int) Chunk { return c.c[i] }

// Total returns the number of samples covered.
func (c Chunks) Total() int {
	total := 0
	for i := range c.n {
		total += c.c[i].Len
	}
	return total
}

// Buffer is a circular buffer of samples with a write cursor. The newest
// sample sits at pos-1 modulo capacity. A new buffer reads as zeros.
type Buffer[T Sample] struct {
	data    []T
	pos     int
	written uint64
}

// New allocates a buffer holding capacity samples.
func New[T Sample](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, errors.Newf("invalid ring buffer capacity: %d", capacity).
			Component("ringbuffer").
			Category(errors.CategoryValidation).
			Context("capacity", capacity).
			Build()
	}
	return &Buffer[T]{data: make([]T, capacity)}, nil
}

// Capacity returns the fixed number of samples the buffer holds.
func (b *Buffer[T]) Capacity() int { return len(b.data) }

// Pos returns the write cursor.
func (b *Buffer[T]) Pos() int { return b.pos }

// Written returns the number of samples written since construction or Reset.
func (b *Buffer[T]) Written() uint64 { return b.written }

// Write appends samples. When more than Capacity samples are given only the
// most recent Capacity are kept.
func (b *Buffer[T]) Write(samples []T) {
	capacity := len(b.data)
	total := len(samples)
	b.written += uint64(total)

	// The cursor advances by every sample given; only the tail is stored,
	// at the position it would have landed on.
	if total > capacity {
		samples = samples[total-capacity:]
	}
	at := (b.pos + total - len(samples)) % capacity

	n := copy(b.data[at:], samples)
	if n < len(samples) {
		copy(b.data, samples[n:])
	}
	b.pos = (b.pos + total) % capacity
}

// Window returns the chunks covering length samples starting start samples
// before the write cursor. start must be negative and the window must end at
// or before the cursor. An invalid request returns an empty Chunks.
func (b *Buffer[T]) Window(start, length int) Chunks {
	capacity := len(b.data)
	if length <= 0 || length > capacity || start >= 0 || -start > capacity || start+length > 0 {
		return Chunks{}
	}

	ptr := b.pos + start
	if ptr < 0 {
		ptr += capacity
	}

	if ptr+length > capacity {
		first := capacity - ptr
		return Chunks{
			c: [2]Chunk{{Offset: ptr, Len: first}, {Offset: 0, Len: length - first}},
			n: 2,
		}
	}
	return Chunks{c: [2]Chunk{{Offset: ptr, Len: length}}, n: 1}
}

// Slice returns the backing samples of a chunk. The slice aliases the buffer
// and is only valid until the next Write.
func (b *Buffer[T]) Slice(c Chunk) []T {
	return b.data[c.Offset : c.Offset+c.Len]
}

// Snapshot copies the whole buffer into dst, oldest sample first, growing dst
// if needed.
func (b *Buffer[T]) Snapshot(dst []T) []T {
	if cap(dst) < len(b.data) {
		dst = make([]T, len(b.data))
	}
	dst = dst[:len(b.data)]
	n := copy(dst, b.data[b.pos:])
	copy(dst[n:], b.data[:b.pos])
	return dst
}

// Reset zeroes the buffer and rewinds the cursor.
func (b *Buffer[T]) Reset() {
	clear(b.data)
	b.pos = 0
	b.written = 0
}
