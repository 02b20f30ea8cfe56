// Package correlator computes sliding cross-correlation between two sample
// rings: a long haystack (channel A) and a short needle (channel B). Windows
// that straddle either ring's wrap point are decomposed into chunk pairs of
// equal length so every product sum runs over contiguous slices.
package correlator

import (
	"github.com/avlk/oppc-aux-sw/internal/ringbuffer"
)

// MaxChunkPairs bounds the number of pairs one decomposition can produce.
// The B window splits into at most two chunks and the A window has at most
// one wrap point, so three pairs are used at most; the fourth slot keeps the
// nested split trivially in bounds.
const MaxChunkPairs = 4

// scoreBlock is the number of products summed into one 32-bit partial sum.
// With samples bounded to 13 bits a product stays below 2^26, so a block of
// eight stays below 2^29.
const scoreBlock = 8

// ChunkPair aligns a chunk of buffer A with an equally long chunk of buffer B.
type ChunkPair struct {
	A ringbuffer.Chunk
	B ringbuffer.Chunk
}

// Len returns the number of samples in the pair.
func (p ChunkPair) Len() int { return p.A.Len }

// ChunkPairs is the result of a decomposition. The zero value is the empty
// (failed) result.
type ChunkPairs struct {
	p [MaxChunkPairs]ChunkPair
	n int
}

// Len returns the number of pairs, 0 when the request was rejected.
func (c ChunkPairs) Len() int { return c.n }

// At returns pair i.
func (c ChunkPairs) At(i int) ChunkPair { return c.p[i] }

// Total returns the number of samples covered by all pairs.
func (c ChunkPairs) Total() int {
	total := 0
	for i := range c.n {
		total += c.p[i].Len()
	}
	return total
}

// Decompose splits the windows a[startA:startA+length] and
// b[startB:startB+length] (offsets relative to each write cursor) into chunk
// pairs ready for elementwise multiplication. Both windows must satisfy the
// ring window preconditions; an empty result is returned otherwise.
func Decompose[T ringbuffer.Sample](a, b *ringbuffer.Buffer[T], startA, startB, length int) ChunkPairs {
	bw := b.Window(startB, length)
	if bw.Len() == 0 {
		return ChunkPairs{}
	}
	return splitAgainst(a, bw, startA, length)
}

// splitAgainst walks the chunks of an already resolved B window and splits
// the matching A sub-windows.
func splitAgainst[T ringbuffer.Sample](a *ringbuffer.Buffer[T], bw ringbuffer.Chunks, startA, length int) ChunkPairs {
	if startA < -a.Capacity() || startA+length > 0 {
		return ChunkPairs{}
	}

	var out ChunkPairs
	consumed := 0
	for i := range bw.Len() {
		bc := bw.At(i)
		aw := a.Window(startA+consumed, bc.Len)
		if aw.Len() == 0 {
			return ChunkPairs{}
		}

		bOffset := bc.Offset
		for j := range aw.Len() {
			ac := aw.At(j)
			out.p[out.n] = ChunkPair{
				A: ac,
				B: ringbuffer.Chunk{Offset: bOffset, Len: ac.Len},
			}
			out.n++
			bOffset += ac.Len
		}
		consumed += bc.Len
	}
	return out
}

// Score returns the sum of a[i]*b[i] over the shorter of the two slices.
// Products are accumulated in 32-bit blocks folded into a 64-bit total, which
// requires samples to stay within 13 bits of magnitude.
func Score[T ringbuffer.Sample](a, b []T) int64 {
	n := min(len(a), len(b))
	a, b = a[:n], b[:n]

	var total int64
	i := 0
	for ; i+scoreBlock <= n; i += scoreBlock {
		x := a[i : i+scoreBlock : i+scoreBlock]
		y := b[i : i+scoreBlock : i+scoreBlock]
		sub := int32(x[0])*int32(y[0]) +
			int32(x[1])*int32(y[1]) +
			int32(x[2])*int32(y[2]) +
			int32(x[3])*int32(y[3]) +
			int32(x[4])*int32(y[4]) +
			int32(x[5])*int32(y[5]) +
			int32(x[6])*int32(y[6]) +
			int32(x[7])*int32(y[7])
		total += int64(sub)
	}

	var sub int32
	for ; i < n; i++ {
		sub += int32(a[i]) * int32(b[i])
	}
	return total + int64(sub)
}

// ScorePair scores one chunk pair.
func ScorePair[T ringbuffer.Sample](a, b *ringbuffer.Buffer[T], p ChunkPair) int64 {
	return Score(a.Slice(p.A), b.Slice(p.B))
}

// Correlate scans offsets in [offsetMin, offsetMax) in increasing order. For
// each offset the newest length samples of b are multiplied against the
// samples of a that end offset samples earlier, and r observes the sum. A
// window that cannot be resolved contributes a sum of zero.
func Correlate[T ringbuffer.Sample](a, b *ringbuffer.Buffer[T], offsetMin, offsetMax, length int, r Reducer) {
	bw := b.Window(-length, length)

	for offset := offsetMin; offset < offsetMax; offset++ {
		var sum int64
		if bw.Len() > 0 {
			pairs := splitAgainst(a, bw, -length-offset, length)
			for i := range pairs.Len() {
				sum += ScorePair(a, b, pairs.At(i))
			}
		}
		r.Observe(offset, sum)
	}
}

// CorrelateMax returns the offset with the strictly greatest sum. Ties keep
// the lowest offset. ok is false for an empty offset range.
func CorrelateMax[T ringbuffer.Sample](a, b *ringbuffer.Buffer[T], offsetMin, offsetMax, length int) (offset int, value int64, ok bool) {
	var m MaxReducer
	Correlate(a, b, offsetMin, offsetMax, length, &m)
	return m.Offset, m.Value, m.Found
}
