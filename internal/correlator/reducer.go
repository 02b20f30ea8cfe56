package correlator

import (
	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// Reducer aggregates the per-offset sums of a correlation scan.
type Reducer interface {
	Observe(offset int, sum int64)
}

// ReducerFunc adapts a function to the Reducer interface.
type ReducerFunc func(offset int, sum int64)

// Observe calls f(offset, sum).
func (f ReducerFunc) Observe(offset int, sum int64) { f(offset, sum) }

// Reducers fans every observation out to each reducer in order.
type Reducers []Reducer

// Observe forwards to every reducer.
func (rs Reducers) Observe(offset int, sum int64) {
	for _, r := range rs {
		r.Observe(offset, sum)
	}
}

// MaxReducer keeps the first offset holding the greatest sum.
type MaxReducer struct {
	Offset int
	Value  int64
	Found  bool
}

// Observe records the offset when sum is strictly greater than the best so far.
func (m *MaxReducer) Observe(offset int, sum int64) {
	if !m.Found || sum > m.Value {
		m.Offset = offset
		m.Value = sum
		m.Found = true
	}
}

// Reset forgets the current maximum.
func (m *MaxReducer) Reset() { *m = MaxReducer{} }

// Histogram sums correlation values into fixed-width offset bins and tracks
// the overall maximum.
type Histogram struct {
	OffsetMin int
	BinWidth  int
	Bins      []int64
	Max       MaxReducer
}

// NewHistogram covers [offsetMin, offsetMax) with bins of binWidth offsets.
// The last bin may be narrower.
func NewHistogram(offsetMin, offsetMax, binWidth int) (*Histogram, error) {
	if offsetMax <= offsetMin {
		return nil, errors.Newf("invalid offset range [%d,%d)", offsetMin, offsetMax).
			Component("correlator").
			Category(errors.CategoryValidation).
			Context("offset_min", offsetMin).
			Context("offset_max", offsetMax).
			Build()
	}
	if binWidth <= 0 {
		return nil, errors.Newf("invalid histogram bin width: %d", binWidth).
			Component("correlator").
			Category(errors.CategoryValidation).
			Context("bin_width", binWidth).
			Build()
	}

	bins := (offsetMax - offsetMin + binWidth - 1) / binWidth
	return &Histogram{
		OffsetMin: offsetMin,
		BinWidth:  binWidth,
		Bins:      make([]int64, bins),
	}, nil
}

// Observe adds sum to the bin holding offset.
func (h *Histogram) Observe(offset int, sum int64) {
	if offset >= h.OffsetMin {
		if idx := (offset - h.OffsetMin) / h.BinWidth; idx < len(h.Bins) {
			h.Bins[idx] += sum
		}
	}
	h.Max.Observe(offset, sum)
}

// BinStart returns the first offset covered by bin i.
func (h *Histogram) BinStart(i int) int {
	return h.OffsetMin + i*h.BinWidth
}

// Reset clears the bins and the maximum.
func (h *Histogram) Reset() {
	clear(h.Bins)
	h.Max.Reset()
}
