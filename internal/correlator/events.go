package correlator

import (
	"slices"
	"sort"

	"github.com/avlk/oppc-aux-sw/internal/detector"
	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// EventCorrelationResult is the delay histogram of one event correlation
// run and its modal bin. Delays are in samples.
type EventCorrelationResult struct {
	Bin       int     `json:"bin"`
	DelayMin  uint64  `json:"delay_min"`
	DelayMax  uint64  `json:"delay_max"`
	Count     int64   `json:"count"`
	Pairs     int64   `json:"pairs"`
	Histogram []int64 `json:"histogram"`
}

// EventCorrelator estimates the inter-channel delay from object timestamps
// alone. Every object on channel A is paired with every later object on
// channel B that starts less than maxDelay samples after it; the most
// populated delay bin wins.
type EventCorrelator struct {
	maxDelay uint64
	bins     int
	similar  bool
	sorted   []detector.DetectedObject
}

// EventOption configures an EventCorrelator.
type EventOption func(*EventCorrelator)

// WithSimilarity only pairs objects whose lengths differ by less than a
// factor of two.
func WithSimilarity() EventOption {
	return func(c *EventCorrelator) { c.similar = true }
}

// NewEventCorrelator covers delays in [0, maxDelay) with bins equal bins.
func NewEventCorrelator(maxDelay uint64, bins int, opts ...EventOption) (*EventCorrelator, error) {
	if bins <= 0 {
		return nil, errors.Newf("invalid event histogram bins: %d", bins).
			Component("correlator").
			Category(errors.CategoryValidation).
			Context("bins", bins).
			Build()
	}
	if maxDelay < uint64(bins) {
		return nil, errors.Newf("max delay %d shorter than bin count %d", maxDelay, bins).
			Component("correlator").
			Category(errors.CategoryCorrelation).
			Context("max_delay", maxDelay).
			Context("bins", bins).
			Build()
	}

	c := &EventCorrelator{maxDelay: maxDelay, bins: bins}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Bins returns the number of histogram bins.
func (c *EventCorrelator) Bins() int { return c.bins }

// MaxDelay returns the exclusive upper delay bound.
func (c *EventCorrelator) MaxDelay() uint64 { return c.maxDelay }

// BinRange returns the delays [lo, hi) that fall into bin i.
func (c *EventCorrelator) BinRange(i int) (lo, hi uint64) {
	n := uint64(c.bins)
	lo = (uint64(i)*c.maxDelay + n - 1) / n
	hi = (uint64(i+1)*c.maxDelay + n - 1) / n
	return lo, hi
}

// Correlate builds the delay histogram of b relative to a. Neither slice is
// modified. A result with Count zero means no pair fell inside the range.
func (c *EventCorrelator) Correlate(a, b []detector.DetectedObject) EventCorrelationResult {
	c.sorted = append(c.sorted[:0], b...)
	slices.SortFunc(c.sorted, func(x, y detector.DetectedObject) int {
		switch {
		case x.Start < y.Start:
			return -1
		case x.Start > y.Start:
			return 1
		default:
			return 0
		}
	})

	res := EventCorrelationResult{Histogram: make([]int64, c.bins)}
	for _, oa := range a {
		first := sort.Search(len(c.sorted), func(i int) bool {
			return c.sorted[i].Start >= oa.Start
		})
		for _, ob := range c.sorted[first:] {
			delay := ob.Start - oa.Start
			if delay >= c.maxDelay {
				break
			}
			if c.similar && !similarLength(oa.Length, ob.Length) {
				continue
			}
			res.Histogram[delay*uint64(c.bins)/c.maxDelay]++
			res.Pairs++
		}
	}

	for i, v := range res.Histogram {
		if v > res.Count {
			res.Count = v
			res.Bin = i
		}
	}
	res.DelayMin, res.DelayMax = c.BinRange(res.Bin)
	return res
}

func similarLength(x, y uint32) bool {
	if x > y {
		x, y = y, x
	}
	return uint64(y) < 2*uint64(x)
}

// EventWindow keeps the recent objects of one channel ordered by start
// time. Objects older than the horizon are evicted, and so is the oldest
// object when the window is full.
type EventWindow struct {
	horizon  uint64
	capacity int
	objects  []detector.DetectedObject
	evicted  uint64
}

// NewEventWindow keeps up to capacity objects no older than horizon samples.
func NewEventWindow(horizon uint64, capacity int) (*EventWindow, error) {
	if capacity <= 0 {
		return nil, errors.Newf("invalid event window capacity: %d", capacity).
			Component("correlator").
			Category(errors.CategoryValidation).
			Context("capacity", capacity).
			Build()
	}
	return &EventWindow{
		horizon:  horizon,
		capacity: capacity,
		objects:  make([]detector.DetectedObject, 0, capacity),
	}, nil
}

// Add inserts o in start order.
func (w *EventWindow) Add(o detector.DetectedObject) {
	if len(w.objects) == w.capacity {
		w.objects = slices.Delete(w.objects, 0, 1)
		w.evicted++
	}
	i := sort.Search(len(w.objects), func(i int) bool {
		return w.objects[i].Start > o.Start
	})
	w.objects = slices.Insert(w.objects, i, o)
}

// Evict drops objects that started more than the horizon before now and
// returns how many were removed.
func (w *EventWindow) Evict(now uint64) int {
	if now < w.horizon {
		return 0
	}
	limit := now - w.horizon
	n := sort.Search(len(w.objects), func(i int) bool {
		return w.objects[i].Start >= limit
	})
	w.objects = slices.Delete(w.objects, 0, n)
	return n
}

// Objects returns the window contents, oldest first. The slice is only
// valid until the next Add or Evict.
func (w *EventWindow) Objects() []detector.DetectedObject { return w.objects }

// Len returns the number of objects held.
func (w *EventWindow) Len() int { return len(w.objects) }

// Evicted returns how many objects were pushed out by capacity.
func (w *EventWindow) Evicted() uint64 { return w.evicted }
