// Package detector turns one filtered channel into discrete object events.
// An object is a run of samples above a fixed threshold that lasts at least
// a minimum number of samples.
package detector

import (
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/filter"
)

// DefaultCapacity is the number of undrained objects a detector keeps.
const DefaultCapacity = 2048

// Channel identifies the sensor an object was seen on.
type Channel uint8

const (
	ChannelA Channel = iota
	ChannelB
)

func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "a"
	case ChannelB:
		return "b"
	default:
		return "unknown"
	}
}

// DetectedObject is one closed above-threshold interval.
type DetectedObject struct {
	Start  uint64  `json:"start"`  // timestamp of the first sample above threshold
	Length uint32  `json:"length"` // samples above threshold
	Peak   int32   `json:"peak"`
	Power  int64   `json:"power"` // sum of the samples above threshold
	Source Channel `json:"source"`
}

// End returns the timestamp of the first sample back at or below threshold.
func (o DetectedObject) End() uint64 { return o.Start + uint64(o.Length) }

// ObjectDetector is a two-state (idle / in object) threshold detector. It
// owns a monotonically increasing sample timestamp.
type ObjectDetector struct {
	threshold int32
	minLength uint32
	source    Channel
	dc        *filter.DCBlocker

	ts       uint64
	inObject bool
	current  DetectedObject

	capacity  int
	results   []DetectedObject
	head      int
	count     int
	overflows uint64
}

// Option configures an ObjectDetector.
type Option func(*ObjectDetector)

// WithSource tags emitted objects with the channel.
func WithSource(ch Channel) Option {
	return func(d *ObjectDetector) { d.source = ch }
}

// WithCapacity bounds the number of undrained objects.
func WithCapacity(n int) Option {
	return func(d *ObjectDetector) { d.capacity = n }
}

// WithDCRemoval runs raw samples passed to WriteRaw through blocker before
// thresholding.
func WithDCRemoval(blocker *filter.DCBlocker) Option {
	return func(d *ObjectDetector) { d.dc = blocker }
}

// New builds a detector that reports runs above threshold lasting at least
// minLength samples.
func New(threshold int32, minLength uint32, opts ...Option) (*ObjectDetector, error) {
	if minLength == 0 {
		return nil, errors.Newf("detector minimum length must be at least one sample").
			Component("detector").
			Category(errors.CategoryValidation).
			Build()
	}

	d := &ObjectDetector{
		threshold: threshold,
		minLength: minLength,
		capacity:  DefaultCapacity,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.capacity <= 0 {
		return nil, errors.Newf("detector result capacity %d must be positive", d.capacity).
			Component("detector").
			Category(errors.CategoryValidation).
			Context("capacity", d.capacity).
			Build()
	}
	d.results = make([]DetectedObject, d.capacity)
	return d, nil
}

// Preinit seeds the internal DC filter with an estimate of the idle level so
// the first raw samples do not look like a rising edge. Without WithDCRemoval
// it does nothing.
func (d *ObjectDetector) Preinit(dc int32) {
	if d.dc != nil {
		d.dc.Preinit(dc)
	}
}

// Write processes filtered samples in order.
func (d *ObjectDetector) Write(samples []int16) {
	for _, s := range samples {
		d.process(int32(s))
	}
}

// WriteRaw processes unsigned samples, passing them through the internal DC
// filter first when one is configured.
func (d *ObjectDetector) WriteRaw(samples []uint16) {
	for _, s := range samples {
		v := int32(s)
		if d.dc != nil {
			v = d.dc.ProcessSample(v)
		}
		d.process(v)
	}
}

func (d *ObjectDetector) process(v int32) {
	ts := d.ts
	d.ts++

	if v > d.threshold {
		if !d.inObject {
			d.inObject = true
			d.current = DetectedObject{Start: ts, Peak: v, Power: int64(v), Source: d.source}
			return
		}
		d.current.Peak = max(d.current.Peak, v)
		d.current.Power += int64(v)
		return
	}

	if !d.inObject {
		return
	}
	d.inObject = false

	length := ts - d.current.Start
	if length < uint64(d.minLength) {
		return
	}
	d.current.Length = uint32(length)
	d.push(d.current)
}

func (d *ObjectDetector) push(o DetectedObject) {
	if d.count == len(d.results) {
		d.overflows++
		return
	}
	idx := (d.head + d.count) % len(d.results)
	d.results[idx] = o
	d.count++
}

// Pop removes and returns the oldest undrained object.
func (d *ObjectDetector) Pop() (DetectedObject, bool) {
	if d.count == 0 {
		return DetectedObject{}, false
	}
	o := d.results[d.head]
	d.head = (d.head + 1) % len(d.results)
	d.count--
	return o, true
}

// Len returns the number of undrained objects.
func (d *ObjectDetector) Len() int { return d.count }

// Timestamp returns the timestamp the next sample will get.
func (d *ObjectDetector) Timestamp() uint64 { return d.ts }

// InObject reports whether the last sample was above threshold.
func (d *ObjectDetector) InObject() bool { return d.inObject }

// Source returns the channel objects are tagged with.
func (d *ObjectDetector) Source() Channel { return d.source }

// Overflows returns how many objects were dropped because nobody drained them.
func (d *ObjectDetector) Overflows() uint64 { return d.overflows }
