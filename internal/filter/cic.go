// Package filter holds the streaming fixed-point stages of the signal chain:
// a CIC decimator, a decimating FIR with a symmetric-kernel fast path and a
// DC blocker. Every stage keeps its state between calls, so a stream may be
// fed in batches of any size with identical results.
package filter

import (
	"math/bits"

	"github.com/avlk/oppc-aux-sw/internal/errors"
)

const (
	MaxCICOrder      = 8
	MaxCICDecimation = 64
	// maxCICBitGrowth keeps a 16-bit input inside the signed 32-bit registers.
	maxCICBitGrowth = 15
)

// CICDecimator is an integrator-comb cascade of the given order with
// differential delay one. Integrator overflow wraps and is undone by the
// combs, so the registers rely on two's complement arithmetic.
type CICDecimator struct {
	order       int
	decimation  int
	integrators [MaxCICOrder]int32
	combs       [MaxCICOrder]int32
	counter     int
	gain        int64
	shift       uint
	out         outputQueue
	saturations uint64
}

// NewCICDecimator builds a decimator with the given order (M) and decimation
// factor (R). The cascade gain R^M is attenuated by its largest power of two
// on read.
func NewCICDecimator(order, decimation int, opts ...Option) (*CICDecimator, error) {
	if order < 1 || order > MaxCICOrder {
		return nil, errors.Newf("cic order %d out of range [1,%d]", order, MaxCICOrder).
			Component("filter").
			Category(errors.CategoryValidation).
			Context("order", order).
			Build()
	}
	if decimation < 2 || decimation > MaxCICDecimation {
		return nil, errors.Newf("cic decimation %d out of range [2,%d]", decimation, MaxCICDecimation).
			Component("filter").
			Category(errors.CategoryValidation).
			Context("decimation", decimation).
			Build()
	}

	gain := int64(1)
	for range order {
		gain *= int64(decimation)
	}
	if growth := bits.Len64(uint64(gain - 1)); growth > maxCICBitGrowth {
		return nil, errors.Newf("cic gain %d needs %d bits of growth, at most %d supported", gain, growth, maxCICBitGrowth).
			Component("filter").
			Category(errors.CategoryFilterDesign).
			Context("order", order).
			Context("decimation", decimation).
			Build()
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.outputCapacity < 1 {
		return nil, errors.Newf("invalid output capacity: %d", o.outputCapacity).
			Component("filter").
			Category(errors.CategoryValidation).
			Build()
	}

	return &CICDecimator{
		order:      order,
		decimation: decimation,
		counter:    decimation,
		gain:       gain,
		shift:      uint(bits.Len64(uint64(gain)) - 1),
		out:        newOutputQueue(o.outputCapacity),
	}, nil
}

// Order returns M.
func (c *CICDecimator) Order() int { return c.order }

// Decimation returns R.
func (c *CICDecimator) Decimation() int { return c.decimation }

// Gain returns the exact cascade gain R^M.
func (c *CICDecimator) Gain() int64 { return c.gain }

// AttenuateShift returns floor(log2(R^M)), the right shift applied on read.
func (c *CICDecimator) AttenuateShift() uint { return c.shift }

// ResidualGain returns the gain left after the attenuate shift, in [1,2).
func (c *CICDecimator) ResidualGain() float64 {
	return float64(c.gain) / float64(int64(1)<<c.shift)
}

// Write feeds every step'th sample of data, starting with data[0]. A step of
// two with data offset by one selects the second channel of an interleaved
// block.
func (c *CICDecimator) Write(data []uint16, step int) {
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(data); i += step {
		c.push(int32(data[i]))
	}
}

func (c *CICDecimator) push(x int32) {
	in := x
	for i := range c.order {
		c.integrators[i] += in
		in = c.integrators[i]
	}

	c.counter--
	if c.counter > 0 {
		return
	}
	c.counter = c.decimation

	for i := range c.order {
		prev := in
		in -= c.combs[i]
		c.combs[i] = prev
	}
	c.out.push(in)
}

// Len returns the number of outputs waiting to be read.
func (c *CICDecimator) Len() int { return c.out.count }

// Read moves up to len(out) outputs into out, attenuated and clipped to the
// uint16 range, and returns how many were written.
func (c *CICDecimator) Read(out []uint16) int {
	n := min(len(out), c.out.count)
	for i := range n {
		v, clipped := saturateUint16(c.out.pop() >> c.shift)
		if clipped {
			c.saturations++
		}
		out[i] = v
	}
	return n
}

// Overflows returns how many outputs were dropped because nobody read them.
func (c *CICDecimator) Overflows() uint64 { return c.out.overflows }

// Saturations returns how many outputs were clipped on read.
func (c *CICDecimator) Saturations() uint64 { return c.saturations }

// Reset clears the registers, pending outputs and counters.
func (c *CICDecimator) Reset() {
	c.integrators = [MaxCICOrder]int32{}
	c.combs = [MaxCICOrder]int32{}
	c.counter = c.decimation
	c.out.reset()
	c.saturations = 0
}
