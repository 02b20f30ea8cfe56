package filter

import (
	"math"

	"github.com/avlk/oppc-aux-sw/internal/errors"
)

const (
	DefaultBaseShift = 15
	MinBaseShift     = 8
	MaxBaseShift     = 24
)

// DCBlocker removes the DC component with y[n] = x[n] - x[n-1] + p*y[n-1].
// It runs in fixed point with the rounding error of each output kept in the
// accumulator, so the truncation noise is shaped away from DC instead of
// building up an offset.
type DCBlocker struct {
	shift       uint
	coeff       int64 // (1 - pole) * 2^shift
	acc         int64
	prevX       int64
	prevY       int64
	seeded      bool
	autoPreinit bool
	saturations uint64
}

// NewDCBlocker builds a blocker for the given pole, 0 < pole < 1. Poles close
// to one give a narrow notch around DC and a slow settling time.
func NewDCBlocker(pole float64, opts ...Option) (*DCBlocker, error) {
	if !(pole > 0 && pole < 1) {
		return nil, errors.Newf("dc blocker pole %v must be in (0,1)", pole).
			Component("filter").
			Category(errors.CategoryValidation).
			Context("pole", pole).
			Build()
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.baseShift < MinBaseShift || o.baseShift > MaxBaseShift {
		return nil, errors.Newf("dc blocker base shift %d out of range [%d,%d]", o.baseShift, MinBaseShift, MaxBaseShift).
			Component("filter").
			Category(errors.CategoryValidation).
			Context("base_shift", o.baseShift).
			Build()
	}

	coeff := int64(math.Round((1 - pole) * math.Ldexp(1, o.baseShift)))
	if coeff < 1 {
		return nil, errors.Newf("dc blocker pole %v rounds to 1 at base shift %d", pole, o.baseShift).
			Component("filter").
			Category(errors.CategoryFilterDesign).
			Context("pole", pole).
			Build()
	}

	return &DCBlocker{
		shift:       uint(o.baseShift),
		coeff:       coeff,
		autoPreinit: o.autoPreinit,
	}, nil
}

// Pole returns the effective pole after quantization.
func (d *DCBlocker) Pole() float64 {
	return 1 - float64(d.coeff)/math.Ldexp(1, int(d.shift))
}

// Preinit loads dc as the previous input so a signal sitting at dc produces
// zero output from the first sample.
func (d *DCBlocker) Preinit(dc int32) {
	d.prevX = int64(dc) << d.shift
	d.acc = 0
	d.prevY = 0
	d.seeded = true
}

// ProcessSample filters one sample.
func (d *DCBlocker) ProcessSample(x int32) int32 {
	if d.autoPreinit && !d.seeded {
		d.Preinit(x)
	}
	d.seeded = true

	d.acc -= d.prevX
	d.prevX = int64(x) << d.shift
	d.acc += d.prevX
	d.acc -= d.coeff * d.prevY
	d.prevY = d.acc >> d.shift
	return int32(d.prevY)
}

// Process filters in into out, clipping to int16, and returns the number of
// samples written: min(len(in), len(out)).
func (d *DCBlocker) Process(in []uint16, out []int16) int {
	n := min(len(in), len(out))
	for i := range n {
		v, clipped := saturateInt16(int64(d.ProcessSample(int32(in[i]))))
		if clipped {
			d.saturations++
		}
		out[i] = v
	}
	return n
}

// Saturations returns how many outputs Process clipped.
func (d *DCBlocker) Saturations() uint64 { return d.saturations }

// Reset clears the registers. An auto-preinit blocker seeds itself again
// from the next sample.
func (d *DCBlocker) Reset() {
	d.acc = 0
	d.prevX = 0
	d.prevY = 0
	d.seeded = false
	d.saturations = 0
}
