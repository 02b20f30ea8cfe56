package filter

import (
	"math"

	"github.com/avlk/oppc-aux-sw/internal/errors"
)

const (
	// HistorySize is the length of the FIR sample history ring and therefore
	// the longest supported kernel.
	HistorySize     = 128
	MaxFIRTaps      = HistorySize
	DefaultGainBits = 12
	MaxGainBits     = 24

	historyMask = HistorySize - 1
)

// FIRDecimator is a fixed-point FIR filter followed by decimation. Kernels
// that read the same forwards and backwards use a paired-tap path that needs
// half the multiplies and gives bit-identical results.
type FIRDecimator struct {
	taps        []float64
	coeffs      []int32
	gainBits    uint
	symmetric   bool
	history     [HistorySize]int32
	pos         int
	decimation  int
	counter     int
	out         outputQueue
	saturations uint64
}

// NewFIRDecimator quantizes coeffs to round(c * 2^gainBits) and keeps one
// output every decimation input samples.
func NewFIRDecimator(coeffs []float64, decimation int, opts ...Option) (*FIRDecimator, error) {
	if len(coeffs) == 0 || len(coeffs) > MaxFIRTaps {
		return nil, errors.Newf("fir kernel length %d out of range [1,%d]", len(coeffs), MaxFIRTaps).
			Component("filter").
			Category(errors.CategoryValidation).
			Context("taps", len(coeffs)).
			Build()
	}
	if decimation < 1 {
		return nil, errors.Newf("invalid fir decimation: %d", decimation).
			Component("filter").
			Category(errors.CategoryValidation).
			Context("decimation", decimation).
			Build()
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.gainBits < 1 || o.gainBits > MaxGainBits {
		return nil, errors.Newf("fir gain bits %d out of range [1,%d]", o.gainBits, MaxGainBits).
			Component("filter").
			Category(errors.CategoryValidation).
			Context("gain_bits", o.gainBits).
			Build()
	}
	if o.outputCapacity < 1 {
		return nil, errors.Newf("invalid output capacity: %d", o.outputCapacity).
			Component("filter").
			Category(errors.CategoryValidation).
			Build()
	}

	scale := math.Ldexp(1, o.gainBits)
	quantized := make([]int32, len(coeffs))
	var absSum int64
	for i, c := range coeffs {
		q := math.Round(c * scale)
		if math.IsNaN(q) || math.Abs(q) > math.MaxInt32 {
			return nil, errors.Newf("fir coefficient %d does not fit the fixed-point range", i).
				Component("filter").
				Category(errors.CategoryFilterDesign).
				Context("coefficient", c).
				Build()
		}
		quantized[i] = int32(q)
		absSum += int64(math.Abs(q))
	}

	// The accumulator is 32 bits wide; a full-scale input must not overflow it.
	if absSum*0xffff > math.MaxInt32 {
		return nil, errors.Newf("fir kernel gain too large for 32-bit accumulation at %d gain bits", o.gainBits).
			Component("filter").
			Category(errors.CategoryFilterDesign).
			Context("abs_sum", absSum).
			Build()
	}

	return &FIRDecimator{
		taps:       append([]float64(nil), coeffs...),
		coeffs:     quantized,
		gainBits:   uint(o.gainBits),
		symmetric:  isPalindrome(quantized),
		decimation: decimation,
		counter:    decimation,
		out:        newOutputQueue(o.outputCapacity),
	}, nil
}

func isPalindrome(c []int32) bool {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		if c[i] != c[j] {
			return false
		}
	}
	return true
}

// Symmetric reports whether the paired-tap path is used.
func (f *FIRDecimator) Symmetric() bool { return f.symmetric }

// Taps returns the kernel length.
func (f *FIRDecimator) Taps() int { return len(f.coeffs) }

// Decimation returns the decimation factor.
func (f *FIRDecimator) Decimation() int { return f.decimation }

// GainBits returns the coefficient scale exponent.
func (f *FIRDecimator) GainBits() int { return int(f.gainBits) }

// Coefficients returns a copy of the quantized kernel.
func (f *FIRDecimator) Coefficients() []int32 {
	return append([]int32(nil), f.coeffs...)
}

// Design returns a copy of the floating-point kernel the filter was built from.
func (f *FIRDecimator) Design() []float64 {
	return append([]float64(nil), f.taps...)
}

// Write feeds every step'th sample of data, starting with data[0].
func (f *FIRDecimator) Write(data []uint16, step int) {
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(data); i += step {
		f.push(int32(data[i]))
	}
}

func (f *FIRDecimator) push(x int32) {
	f.history[f.pos] = x
	f.pos = (f.pos + 1) & historyMask

	f.counter--
	if f.counter > 0 {
		return
	}
	f.counter = f.decimation

	var acc int32
	if f.symmetric {
		acc = f.convolveSymmetric()
	} else {
		acc = f.convolve()
	}
	f.out.push(acc >> f.gainBits)
}

// convolve computes sum(coeff[n] * x[-1-n]) where x[-1] is the newest sample.
func (f *FIRDecimator) convolve() int32 {
	var acc int32
	newest := f.pos - 1
	for n, c := range f.coeffs {
		acc += c * f.history[(newest-n)&historyMask]
	}
	return acc
}

// convolveSymmetric pairs tap n with tap len-1-n, which share a coefficient.
func (f *FIRDecimator) convolveSymmetric() int32 {
	var acc int32
	taps := len(f.coeffs)
	half := taps / 2
	for n := range half {
		x0 := f.history[(f.pos-1-n)&historyMask]
		x1 := f.history[(f.pos-taps+n)&historyMask]
		acc += f.coeffs[n] * (x0 + x1)
	}
	if taps%2 == 1 {
		acc += f.coeffs[half] * f.history[(f.pos-1-half)&historyMask]
	}
	return acc
}

// Len returns the number of outputs waiting to be read.
func (f *FIRDecimator) Len() int { return f.out.count }

// Read moves up to len(out) outputs into out and returns how many were written.
func (f *FIRDecimator) Read(out []int32) int {
	n := min(len(out), f.out.count)
	for i := range n {
		out[i] = f.out.pop()
	}
	return n
}

// ReadUint16 is Read with outputs clipped to the uint16 range.
func (f *FIRDecimator) ReadUint16(out []uint16) int {
	n := min(len(out), f.out.count)
	for i := range n {
		v, clipped := saturateUint16(f.out.pop())
		if clipped {
			f.saturations++
		}
		out[i] = v
	}
	return n
}

// Overflows returns how many outputs were dropped because nobody read them.
func (f *FIRDecimator) Overflows() uint64 { return f.out.overflows }

// Saturations returns how many outputs were clipped by ReadUint16.
func (f *FIRDecimator) Saturations() uint64 { return f.saturations }

// Reset clears the history, pending outputs and counters.
func (f *FIRDecimator) Reset() {
	f.history = [HistorySize]int32{}
	f.pos = 0
	f.counter = f.decimation
	f.out.reset()
	f.saturations = 0
}
