package filter

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/window"

	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// defaultLowpass is the second-stage kernel of the reference build: 48 kHz
// input, 5 kHz passband, 8 kHz stopband, 75 dB attenuation. Followed by a
// decimation of three it yields a 16 kHz stream.
var defaultLowpass = [...]float64{
	-0.000393, -0.000876, -0.001113, -0.000412,
	0.001640, 0.004554, 0.006716, 0.006048,
	0.001485, -0.005606, -0.011269, -0.010823,
	-0.002123, 0.011747, 0.022629, 0.021264,
	0.003557, -0.024493, -0.046941, -0.044427,
	-0.004546, 0.069449, 0.157022, 0.227790,
	0.254931, 0.227790, 0.157022, 0.069449,
	-0.004546, -0.044427, -0.046941, -0.024493,
	0.003557, 0.021264, 0.022629, 0.011747,
	-0.002123, -0.010823, -0.011269, -0.005606,
	0.001485, 0.006048, 0.006716, 0.004554,
	0.001640, -0.000412, -0.001113, -0.000876,
	-0.000393,
}

// DefaultLowpass returns a copy of the reference 49-tap lowpass kernel.
func DefaultLowpass() []float64 {
	return append([]float64(nil), defaultLowpass[:]...)
}

// DesignLowpass returns a Hamming-windowed sinc lowpass kernel with unity DC
// gain. cutoff is normalized to the input sample rate and must lie in
// (0, 0.5). The kernel is exactly symmetric so the filter takes the
// paired-tap path.
func DesignLowpass(taps int, cutoff float64) ([]float64, error) {
	if taps < 1 || taps > MaxFIRTaps {
		return nil, errors.Newf("lowpass length %d out of range [1,%d]", taps, MaxFIRTaps).
			Component("filter").
			Category(errors.CategoryValidation).
			Context("taps", taps).
			Build()
	}
	if !(cutoff > 0 && cutoff < 0.5) {
		return nil, errors.Newf("lowpass cutoff %v must be in (0,0.5)", cutoff).
			Component("filter").
			Category(errors.CategoryValidation).
			Context("cutoff", cutoff).
			Build()
	}

	w, err := window.Hamming(taps)
	if err != nil {
		return nil, errors.New(err).
			Component("filter").
			Category(errors.CategoryFilterDesign).
			Context("taps", taps).
			Build()
	}

	h := make([]float64, taps)
	center := float64(taps-1) / 2
	var sum float64
	for i := 0; i <= (taps-1)/2; i++ {
		x := float64(i) - center
		v := 2 * cutoff
		if x != 0 {
			v = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
		}
		v *= w[i]
		h[i] = v
		h[taps-1-i] = v
		sum += v
		if i != taps-1-i {
			sum += v
		}
	}

	if sum == 0 {
		return nil, errors.Newf("lowpass kernel has zero dc gain").
			Component("filter").
			Category(errors.CategoryFilterDesign).
			Build()
	}
	for i := range h {
		h[i] /= sum
	}
	return h, nil
}
