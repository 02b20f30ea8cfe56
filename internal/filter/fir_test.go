package filter

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/cwbudde/algo-dsp/dsp/filter/fir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 17-tap Hamming windowed lowpass, fs 1000 Hz, passband 200 Hz.
var hamming17 = []float64{
	-0.001873, 0.003077, 0.010843, -0.000000,
	-0.040902, -0.044693, 0.081012, 0.292371,
	0.400330,
	0.292371, 0.081012, -0.044693, -0.040902,
	-0.000000, 0.010843, 0.003077, -0.001873,
}

const stepLevel = 1024

// Step response of hamming17 at stepLevel after quantization to 12 bits.
var hamming17Step = []int32{
	-2, 1, 12, 12, -30, -76, 7, 307, 717,
	1016, 1099, 1053, 1011, 1011, 1022, 1026, 1024,
}

func perturbed(coeffs []float64) []float64 {
	c := append([]float64(nil), coeffs...)
	c[0] += 0.001
	c[1] -= 0.001
	return c
}

func TestNewFIRDecimatorValidation(t *testing.T) {
	tests := []struct {
		name       string
		coeffs     []float64
		decimation int
		opts       []Option
	}{
		{"empty kernel", nil, 1, nil},
		{"kernel longer than history", make([]float64, MaxFIRTaps+1), 1, nil},
		{"zero decimation", hamming17, 0, nil},
		{"zero gain bits", hamming17, 1, []Option{WithGainBits(0)}},
		{"too many gain bits", hamming17, 1, []Option{WithGainBits(MaxGainBits + 1)}},
		{"accumulator overflow", []float64{8, -8}, 1, nil},
		{"zero output capacity", hamming17, 1, []Option{WithOutputCapacity(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFIRDecimator(tt.coeffs, tt.decimation, tt.opts...)
			require.Error(t, err)
		})
	}
}

func TestFIRQuantization(t *testing.T) {
	f, err := NewFIRDecimator(hamming17, 1)
	require.NoError(t, err)

	assert.Equal(t, []int32{-8, 13, 44, 0, -168, -183, 332, 1198, 1640, 1198, 332, -183, -168, 0, 44, 13, -8}, f.Coefficients())
	assert.Equal(t, DefaultGainBits, f.GainBits())
	assert.Equal(t, hamming17, f.Design())
}

func TestFIRStepResponse(t *testing.T) {
	tests := []struct {
		name      string
		coeffs    []float64
		symmetric bool
	}{
		{"symmetric kernel", hamming17, true},
		{"perturbed kernel", perturbed(hamming17), false},
	}

	// Offsets move the history write position before the step arrives; 127
	// and 128 make the step straddle and then restart the history ring.
	offsets := []int{0, 10, HistorySize/2 - 11, HistorySize - 1, HistorySize}

	for _, tt := range tests {
		reference := floatStepResponse(tt.coeffs)
		for _, offset := range offsets {
			t.Run(fmt.Sprintf("%s/offset_%d", tt.name, offset), func(t *testing.T) {
				f, err := NewFIRDecimator(tt.coeffs, 1)
				require.NoError(t, err)
				assert.Equal(t, tt.symmetric, f.Symmetric())

				out := stepResponse(t, f, offset)
				require.Len(t, out, len(reference))
				for n := range out {
					assert.InDelta(t, reference[n], float64(out[n]), 1.0, "offset %d sample %d", offset, n)
				}
				if tt.symmetric {
					assert.Equal(t, hamming17Step, out, "offset %d", offset)
				}
			})
		}
	}
}

func TestFIRPathsAgree(t *testing.T) {
	even := append([]float64(nil), hamming17[:8]...)
	for i := 7; i >= 0; i-- {
		even = append(even, hamming17[i])
	}

	for _, coeffs := range [][]float64{hamming17, DefaultLowpass(), even} {
		sym, err := NewFIRDecimator(coeffs, 3, WithOutputCapacity(1024))
		require.NoError(t, err)
		require.True(t, sym.Symmetric())

		gen, err := NewFIRDecimator(coeffs, 3, WithOutputCapacity(1024))
		require.NoError(t, err)
		gen.symmetric = false

		rng := rand.New(rand.NewPCG(3, uint64(len(coeffs))))
		data := make([]uint16, 900)
		for i := range data {
			data[i] = uint16(rng.IntN(1 << 13))
		}
		sym.Write(data, 1)
		gen.Write(data, 1)

		a := make([]int32, sym.Len())
		b := make([]int32, gen.Len())
		require.Equal(t, len(a), len(b))
		sym.Read(a)
		gen.Read(b)
		assert.Equal(t, b, a, "%d taps", len(coeffs))
	}
}

func TestFIRInterleaved(t *testing.T) {
	f, err := NewFIRDecimator(hamming17, 1)
	require.NoError(t, err)

	data := make([]uint16, 66)
	for n := 16; n < 33; n++ {
		data[n*2+1] = stepLevel
	}
	f.Write(data[1:], 2)

	require.Equal(t, 33, f.Len())
	out := make([]int32, 33)
	require.Equal(t, 33, f.Read(out))
	assert.Equal(t, make([]int32, 16), out[:16])
	assert.Equal(t, hamming17Step, out[16:])
}

func TestFIRDecimate(t *testing.T) {
	f, err := NewFIRDecimator(hamming17, 4)
	require.NoError(t, err)

	f.Write(make([]uint16, 16), 1)
	require.Equal(t, 4, f.Len())
	f.Read(make([]int32, 4))

	ones := make([]uint16, 32)
	for i := range ones {
		ones[i] = stepLevel
	}
	f.Write(ones, 1)
	f.Write(ones, 1)

	require.Equal(t, 16, f.Len())
	out := make([]int32, 16)
	require.Equal(t, 16, f.Read(out))

	// Every fourth input produces an output, the fourth one first.
	assert.Equal(t, []int32{hamming17Step[3], hamming17Step[7], hamming17Step[11], hamming17Step[15]}, out[:4])
	for _, v := range out[4:] {
		assert.Equal(t, int32(stepLevel), v)
	}
}

func TestFIRReadUint16Saturates(t *testing.T) {
	f, err := NewFIRDecimator(hamming17, 1)
	require.NoError(t, err)

	f.Write(make([]uint16, 16), 1)
	f.Read(make([]int32, 16))
	f.Write([]uint16{stepLevel}, 1)

	out := make([]uint16, 1)
	require.Equal(t, 1, f.ReadUint16(out))
	assert.Zero(t, out[0], "negative output clips to zero")
	assert.Equal(t, uint64(1), f.Saturations())
}

func TestFIROutputOverflowAndReset(t *testing.T) {
	f, err := NewFIRDecimator(hamming17, 1, WithOutputCapacity(4))
	require.NoError(t, err)

	f.Write(make([]uint16, 10), 1)
	assert.Equal(t, 4, f.Len())
	assert.Equal(t, uint64(6), f.Overflows())

	f.Reset()
	assert.Zero(t, f.Len())
	assert.Zero(t, f.Overflows())
}

// stepResponse primes the history with offset single zeros and sixteen more
// zeros, then returns the outputs for seventeen samples at stepLevel.
func stepResponse(t *testing.T, f *FIRDecimator, offset int) []int32 {
	t.Helper()

	drain := make([]int32, HistorySize)
	for range offset {
		f.Write([]uint16{0}, 1)
		f.Read(drain)
	}
	f.Write(make([]uint16, 16), 1)
	f.Read(drain)

	step := make([]uint16, 17)
	for i := range step {
		step[i] = stepLevel
	}
	f.Write(step, 1)
	require.Equal(t, 17, f.Len())

	out := make([]int32, 17)
	require.Equal(t, 17, f.Read(out))
	return out
}

// floatStepResponse runs the unquantized kernel through a floating-point FIR.
func floatStepResponse(coeffs []float64) []float64 {
	ref := fir.New(coeffs)
	for range 16 {
		ref.ProcessSample(0)
	}
	out := make([]float64, 17)
	for i := range out {
		out[i] = ref.ProcessSample(stepLevel)
	}
	return out
}
