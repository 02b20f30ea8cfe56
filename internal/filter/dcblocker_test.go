package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDCBlockerValidation(t *testing.T) {
	tests := []struct {
		name string
		pole float64
		opts []Option
	}{
		{"zero pole", 0, nil},
		{"unit pole", 1, nil},
		{"nan pole", math.NaN(), nil},
		{"shift too small", 0.99, []Option{WithBaseShift(MinBaseShift - 1)}},
		{"shift too large", 0.99, []Option{WithBaseShift(MaxBaseShift + 1)}},
		{"pole rounds to one", 0.99999, []Option{WithBaseShift(MinBaseShift)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDCBlocker(tt.pole, tt.opts...)
			require.Error(t, err)
		})
	}
}

func TestDCBlockerPole(t *testing.T) {
	d, err := NewDCBlocker(0.995)
	require.NoError(t, err)
	assert.InDelta(t, 0.995, d.Pole(), 1e-4)
}

func TestDCBlockerConvergesToZero(t *testing.T) {
	d, err := NewDCBlocker(0.995)
	require.NoError(t, err)

	in := make([]uint16, 5000)
	for i := range in {
		in[i] = 1000
	}
	out := make([]int16, len(in))
	require.Equal(t, len(in), d.Process(in, out))

	assert.Equal(t, int16(1000), out[0], "unseeded filter passes the first step")
	for i := 1; i < 200; i++ {
		assert.LessOrEqual(t, out[i], out[i-1], "decay must be monotonic at %d", i)
	}
	for _, v := range out[len(out)-100:] {
		assert.Zero(t, v)
	}
}

func TestDCBlockerPreinit(t *testing.T) {
	d, err := NewDCBlocker(0.995)
	require.NoError(t, err)
	d.Preinit(1000)

	in := make([]uint16, 64)
	for i := range in {
		in[i] = 1000
	}
	out := make([]int16, len(in))
	d.Process(in, out)
	assert.Equal(t, make([]int16, len(in)), out)

	// A step of 100 above the seeded level passes through and then decays.
	// Truncation holds some outputs for a sample, so the decay is checked
	// as non-increasing plus an overall drop near 0.995^50.
	assert.Equal(t, int32(100), d.ProcessSample(1100))
	prev := int32(100)
	for range 50 {
		v := d.ProcessSample(1100)
		assert.LessOrEqual(t, v, prev)
		assert.Positive(t, v)
		prev = v
	}
	assert.Less(t, prev, int32(80))
	assert.Greater(t, prev, int32(70))
}

func TestDCBlockerAutoPreinit(t *testing.T) {
	d, err := NewDCBlocker(0.995, WithAutoPreinit())
	require.NoError(t, err)

	in := []uint16{2048, 2048, 2048, 2048}
	out := make([]int16, len(in))
	d.Process(in, out)
	assert.Equal(t, []int16{0, 0, 0, 0}, out)

	d.Reset()
	assert.Equal(t, int32(0), d.ProcessSample(300), "reset seeds again from the next sample")
}

func TestDCBlockerSaturates(t *testing.T) {
	d, err := NewDCBlocker(0.995)
	require.NoError(t, err)

	out := make([]int16, 1)
	d.Process([]uint16{60000}, out)

	assert.Equal(t, int16(math.MaxInt16), out[0])
	assert.Equal(t, uint64(1), d.Saturations())
}
