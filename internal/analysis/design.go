package analysis

import (
	"fmt"
	"io"
	"strings"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/detector"
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/pipeline"
)

// Design describes the filter chain and correlator geometry that settings
// produce. Sample counts are at the output rate.
type Design struct {
	SampleRate  int     `json:"sample_rate"`
	ChannelRate float64 `json:"channel_rate"`
	OutputRate  float64 `json:"output_rate"`

	CICOrder      int     `json:"cic_order"`
	CICDecimation int     `json:"cic_decimation"`
	CICGain       int64   `json:"cic_gain"`
	CICShift      uint    `json:"cic_shift"`
	CICResidual   float64 `json:"cic_residual"`

	FIRTaps         int       `json:"fir_taps"`
	FIRDecimation   int       `json:"fir_decimation"`
	FIRGainBits     int       `json:"fir_gain_bits"`
	FIRSymmetric    bool      `json:"fir_symmetric"`
	FIRCoefficients []int32   `json:"fir_coefficients"`
	FIRDesign       []float64 `json:"fir_design"`

	DCBlocker bool    `json:"dc_blocker"`
	DCPole    float64 `json:"dc_pole"`

	BufferA   int `json:"buffer_a"`
	BufferB   int `json:"buffer_b"`
	OffsetMin int `json:"offset_min"`
	OffsetMax int `json:"offset_max"`
	BinWidth  int `json:"bin_width"`
	Interval  int `json:"interval"`
	MaxDelay  int `json:"max_delay"`
}

// NewDesign builds one channel chain from settings and reads its geometry
// back.
func NewDesign(settings *conf.Settings) (*Design, error) {
	chain, err := pipeline.NewChannelChain(detector.ChannelA, settings)
	if err != nil {
		return nil, err
	}
	cic, fir := chain.CIC(), chain.FIR()
	c := settings.Correlator

	d := &Design{
		SampleRate:      settings.Acquisition.SampleRate,
		ChannelRate:     settings.ChannelRate(),
		OutputRate:      settings.OutputRate(),
		CICOrder:        cic.Order(),
		CICDecimation:   cic.Decimation(),
		CICGain:         cic.Gain(),
		CICShift:        cic.AttenuateShift(),
		CICResidual:     cic.ResidualGain(),
		FIRTaps:         fir.Taps(),
		FIRDecimation:   fir.Decimation(),
		FIRGainBits:     fir.GainBits(),
		FIRSymmetric:    fir.Symmetric(),
		FIRCoefficients: fir.Coefficients(),
		FIRDesign:       fir.Design(),
		BufferA:         settings.Samples(c.BufferA),
		BufferB:         settings.Samples(c.BufferB),
		OffsetMin:       settings.Samples(c.OffsetMin),
		OffsetMax:       settings.Samples(c.OffsetMax),
		BinWidth:        settings.Samples(c.BinWidth),
		Interval:        settings.Samples(c.Interval),
		MaxDelay:        settings.Samples(settings.Events.MaxDelay),
	}
	if dc := chain.DCBlocker(); dc != nil {
		d.DCBlocker = true
		d.DCPole = dc.Pole()
	}
	return d, nil
}

// WriteDesign prints d in a human readable layout.
func WriteDesign(w io.Writer, d *Design) error {
	var b strings.Builder
	fmt.Fprintf(&b, "acquisition  %d Hz interleaved, %.2f Hz per channel\n", d.SampleRate, d.ChannelRate)
	fmt.Fprintf(&b, "cic          order %d, decimation %d, gain %d, shift %d, residual gain %.4f\n",
		d.CICOrder, d.CICDecimation, d.CICGain, d.CICShift, d.CICResidual)
	fmt.Fprintf(&b, "fir          %d taps, decimation %d, gain bits %d, symmetric %t\n",
		d.FIRTaps, d.FIRDecimation, d.FIRGainBits, d.FIRSymmetric)
	if d.DCBlocker {
		fmt.Fprintf(&b, "dc blocker   pole %.6f\n", d.DCPole)
	} else {
		b.WriteString("dc blocker   disabled\n")
	}
	fmt.Fprintf(&b, "output       %.2f Hz per channel\n", d.OutputRate)
	fmt.Fprintf(&b, "correlator   buffers %d/%d, offsets [%d,%d), bin width %d, interval %d samples\n",
		d.BufferA, d.BufferB, d.OffsetMin, d.OffsetMax, d.BinWidth, d.Interval)
	fmt.Fprintf(&b, "events       max delay %d samples\n", d.MaxDelay)
	b.WriteString("coefficients\n")
	for i, q := range d.FIRCoefficients {
		fmt.Fprintf(&b, "  %3d  %8d  % .6f\n", i, q, d.FIRDesign[i])
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("operation", "write_design").
			Build()
	}
	return nil
}
