package pipeline

import (
	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/detector"
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/filter"
)

// Filter stage names used in metrics labels.
const (
	stageCIC       = "cic"
	stageFIR       = "fir"
	stageDCBlocker = "dcblocker"
)

// ChainStats holds the cumulative counters of one channel chain.
type ChainStats struct {
	CICSamples        uint64 `json:"cic_samples"`
	FIRSamples        uint64 `json:"fir_samples"`
	CICOverflows      uint64 `json:"cic_overflows"`
	FIROverflows      uint64 `json:"fir_overflows"`
	CICSaturations    uint64 `json:"cic_saturations"`
	FIRSaturations    uint64 `json:"fir_saturations"`
	DCSaturations     uint64 `json:"dc_saturations"`
	DetectorOverflows uint64 `json:"detector_overflows"`
	Objects           uint64 `json:"objects"`
}

func (s ChainStats) sub(prev ChainStats) ChainStats {
	return ChainStats{
		CICSamples:        s.CICSamples - prev.CICSamples,
		FIRSamples:        s.FIRSamples - prev.FIRSamples,
		CICOverflows:      s.CICOverflows - prev.CICOverflows,
		FIROverflows:      s.FIROverflows - prev.FIROverflows,
		CICSaturations:    s.CICSaturations - prev.CICSaturations,
		FIRSaturations:    s.FIRSaturations - prev.FIRSaturations,
		DCSaturations:     s.DCSaturations - prev.DCSaturations,
		DetectorOverflows: s.DetectorOverflows - prev.DetectorOverflows,
		Objects:           s.Objects - prev.Objects,
	}
}

// ChannelChain is the filter chain of one sensor channel: CIC, FIR, DC
// blocker and object detector. Filtered samples wait in a pending buffer
// until the filter stage pairs them with the other channel.
type ChannelChain struct {
	channel  detector.Channel
	cic      *filter.CICDecimator
	fir      *filter.FIRDecimator
	dc       *filter.DCBlocker // nil when DC removal is disabled
	detector *detector.ObjectDetector

	// segment is the number of per-channel raw samples fed to the CIC per
	// pass, small enough that no stage output queue can fill up.
	segment int
	cicOut  []uint16
	firOut  []uint16
	out     []int16
	pending []int16

	cicSamples    uint64
	firSamples    uint64
	dcSaturations uint64
	objects       uint64
}

// NewChannelChain builds the chain of one channel from the filter and
// detector settings.
func NewChannelChain(channel detector.Channel, s *conf.Settings) (*ChannelChain, error) {
	f := s.Filter

	cic, err := filter.NewCICDecimator(f.CIC.Order, f.CIC.Decimation)
	if err != nil {
		return nil, err
	}

	coeffs, err := firCoefficients(f.FIR)
	if err != nil {
		return nil, err
	}
	fir, err := filter.NewFIRDecimator(coeffs, f.FIR.Decimation, filter.WithGainBits(f.FIR.GainBits))
	if err != nil {
		return nil, err
	}

	var dc *filter.DCBlocker
	if f.DCBlocker.Enabled {
		opts := []filter.Option{filter.WithBaseShift(f.DCBlocker.BaseShift)}
		if f.DCBlocker.Preinit < 0 {
			opts = append(opts, filter.WithAutoPreinit())
		}
		dc, err = filter.NewDCBlocker(f.DCBlocker.Pole, opts...)
		if err != nil {
			return nil, err
		}
		if f.DCBlocker.Preinit >= 0 {
			dc.Preinit(int32(f.DCBlocker.Preinit))
		}
	}

	det, err := detector.New(s.Detector.Threshold, s.Detector.MinLength,
		detector.WithSource(channel),
		detector.WithCapacity(s.Detector.Capacity))
	if err != nil {
		return nil, err
	}

	capacity := filter.DefaultOutputCapacity
	return &ChannelChain{
		channel:  channel,
		cic:      cic,
		fir:      fir,
		dc:       dc,
		detector: det,
		segment:  cic.Decimation() * capacity,
		cicOut:   make([]uint16, capacity),
		firOut:   make([]uint16, capacity),
		out:      make([]int16, capacity),
		pending:  make([]int16, 0, 4*capacity),
	}, nil
}

// firCoefficients picks the configured kernel, a designed one, or the
// built-in lowpass.
func firCoefficients(s conf.FIRSettings) ([]float64, error) {
	switch {
	case len(s.Coefficients) > 0:
		return s.Coefficients, nil
	case s.Taps > 0:
		coeffs, err := filter.DesignLowpass(s.Taps, s.Cutoff)
		if err != nil {
			return nil, errors.New(err).
				Component("pipeline").
				Category(errors.CategoryFilterDesign).
				Context("taps", s.Taps).
				Context("cutoff", s.Cutoff).
				Build()
		}
		return coeffs, nil
	default:
		return filter.DefaultLowpass(), nil
	}
}

// Channel returns the channel the chain filters.
func (c *ChannelChain) Channel() detector.Channel { return c.channel }

// CIC returns the first decimation stage.
func (c *ChannelChain) CIC() *filter.CICDecimator { return c.cic }

// FIR returns the lowpass decimation stage.
func (c *ChannelChain) FIR() *filter.FIRDecimator { return c.fir }

// DCBlocker returns the channel's DC blocker, nil when it is disabled.
func (c *ChannelChain) DCBlocker() *filter.DCBlocker { return c.dc }

// Detector returns the channel's object detector.
func (c *ChannelChain) Detector() *detector.ObjectDetector { return c.detector }

// Preinit seeds the DC blocker with the idle level of the FIR output.
func (c *ChannelChain) Preinit(dc int32) {
	if c.dc != nil {
		c.dc.Preinit(dc)
	}
	c.detector.Preinit(dc)
}

// Process filters the samples of this channel out of an interleaved block.
// The channel's samples sit at offset, offset+stride, and so on.
func (c *ChannelChain) Process(block []uint16, offset, stride int) {
	span := c.segment * stride
	for start := 0; start+offset < len(block); start += span {
		end := min(start+span, len(block))
		c.cic.Write(block[start+offset:end], stride)
		c.drain()
	}
}

func (c *ChannelChain) drain() {
	n := c.cic.Read(c.cicOut)
	if n == 0 {
		return
	}
	c.cicSamples += uint64(n)
	c.fir.Write(c.cicOut[:n], 1)

	n = c.fir.ReadUint16(c.firOut)
	if n == 0 {
		return
	}
	c.firSamples += uint64(n)

	out := c.out[:n]
	if c.dc != nil {
		c.dc.Process(c.firOut[:n], out)
	} else {
		for i, v := range c.firOut[:n] {
			if v > 1<<15-1 {
				v = 1<<15 - 1
				c.dcSaturations++
			}
			out[i] = int16(v)
		}
	}

	c.detector.Write(out)
	c.pending = append(c.pending, out...)
}

// Pending returns the number of filtered samples waiting to be taken.
func (c *ChannelChain) Pending() int { return len(c.pending) }

// Take moves the oldest pending samples into dst and returns how many were
// moved.
func (c *ChannelChain) Take(dst []int16) int {
	n := copy(dst, c.pending)
	c.Discard(n)
	return n
}

// Discard drops the n oldest pending samples.
func (c *ChannelChain) Discard(n int) {
	n = min(n, len(c.pending))
	rest := copy(c.pending, c.pending[n:])
	c.pending = c.pending[:rest]
}

// PopObject removes the oldest object the detector has closed.
func (c *ChannelChain) PopObject() (detector.DetectedObject, bool) {
	o, ok := c.detector.Pop()
	if ok {
		c.objects++
	}
	return o, ok
}

// Stats returns the chain's cumulative counters.
func (c *ChannelChain) Stats() ChainStats {
	s := ChainStats{
		CICSamples:        c.cicSamples,
		FIRSamples:        c.firSamples,
		CICOverflows:      c.cic.Overflows(),
		FIROverflows:      c.fir.Overflows(),
		CICSaturations:    c.cic.Saturations(),
		FIRSaturations:    c.fir.Saturations(),
		DCSaturations:     c.dcSaturations,
		DetectorOverflows: c.detector.Overflows(),
		Objects:           c.objects,
	}
	if c.dc != nil {
		s.DCSaturations += c.dc.Saturations()
	}
	return s
}
