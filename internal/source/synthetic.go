package source

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// SyntheticConfig describes a periodic pulse train seen first by channel A
// and Delay samples later by channel B. Times are in raw per-channel
// samples.
type SyntheticConfig struct {
	BlockLength int     // interleaved samples per block
	SampleRate  int     // interleaved samples per second, used for pacing
	Baseline    uint16  // idle level
	Amplitude   uint16  // pulse height above the baseline
	Noise       float64 // gaussian noise deviation
	Period      int
	Width       int
	Delay       int
	Samples     uint64 // per-channel samples to produce, zero runs until cancelled
	Realtime    bool   // pace blocks at SampleRate and drop on a full pool
	Seed        uint64
}

// Synthetic generates SyntheticConfig pulse trains block by block.
type Synthetic struct {
	cfg SyntheticConfig
	rng *rand.Rand
	t   uint64
}

// NewSynthetic validates cfg and builds the generator.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	var problem string
	switch {
	case cfg.BlockLength <= 0 || cfg.BlockLength%conf.Channels != 0:
		problem = "block length must be a positive multiple of the channel count"
	case cfg.Period <= 0:
		problem = "pulse period must be positive"
	case cfg.Width < 0 || cfg.Width > cfg.Period:
		problem = "pulse width must be within the period"
	case cfg.Delay < 0:
		problem = "channel delay must not be negative"
	case cfg.Noise < 0:
		problem = "noise deviation must not be negative"
	case int(cfg.Baseline)+int(cfg.Amplitude) > MaxSample:
		problem = "baseline plus amplitude exceeds the 13-bit sample range"
	}
	if problem != "" {
		return nil, errors.Newf("invalid synthetic source: %s", problem).
			Component("source").
			Category(errors.CategoryValidation).
			Context("block_length", cfg.BlockLength).
			Context("period", cfg.Period).
			Context("width", cfg.Width).
			Context("delay", cfg.Delay).
			Build()
	}

	return &Synthetic{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Config returns the generator settings.
func (s *Synthetic) Config() SyntheticConfig { return s.cfg }

// Position returns the per-channel timestamp of the next sample.
func (s *Synthetic) Position() uint64 { return s.t }

// Level returns the noiseless level of a channel that sees the pulse train
// lag samples late.
func (s *Synthetic) Level(t uint64, lag int) uint16 {
	if t < uint64(lag) {
		return s.cfg.Baseline
	}
	if (t-uint64(lag))%uint64(s.cfg.Period) < uint64(s.cfg.Width) {
		return s.cfg.Baseline + s.cfg.Amplitude
	}
	return s.cfg.Baseline
}

// Fill writes the next interleaved samples into block and returns how many
// per-channel samples it produced.
func (s *Synthetic) Fill(block []uint16) int {
	n := len(block) / conf.Channels
	for i := range n {
		block[2*i] = s.noisy(s.Level(s.t, 0))
		block[2*i+1] = s.noisy(s.Level(s.t, s.cfg.Delay))
		s.t++
	}
	return n
}

func (s *Synthetic) noisy(v uint16) uint16 {
	if s.cfg.Noise == 0 {
		return v
	}
	x := math.Round(float64(v) + s.rng.NormFloat64()*s.cfg.Noise)
	return uint16(min(max(x, 0), MaxSample))
}

// Run feeds blocks into sink until Samples are produced or ctx ends.
// Cancellation is a normal stop.
// Without Realtime every block is retried until the sink accepts it, so
// the chain sees an unbroken stream regardless of scheduling.
func (s *Synthetic) Run(ctx context.Context, sink Sink) (Stats, error) {
	block := make([]uint16, s.cfg.BlockLength)
	d := newDeliverer(sink, !s.cfg.Realtime)
	ticker, tick := pacer(s.cfg.Realtime, s.cfg.BlockLength, s.cfg.SampleRate)
	if ticker != nil {
		defer ticker.Stop()
	}

	for s.cfg.Samples == 0 || s.t < s.cfg.Samples {
		if wait(ctx, tick) != nil {
			break
		}
		s.Fill(block)
		if d.deliver(ctx, block) != nil {
			break
		}
	}
	return d.stats, nil
}
