package analysis

import (
	"context"
	"math"
	"time"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/source"
)

// SimulateOptions describes the synthetic pulse train. Times are converted
// to raw per-channel samples at the configured acquisition rate.
type SimulateOptions struct {
	Delay     time.Duration
	Period    time.Duration
	Width     time.Duration
	Baseline  uint16
	Amplitude uint16
	Noise     float64
	Duration  time.Duration // zero runs until cancelled
	Realtime  bool
	Seed      uint64
	Record    string // optional WAV file receiving every delivered block
}

// rawSamples converts d to raw per-channel samples.
func rawSamples(settings *conf.Settings, d time.Duration) int {
	return int(math.Round(d.Seconds() * settings.ChannelRate()))
}

// SyntheticConfig maps sim onto a source configuration for settings.
func SyntheticConfig(settings *conf.Settings, sim SimulateOptions) source.SyntheticConfig {
	return source.SyntheticConfig{
		BlockLength: settings.Acquisition.BlockLength,
		SampleRate:  settings.Acquisition.SampleRate,
		Baseline:    sim.Baseline,
		Amplitude:   sim.Amplitude,
		Noise:       sim.Noise,
		Period:      rawSamples(settings, sim.Period),
		Width:       rawSamples(settings, sim.Width),
		Delay:       rawSamples(settings, sim.Delay),
		Samples:     uint64(max(rawSamples(settings, sim.Duration), 0)),
		Realtime:    sim.Realtime,
		Seed:        sim.Seed,
	}
}

// Simulate runs the signal chain against a synthetic pulse train.
func Simulate(ctx context.Context, settings *conf.Settings, sim SimulateOptions, opts Options) (*Report, error) {
	cfg := SyntheticConfig(settings, sim)
	synth, err := source.NewSynthetic(cfg)
	if err != nil {
		return nil, err
	}

	GetLogger().Info("simulating channel delay",
		"delay", sim.Delay,
		"delay_samples", cfg.Delay,
		"expected_offset", float64(cfg.Delay)*settings.OutputRate()/settings.ChannelRate(),
		"period_samples", cfg.Period,
		"width_samples", cfg.Width,
		"realtime", cfg.Realtime)

	var src source.Source = synth
	if sim.Record == "" {
		return Run(ctx, settings, src, opts)
	}

	rec, err := source.CreateWAV(sim.Record, int(settings.ChannelRate()))
	if err != nil {
		return nil, err
	}
	report, runErr := Run(ctx, settings, source.Record(synth, rec), opts)
	if err := rec.Close(); err != nil && runErr == nil {
		runErr = errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("path", sim.Record).
			Build()
	}
	return report, runErr
}
