package analysis

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/observability"
	"github.com/avlk/oppc-aux-sw/internal/observation"
	"github.com/avlk/oppc-aux-sw/internal/pipeline"
	"github.com/avlk/oppc-aux-sw/internal/source"
)

const (
	// pollInterval paces result collection, tap draining and idle checks.
	pollInterval = 10 * time.Millisecond
	// defaultDrain bounds the wait for the chain to empty after the source
	// ends.
	defaultDrain = 5 * time.Second
)

// Options controls how a run reports.
type Options struct {
	Out     io.Writer     // notes and summary, os.Stdout when nil
	OutFile string        // append notes to this file instead of Out
	Format  string        // observation format
	Objects bool          // print detected objects, not only correlations
	Summary bool          // print run statistics and metrics at the end
	TapFile string        // append tap records here while the run lasts
	Drain   time.Duration // wait for the chain to empty after the source ends
}

// Report summarizes a finished run.
type Report struct {
	RunID        string         `json:"run_id"`
	Source       source.Stats   `json:"source"`
	Chain        pipeline.Stats `json:"chain"`
	Objects      int            `json:"objects"`
	Correlations int            `json:"correlations"`
	Events       int            `json:"events"`
	LastOffset   int            `json:"last_offset"`
	Duration     time.Duration  `json:"duration"`
}

// Run drives src into a new signal chain until the source ends or ctx is
// cancelled, writing results as they arrive. When the source ends first the
// chain is given time to process what it already holds.
func Run(ctx context.Context, settings *conf.Settings, src source.Source, opts Options) (*Report, error) {
	log := GetLogger()
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	drain := opts.Drain
	if drain <= 0 {
		drain = defaultDrain
	}

	var (
		writer   *observation.Writer
		closeOut func() error
		err      error
	)
	if opts.OutFile != "" {
		writer, closeOut, err = observation.OpenFile(opts.OutFile, opts.Format)
	} else {
		writer, err = observation.NewWriter(out, opts.Format)
	}
	if err != nil {
		return nil, err
	}
	if closeOut != nil {
		defer func() {
			if err := closeOut(); err != nil {
				log.Warn("failed to close observation log", "path", opts.OutFile, "error", err)
			}
		}()
	}

	var m *observability.Metrics
	chainOpts := []pipeline.Option{pipeline.WithLogger(pipeline.GetLogger())}
	if settings.Metrics.Enabled {
		if m, err = observability.NewMetrics(); err != nil {
			return nil, errors.New(err).
				Component("analysis").
				Category(errors.CategoryConfiguration).
				Context("operation", "create_metrics").
				Build()
		}
		chainOpts = append(chainOpts, pipeline.WithMetrics(m.SignalChain))
	}

	chain, err := pipeline.New(settings, chainOpts...)
	if err != nil {
		return nil, err
	}

	// Only an opened file may reach the collector; a typed nil would not
	// compare equal to nil there.
	var tapOut io.Writer
	if opts.TapFile != "" {
		tapFile, err := os.OpenFile(opts.TapFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.FileError(err, opts.TapFile, 0).
				Component("analysis").
				Build()
		}
		defer func() {
			if err := tapFile.Close(); err != nil {
				log.Warn("failed to close tap file", "path", opts.TapFile, "error", err)
			}
		}()
		tapOut = tapFile
		if !chain.Tap().Armed() {
			chain.Tap().Arm(settings.Tap.OneShot)
		}
	}

	report := &Report{RunID: chain.RunID()}
	col := &collector{
		chain:  chain,
		writer: writer,
		report: report,
		rate:   settings.OutputRate(),
		all:    opts.Objects,
		tap:    tapOut,
	}

	log.Info("starting signal chain run",
		"run_id", chain.RunID(),
		"sample_rate", settings.Acquisition.SampleRate,
		"output_rate", settings.OutputRate(),
		"trigger", settings.Correlator.Trigger,
		"events", settings.Events.Enabled)

	start := time.Now()
	chainCtx, stopChain := context.WithCancel(ctx)
	defer stopChain()

	g, gctx := errgroup.WithContext(chainCtx)
	g.Go(func() error { return chain.Run(gctx) })
	g.Go(func() error { return col.run(gctx) })
	g.Go(func() error {
		defer stopChain()
		stats, err := src.Run(gctx, chain.Acquisition())
		report.Source = stats
		if err != nil {
			return err
		}
		if gctx.Err() == nil {
			waitIdle(gctx, chain, settings, drain)
		}
		return nil
	})

	err = g.Wait()
	report.Chain = chain.Stats()
	report.Duration = time.Since(start)

	if flushErr := writer.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if err != nil {
		return report, err
	}

	log.Info("signal chain run finished",
		"run_id", report.RunID,
		"duration", report.Duration,
		"blocks", report.Source.Blocks,
		"correlations", report.Correlations,
		"objects", report.Objects)

	if opts.Summary {
		if err := WriteReport(out, report); err != nil {
			return report, err
		}
		if m != nil {
			if err := m.WriteSummary(out); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

// waitIdle returns once no raw or sample message has been waiting for two
// consecutive polls plus one event interval, or when limit passes.
func waitIdle(ctx context.Context, chain *pipeline.SignalChain, settings *conf.Settings, limit time.Duration) {
	quiet := 2 * pollInterval
	if settings.Events.Enabled {
		quiet += settings.Events.Interval
	}

	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			GetLogger().Warn("signal chain did not drain in time", "limit", limit)
			return
		case now := <-ticker.C:
			s := chain.Stats()
			if s.RawPool.Filled > 0 || s.SamplePool.Filled > 0 {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = now
			}
			if now.Sub(idleSince) >= quiet {
				return
			}
		}
	}
}

// WriteReport prints the run statistics.
func WriteReport(w io.Writer, r *Report) error {
	lines := []string{
		fmt.Sprintf("run %s finished in %s", r.RunID, r.Duration.Round(time.Millisecond)),
		fmt.Sprintf("source: %d blocks, %d delivered, %d dropped, %d malformed, %d retries",
			r.Source.Blocks, r.Source.Delivered, r.Source.Dropped, r.Source.Malformed, r.Source.Retries),
		fmt.Sprintf("acquisition: %d delivered, %d pool empty, %d malformed",
			r.Chain.Acquisition.Delivered, r.Chain.Acquisition.PoolEmpty, r.Chain.Acquisition.Malformed),
		fmt.Sprintf("samples: %d forwarded, %d dropped", r.Chain.SamplesForwarded, r.Chain.SamplesDropped),
		fmt.Sprintf("correlator: %d runs, %d skipped, %d suppressed, last offset %d",
			r.Chain.CorrelationRuns, r.Chain.CorrelationsSkipped, r.Chain.CorrelationsSuppressed, r.LastOffset),
		fmt.Sprintf("results: %d objects, %d correlations, %d events", r.Objects, r.Correlations, r.Events),
	}
	for ch, c := range r.Chain.Channels {
		lines = append(lines, fmt.Sprintf("channel %d: %d samples out, %d objects, %d overflows, %d saturations",
			ch, c.FIRSamples, c.Objects,
			c.CICOverflows+c.FIROverflows+c.DetectorOverflows,
			c.CICSaturations+c.FIRSaturations+c.DCSaturations))
	}
	if r.Chain.Tap.Published > 0 || r.Chain.Tap.Dropped > 0 {
		lines = append(lines, fmt.Sprintf("tap: %d records, %d dropped, %d captures",
			r.Chain.Tap.Published, r.Chain.Tap.Dropped, r.Chain.Tap.Captures))
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return errors.New(err).
				Component("analysis").
				Category(errors.CategoryFileIO).
				Context("operation", "write_report").
				Build()
		}
	}
	return nil
}
