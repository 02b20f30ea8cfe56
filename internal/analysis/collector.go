package analysis

import (
	"context"
	"io"
	"time"

	"github.com/avlk/oppc-aux-sw/internal/correlator"
	"github.com/avlk/oppc-aux-sw/internal/detector"
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/logging"
	"github.com/avlk/oppc-aux-sw/internal/observation"
	"github.com/avlk/oppc-aux-sw/internal/pipeline"
)

// collector moves results out of the chain's queues into notes and drains
// the debug tap into its file.
type collector struct {
	chain  *pipeline.SignalChain
	writer *observation.Writer
	report *Report
	rate   float64
	all    bool
	tap    io.Writer
	latest uint64
}

// run collects until ctx ends, then empties the queues once more.
func (c *collector) run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	objects := c.chain.DetectorResults().C()
	correlations := c.chain.CorrelationResults().C()
	events := c.chain.EventResults().C()

	for {
		var err error
		select {
		case <-ctx.Done():
			return c.drain()
		case o := <-objects:
			err = c.object(o)
		case r := <-correlations:
			err = c.correlation(r)
		case r := <-events:
			err = c.event(r)
		case <-ticker.C:
			err = c.drainTap()
		}
		if err != nil {
			return err
		}
	}
}

// drain writes whatever is still queued after the chain stopped.
func (c *collector) drain() error {
	for {
		o, ok := c.chain.DetectorResults().Poll()
		if !ok {
			break
		}
		if err := c.object(o); err != nil {
			return err
		}
	}
	for {
		r, ok := c.chain.CorrelationResults().Poll()
		if !ok {
			break
		}
		if err := c.correlation(r); err != nil {
			return err
		}
	}
	for {
		r, ok := c.chain.EventResults().Poll()
		if !ok {
			break
		}
		if err := c.event(r); err != nil {
			return err
		}
	}
	return c.drainTap()
}

func (c *collector) object(o detector.DetectedObject) error {
	c.report.Objects++
	c.latest = max(c.latest, o.End())
	if !c.all {
		return nil
	}
	return c.writer.Write(observation.FromObject(o, c.rate))
}

func (c *collector) correlation(r pipeline.CorrelationResult) error {
	c.report.Correlations++
	c.report.LastOffset = r.Offset
	logging.Trace("correlation collected", "run_id", c.chain.RunID(), "offset", r.Offset)
	return c.writer.Write(observation.FromCorrelation(r, c.rate))
}

func (c *collector) event(r correlator.EventCorrelationResult) error {
	c.report.Events++
	logging.Trace("event correlation collected", "run_id", c.chain.RunID(), "bin", r.Bin, "count", r.Count)
	return c.writer.Write(observation.FromEvent(r, c.latest, c.rate))
}

func (c *collector) drainTap() error {
	if c.tap == nil {
		return nil
	}
	if _, err := c.chain.Tap().WriteTo(c.tap); err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("operation", "drain_tap").
			Build()
	}
	return nil
}
