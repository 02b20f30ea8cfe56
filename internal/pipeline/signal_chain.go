package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/correlator"
	"github.com/avlk/oppc-aux-sw/internal/detector"
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/observability/metrics"
	"github.com/avlk/oppc-aux-sw/internal/queue"
	"github.com/avlk/oppc-aux-sw/internal/tap"
)

// ErrAlreadyRunning is returned by Run while another Run is active.
var ErrAlreadyRunning = errors.Newf("signal chain is already running").
	Component("pipeline").
	Category(errors.CategoryState).
	Build()

// Option configures a SignalChain.
type Option func(*SignalChain)

// WithMetrics records the chain's events into m.
func WithMetrics(m *metrics.SignalChainMetrics) Option {
	return func(c *SignalChain) { c.metrics = NewMetricsCollector(m) }
}

// WithLogger replaces the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *SignalChain) { c.log = l }
}

// SignalChain owns the message pools, result queues and stages of one
// two-channel sensor. Blocks enter through Acquisition, results leave
// through the result queues.
type SignalChain struct {
	settings *conf.Settings
	runID    string

	rawPool    *queue.Pool[RawBlock]
	samplePool *queue.Pool[SampleBlock]
	acq        *Acquisition

	detections   *queue.Queue[detector.DetectedObject]
	correlations *queue.Queue[CorrelationResult]
	eventInput   *queue.Queue[detector.DetectedObject]
	eventResults *queue.Queue[correlator.EventCorrelationResult]
	tap          *tap.Tap

	filter      *filterStage
	correlation *correlationStage
	events      *eventStage

	metrics  *MetricsCollector
	counters *counters
	log      *slog.Logger
	running  atomic.Bool
}

// New validates settings and builds every stage. Nothing runs until Run.
func New(settings *conf.Settings, opts ...Option) (*SignalChain, error) {
	if settings == nil {
		return nil, errors.Newf("signal chain settings are nil").
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := conf.ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryValidation).
			Build()
	}

	c := &SignalChain{
		settings: settings,
		runID:    uuid.NewString(),
		counters: &counters{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = GetLogger()
	}
	c.log = c.log.With("run_id", c.runID)

	if err := c.build(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SignalChain) build() error {
	s := c.settings
	var err error

	blockLength := s.Acquisition.BlockLength
	c.rawPool, err = queue.NewPool(s.Acquisition.PoolSize, func() *RawBlock {
		return &RawBlock{Data: make([]uint16, blockLength)}
	})
	if err != nil {
		return err
	}
	c.acq = newAcquisition(c.rawPool, blockLength, s.Acquisition.SkipFirstBlock)

	sampleLength := s.Pipeline.BlockLength
	c.samplePool, err = queue.NewPool(s.Pipeline.PoolSize, func() *SampleBlock {
		return &SampleBlock{A: make([]int16, sampleLength), B: make([]int16, sampleLength)}
	})
	if err != nil {
		return err
	}

	if c.detections, err = queue.NewQueue[detector.DetectedObject](s.Pipeline.Results); err != nil {
		return err
	}
	if c.correlations, err = queue.NewQueue[CorrelationResult](s.Correlator.Results); err != nil {
		return err
	}
	eventResults := max(s.Events.Results, 1)
	if c.eventResults, err = queue.NewQueue[correlator.EventCorrelationResult](eventResults); err != nil {
		return err
	}
	if c.tap, err = tap.New(s.Tap.Capacity); err != nil {
		return err
	}
	if s.Tap.Enabled {
		c.tap.Arm(s.Tap.OneShot)
	}

	var chains [conf.Channels]*ChannelChain
	for i := range chains {
		if chains[i], err = NewChannelChain(detector.Channel(i), s); err != nil {
			return err
		}
	}

	if s.Events.Enabled {
		if c.eventInput, err = queue.NewQueue[detector.DetectedObject](s.Events.Window); err != nil {
			return err
		}
		if c.events, err = newEventStage(s, c.eventInput, c.eventResults); err != nil {
			return err
		}
		c.events.metrics = c.metrics
		c.events.counters = c.counters
		c.events.log = c.log.With("component", "events")
	}

	c.filter = &filterStage{
		raw:        c.rawPool,
		samples:    c.samplePool,
		acq:        c.acq,
		chains:     chains,
		detections: c.detections,
		events:     c.eventInput,
		timeout:    s.Pipeline.ReceiveTimeout,
		metrics:    c.metrics,
		counters:   c.counters,
		log:        c.log.With("component", "filter"),
	}

	if c.correlation, err = newCorrelationStage(s, c.samplePool, c.correlations, c.tap); err != nil {
		return err
	}
	c.correlation.metrics = c.metrics
	c.correlation.counters = c.counters
	c.correlation.log = c.log.With("component", "correlation")

	return nil
}

// Run starts the stages and blocks until ctx ends or a stage fails.
func (c *SignalChain) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.log.Info("signal chain starting",
		"output_rate", c.settings.OutputRate(),
		"trigger", c.settings.Correlator.Trigger,
		"events", c.events != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.filter.run(gctx) })
	g.Go(func() error { return c.correlation.run(gctx) })
	if c.events != nil {
		g.Go(func() error { return c.events.run(gctx) })
	}

	err := g.Wait()
	stats := c.Stats()
	c.log.Info("signal chain stopped",
		"delivered", stats.Acquisition.Delivered,
		"pool_empty", stats.Acquisition.PoolEmpty,
		"samples", stats.SamplesForwarded,
		"samples_dropped", stats.SamplesDropped,
		"correlations", stats.CorrelationRuns)
	return err
}

// Running reports whether Run is active.
func (c *SignalChain) Running() bool { return c.running.Load() }

// RunID identifies this chain in logs.
func (c *SignalChain) RunID() string { return c.runID }

// Settings returns the settings the chain was built from.
func (c *SignalChain) Settings() *conf.Settings { return c.settings }

// Acquisition returns the entry point for raw blocks.
func (c *SignalChain) Acquisition() *Acquisition { return c.acq }

// DetectorResults returns the queue of objects from both detectors.
func (c *SignalChain) DetectorResults() *queue.Queue[detector.DetectedObject] { return c.detections }

// CorrelationResults returns the queue of correlation runs.
func (c *SignalChain) CorrelationResults() *queue.Queue[CorrelationResult] { return c.correlations }

// EventResults returns the queue of event correlation runs. It stays empty
// when the event stage is disabled.
func (c *SignalChain) EventResults() *queue.Queue[correlator.EventCorrelationResult] {
	return c.eventResults
}

// Tap returns the debug tap.
func (c *SignalChain) Tap() *tap.Tap { return c.tap }

// Stats returns a snapshot of every counter of the chain.
func (c *SignalChain) Stats() Stats {
	s := Stats{
		RunID:        c.runID,
		Acquisition:  c.acq.Stats(),
		RawPool:      c.rawPool.Stats(),
		SamplePool:   c.samplePool.Stats(),
		Detections:   c.detections.Stats(),
		Correlations: c.correlations.Stats(),
		Events:       c.eventResults.Stats(),
		Tap:          c.tap.Stats(),
	}
	c.counters.snapshot(&s)
	return s
}
