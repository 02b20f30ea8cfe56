package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/correlator"
	"github.com/avlk/oppc-aux-sw/internal/detector"
	"github.com/avlk/oppc-aux-sw/internal/queue"
)

const queueEventResults = "event_results"

// eventStage correlates the timestamps of objects detected on both
// channels and reports the most common delay.
type eventStage struct {
	in       *queue.Queue[detector.DetectedObject]
	windows  [conf.Channels]*correlator.EventWindow
	corr     *correlator.EventCorrelator
	results  *queue.Queue[correlator.EventCorrelationResult]
	interval time.Duration
	batch    int

	latest  uint64
	arrived int
	evicted [conf.Channels]uint64

	metrics  *MetricsCollector
	counters *counters
	log      *slog.Logger
}

func newEventStage(s *conf.Settings, in *queue.Queue[detector.DetectedObject], results *queue.Queue[correlator.EventCorrelationResult]) (*eventStage, error) {
	e := s.Events

	var opts []correlator.EventOption
	if e.Similarity {
		opts = append(opts, correlator.WithSimilarity())
	}
	corr, err := correlator.NewEventCorrelator(uint64(s.Samples(e.MaxDelay)), e.Bins, opts...)
	if err != nil {
		return nil, err
	}

	stage := &eventStage{
		in:       in,
		corr:     corr,
		results:  results,
		interval: e.Interval,
		batch:    e.Batch,
	}
	for i := range stage.windows {
		w, err := correlator.NewEventWindow(uint64(s.Samples(e.Horizon)), e.Window)
		if err != nil {
			return nil, err
		}
		stage.windows[i] = w
	}
	return stage, nil
}

func (s *eventStage) run(ctx context.Context) error {
	s.log.Info("event stage started", "max_delay", s.corr.MaxDelay(), "bins", s.corr.Bins())
	defer s.log.Info("event stage stopped", "runs", s.counters.eventRuns.Load())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-s.in.C():
			s.add(o)
			if s.arrived >= s.batch {
				s.correlate()
			}
		case <-ticker.C:
			if s.arrived > 0 {
				s.correlate()
			}
		}
	}
}

func (s *eventStage) add(o detector.DetectedObject) {
	if int(o.Source) >= len(s.windows) {
		return
	}
	s.windows[o.Source].Add(o)
	s.latest = max(s.latest, o.End())
	s.arrived++
}

// correlate evicts objects older than the horizon and correlates the rest.
// The evicted count covers both aged objects and those pushed out of a full
// window.
func (s *eventStage) correlate() {
	for i, w := range s.windows {
		aged := uint64(w.Evict(s.latest))
		full := w.Evicted()
		s.counters.eventsEvicted.Add(aged + full - s.evicted[i])
		s.evicted[i] = full
	}

	a := s.windows[detector.ChannelA].Objects()
	b := s.windows[detector.ChannelB].Objects()
	result := s.corr.Correlate(a, b)
	s.arrived = 0

	s.counters.eventRuns.Add(1)
	s.metrics.RecordEventCorrelation(result.Pairs > 0, result.DelayMin)
	if !s.results.Push(result) {
		s.metrics.RecordQueueDropped(queueEventResults)
	}
	s.log.Debug("event correlation",
		"objects_a", len(a),
		"objects_b", len(b),
		"pairs", result.Pairs,
		"delay_min", result.DelayMin,
		"delay_max", result.DelayMax)
}
