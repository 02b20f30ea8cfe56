package pipeline

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/correlator"
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/queue"
	"github.com/avlk/oppc-aux-sw/internal/ringbuffer"
	"github.com/avlk/oppc-aux-sw/internal/tap"
)

const queueCorrelations = "correlations"

// CorrelationResult is the outcome of one correlation run.
type CorrelationResult struct {
	Offset    int           `json:"offset"` // samples channel B lags channel A
	Value     int64         `json:"value"`
	Bins      []int64       `json:"bins"`
	BinWidth  int           `json:"bin_width"`
	OffsetMin int           `json:"offset_min"`
	Trigger   string        `json:"trigger"`
	Timestamp uint64        `json:"timestamp"` // samples written to the rings at run time
	Runtime   time.Duration `json:"runtime"`
}

// BinStart returns the first offset covered by histogram bin i.
func (r *CorrelationResult) BinStart(i int) int {
	return r.OffsetMin + i*r.BinWidth
}

// ringSnapshot is the tap record of one ring, oldest sample first.
type ringSnapshot struct {
	Samples []int16 `json:"samples"`
}

// correlationStage keeps the recent history of both channels and correlates
// it under the configured trigger policy.
type correlationStage struct {
	samples *queue.Pool[SampleBlock]
	ringA   *ringbuffer.Buffer[int16]
	ringB   *ringbuffer.Buffer[int16]
	hist    *correlator.Histogram
	results *queue.Queue[CorrelationResult]
	tap     *tap.Tap
	timeout time.Duration

	offsetMin int
	offsetMax int
	length    int

	periodic bool
	interval int
	since    int

	gated      bool
	settle     int
	settleLeft int
	pending    bool
	limiter    *rate.Limiter

	snapshotA []int16
	snapshotB []int16

	metrics  *MetricsCollector
	counters *counters
	log      *slog.Logger
}

func newCorrelationStage(s *conf.Settings, samples *queue.Pool[SampleBlock], results *queue.Queue[CorrelationResult], t *tap.Tap) (*correlationStage, error) {
	c := s.Correlator

	ringA, err := ringbuffer.New[int16](s.Samples(c.BufferA))
	if err != nil {
		return nil, err
	}
	ringB, err := ringbuffer.New[int16](s.Samples(c.BufferB))
	if err != nil {
		return nil, err
	}

	offsetMin, offsetMax := s.Samples(c.OffsetMin), s.Samples(c.OffsetMax)
	if offsetMax+ringB.Capacity() > ringA.Capacity() {
		return nil, errors.Newf("correlation window of %d samples at offset %d exceeds buffer A of %d samples",
			ringB.Capacity(), offsetMax, ringA.Capacity()).
			Component("pipeline").
			Category(errors.CategoryCorrelation).
			Context("offset_max", offsetMax).
			Build()
	}
	hist, err := correlator.NewHistogram(offsetMin, offsetMax, s.Samples(c.BinWidth))
	if err != nil {
		return nil, err
	}

	stage := &correlationStage{
		samples:   samples,
		ringA:     ringA,
		ringB:     ringB,
		hist:      hist,
		results:   results,
		tap:       t,
		timeout:   s.Pipeline.ReceiveTimeout,
		offsetMin: offsetMin,
		offsetMax: offsetMax,
		length:    ringB.Capacity(),
		periodic:  c.Trigger == conf.TriggerPeriodic || c.Trigger == conf.TriggerBoth,
		interval:  s.Samples(c.Interval),
		gated:     c.Trigger == conf.TriggerDetector || c.Trigger == conf.TriggerBoth,
		settle:    s.Samples(c.Settle),
	}
	if stage.gated {
		stage.limiter = rate.NewLimiter(rate.Every(c.MinInterval), 1)
	}
	return stage, nil
}

func (s *correlationStage) run(ctx context.Context) error {
	s.log.Info("correlation stage started",
		"offset_min", s.offsetMin,
		"offset_max", s.offsetMax,
		"length", s.length,
		"periodic", s.periodic,
		"gated", s.gated)
	defer s.log.Info("correlation stage stopped", "runs", s.counters.correlationRuns.Load())

	for {
		msg, err := s.samples.Receive(ctx, s.timeout)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrTimeout):
			continue
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}

		n, detected := msg.N, msg.Detected
		s.ringA.Write(msg.A[:n])
		s.ringB.Write(msg.B[:n])
		s.samples.Return(msg)

		if trigger, ok := s.due(n, detected); ok {
			s.correlate(trigger)
		}
	}
}

// due advances the trigger state by n samples and reports which trigger,
// if any, fires. A periodic and a detector trigger falling on the same
// message produce one run.
func (s *correlationStage) due(n int, detected bool) (string, bool) {
	fired := ""

	if s.periodic {
		s.since += n
		if s.since >= s.interval {
			s.since = 0
			fired = conf.TriggerPeriodic
		}
	}

	if s.gated {
		if detected && !s.pending {
			s.pending = true
			s.settleLeft = s.settle
		}
		if s.pending {
			s.settleLeft -= n
			if s.settleLeft <= 0 {
				s.pending = false
				switch {
				case fired != "":
				case s.limiter.Allow():
					fired = conf.TriggerDetector
				default:
					s.counters.correlationsSuppressed.Add(1)
				}
			}
		}
	}

	return fired, fired != ""
}

// correlate runs the correlator over the current ring contents.
func (s *correlationStage) correlate(trigger string) {
	if s.ringA.Written() < uint64(s.ringA.Capacity()) {
		s.counters.correlationsSkipped.Add(1)
		return
	}

	start := time.Now()
	s.hist.Reset()
	correlator.Correlate(s.ringA, s.ringB, s.offsetMin, s.offsetMax, s.length, s.hist)

	result := CorrelationResult{
		Offset:    s.hist.Max.Offset,
		Value:     s.hist.Max.Value,
		Bins:      slices.Clone(s.hist.Bins),
		BinWidth:  s.hist.BinWidth,
		OffsetMin: s.hist.OffsetMin,
		Trigger:   trigger,
		Timestamp: s.ringB.Written(),
		Runtime:   time.Since(start),
	}
	s.counters.correlationRuns.Add(1)
	s.metrics.RecordCorrelation(&result)

	if !s.results.Push(result) {
		s.metrics.RecordQueueDropped(queueCorrelations)
	}
	s.log.Debug("correlation",
		"trigger", trigger,
		"offset", result.Offset,
		"value", result.Value,
		"runtime", result.Runtime)

	s.capture(&result)
}

// capture publishes both rings and the result when the tap is armed.
func (s *correlationStage) capture(result *CorrelationResult) {
	if s.tap == nil || !s.tap.Armed() {
		return
	}
	s.snapshotA = s.ringA.Snapshot(s.snapshotA)
	s.snapshotB = s.ringB.Snapshot(s.snapshotB)

	s.metrics.RecordTapRecord(s.tap.Publish(tap.KindRingA, result.Timestamp, ringSnapshot{Samples: s.snapshotA}))
	s.metrics.RecordTapRecord(s.tap.Publish(tap.KindRingB, result.Timestamp, ringSnapshot{Samples: s.snapshotB}))
	s.metrics.RecordTapRecord(s.tap.Publish(tap.KindCorrelation, result.Timestamp, result))
	s.tap.Complete()
}
