package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/detector"
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/queue"
)

// flushEvery is the number of raw blocks between counter flushes.
const flushEvery = 256

// Pool and queue names used in metrics labels.
const (
	poolRaw         = "raw"
	poolSamples     = "samples"
	queueDetections = "detections"
	queueEvents     = "events"
)

// SampleBlock is a message of paired filtered samples of both channels.
type SampleBlock struct {
	A, B      []int16
	N         int    // valid samples in A and B
	Timestamp uint64 // timestamp of A[0] and B[0]
	Detected  bool   // an object closed while these samples were produced
}

// filterStage receives raw blocks, runs both channel chains and forwards
// paired samples and detected objects.
type filterStage struct {
	raw        *queue.Pool[RawBlock]
	samples    *queue.Pool[SampleBlock]
	acq        *Acquisition
	chains     [conf.Channels]*ChannelChain
	detections *queue.Queue[detector.DetectedObject]
	events     *queue.Queue[detector.DetectedObject] // nil without the event stage
	timeout    time.Duration
	metrics    *MetricsCollector
	counters   *counters
	log        *slog.Logger

	held     *SampleBlock
	detected bool
	ts       uint64
	blocks   uint64

	lastAcq             AcquisitionStats
	lastChains          [conf.Channels]ChainStats
	lastRawExhausted    uint64
	lastSampleExhausted uint64
}

func (s *filterStage) run(ctx context.Context) error {
	s.log.Info("filter stage started")
	defer func() {
		s.release()
		s.flush()
		s.log.Info("filter stage stopped", "blocks", s.blocks, "samples", s.ts)
	}()

	for {
		msg, err := s.raw.Receive(ctx, s.timeout)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrTimeout):
			s.flush()
			continue
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}

		s.process(msg.Data)
		s.raw.Return(msg)

		s.blocks++
		if s.blocks%flushEvery == 0 {
			s.flush()
		}
	}
}

// process runs one interleaved raw block through both chains.
func (s *filterStage) process(data []uint16) {
	for i, chain := range s.chains {
		chain.Process(data, i, conf.Channels)
	}
	s.drainObjects()
	s.forward()
}

// drainObjects moves closed objects into the result queues.
func (s *filterStage) drainObjects() {
	for _, chain := range s.chains {
		for {
			o, ok := chain.PopObject()
			if !ok {
				break
			}
			s.detected = true
			s.metrics.RecordDetectedObject(o.Source.String())

			if !s.detections.Push(o) {
				s.metrics.RecordQueueDropped(queueDetections)
			}
			if s.events != nil && !s.events.Push(o) {
				s.counters.eventInputDropped.Add(1)
				s.metrics.RecordQueueDropped(queueEvents)
			}
		}
	}
}

// forward pairs pending samples of both channels into sample messages. A
// message is held across blocks until it is full. Samples that find no free
// message are dropped in pairs so the channels stay aligned.
func (s *filterStage) forward() {
	a, b := s.chains[detector.ChannelA], s.chains[detector.ChannelB]
	for {
		n := min(a.Pending(), b.Pending())
		if n == 0 {
			return
		}

		if s.held == nil {
			msg, ok := s.samples.Claim()
			if !ok {
				a.Discard(n)
				b.Discard(n)
				s.ts += uint64(n)
				s.counters.samplesDropped.Add(uint64(n))
				return
			}
			msg.N = 0
			msg.Timestamp = s.ts
			msg.Detected = false
			s.held = msg
		}

		msg := s.held
		k := min(n, len(msg.A)-msg.N)
		a.Take(msg.A[msg.N : msg.N+k])
		b.Take(msg.B[msg.N : msg.N+k])
		msg.N += k
		s.ts += uint64(k)
		s.counters.samplesForwarded.Add(uint64(k))

		if s.detected {
			msg.Detected = true
			s.detected = false
		}
		if msg.N == len(msg.A) {
			s.samples.Send(msg)
			s.held = nil
		}
	}
}

// release returns a partially filled message to its pool.
func (s *filterStage) release() {
	if s.held != nil {
		s.samples.Return(s.held)
		s.held = nil
	}
}

// flush publishes counter deltas to the metrics and the chain snapshots to
// Stats.
func (s *filterStage) flush() {
	acq := s.acq.Stats()
	s.metrics.RecordAcquisition(AcquisitionStats{
		Delivered: acq.Delivered - s.lastAcq.Delivered,
		PoolEmpty: acq.PoolEmpty - s.lastAcq.PoolEmpty,
		Malformed: acq.Malformed - s.lastAcq.Malformed,
	})
	if d := acq.PoolEmpty - s.lastAcq.PoolEmpty; d > 0 {
		s.log.Warn("raw blocks dropped, pool empty", "count", d)
	}
	s.lastAcq = acq

	var chains [conf.Channels]ChainStats
	for i, chain := range s.chains {
		chains[i] = chain.Stats()
		s.metrics.RecordChain(chain.Channel().String(), chains[i].sub(s.lastChains[i]))
	}
	s.lastChains = chains
	s.counters.setChains(chains)

	raw := s.raw.Stats().Exhausted
	s.metrics.RecordPoolExhausted(poolRaw, raw-s.lastRawExhausted)
	s.lastRawExhausted = raw

	sample := s.samples.Stats().Exhausted
	if d := sample - s.lastSampleExhausted; d > 0 {
		s.metrics.RecordPoolExhausted(poolSamples, d)
		s.log.Warn("samples dropped, sample pool empty", "claims", d)
	}
	s.lastSampleExhausted = sample
}
