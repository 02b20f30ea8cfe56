package pipeline

import (
	"sync/atomic"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/queue"
	"github.com/avlk/oppc-aux-sw/internal/tap"
)

// Stats is a snapshot of the signal chain counters.
type Stats struct {
	RunID        string                    `json:"run_id"`
	Acquisition  AcquisitionStats          `json:"acquisition"`
	RawPool      queue.PoolStats           `json:"raw_pool"`
	SamplePool   queue.PoolStats           `json:"sample_pool"`
	Detections   queue.QueueStats          `json:"detections"`
	Correlations queue.QueueStats          `json:"correlations"`
	Events       queue.QueueStats          `json:"events"`
	Channels     [conf.Channels]ChainStats `json:"channels"`

	SamplesForwarded       uint64 `json:"samples_forwarded"`
	SamplesDropped         uint64 `json:"samples_dropped"`
	EventInputDropped      uint64 `json:"event_input_dropped"`
	CorrelationRuns        uint64 `json:"correlation_runs"`
	CorrelationsSkipped    uint64 `json:"correlations_skipped"`    // ring not filled yet
	CorrelationsSuppressed uint64 `json:"correlations_suppressed"` // detector trigger rate limited
	EventRuns              uint64 `json:"event_runs"`
	EventsEvicted          uint64 `json:"events_evicted"`

	Tap tap.Stats `json:"tap"`
}

// counters are written by the stage goroutines and read by Stats.
type counters struct {
	samplesForwarded       atomic.Uint64
	samplesDropped         atomic.Uint64
	eventInputDropped      atomic.Uint64
	correlationRuns        atomic.Uint64
	correlationsSkipped    atomic.Uint64
	correlationsSuppressed atomic.Uint64
	eventRuns              atomic.Uint64
	eventsEvicted          atomic.Uint64

	// chains is replaced whole by the filter stage when it flushes.
	chains atomic.Pointer[[conf.Channels]ChainStats]
}

func (c *counters) setChains(chains [conf.Channels]ChainStats) {
	c.chains.Store(&chains)
}

func (c *counters) snapshot(s *Stats) {
	s.SamplesForwarded = c.samplesForwarded.Load()
	s.SamplesDropped = c.samplesDropped.Load()
	s.EventInputDropped = c.eventInputDropped.Load()
	s.CorrelationRuns = c.correlationRuns.Load()
	s.CorrelationsSkipped = c.correlationsSkipped.Load()
	s.CorrelationsSuppressed = c.correlationsSuppressed.Load()
	s.EventRuns = c.eventRuns.Load()
	s.EventsEvicted = c.eventsEvicted.Load()

	if chains := c.chains.Load(); chains != nil {
		s.Channels = *chains
	}
}
