package pipeline

import (
	"github.com/avlk/oppc-aux-sw/internal/observability/metrics"
)

// MetricsCollector records signal chain events into the Prometheus
// collector. A nil collector, or one built around nil metrics, records
// nothing.
type MetricsCollector struct {
	m *metrics.SignalChainMetrics
}

// NewMetricsCollector wraps m.
func NewMetricsCollector(m *metrics.SignalChainMetrics) *MetricsCollector {
	return &MetricsCollector{m: m}
}

func (c *MetricsCollector) enabled() bool {
	return c != nil && c.m != nil
}

// RecordAcquisition records acquisition counter deltas.
func (c *MetricsCollector) RecordAcquisition(delta AcquisitionStats) {
	if !c.enabled() {
		return
	}
	c.m.RecordAcquisitionBlocks(metrics.StatusDelivered, delta.Delivered)
	c.m.RecordAcquisitionBlocks(metrics.StatusPoolEmpty, delta.PoolEmpty)
	c.m.RecordAcquisitionBlocks(metrics.StatusMalformed, delta.Malformed)
}

// RecordChain records filter and detector counter deltas of one channel.
func (c *MetricsCollector) RecordChain(channel string, delta ChainStats) {
	if !c.enabled() {
		return
	}
	c.m.RecordFilterSamples(channel, stageCIC, int(delta.CICSamples))
	c.m.RecordFilterSamples(channel, stageFIR, int(delta.FIRSamples))
	c.m.RecordFilterOverflows(channel, stageCIC, delta.CICOverflows)
	c.m.RecordFilterOverflows(channel, stageFIR, delta.FIROverflows)
	c.m.RecordFilterSaturations(channel, stageCIC, delta.CICSaturations)
	c.m.RecordFilterSaturations(channel, stageFIR, delta.FIRSaturations)
	c.m.RecordFilterSaturations(channel, stageDCBlocker, delta.DCSaturations)
	c.m.RecordDetectorOverflows(channel, delta.DetectorOverflows)
}

// RecordPoolExhausted records refused claims on a pool.
func (c *MetricsCollector) RecordPoolExhausted(pool string, count uint64) {
	if !c.enabled() {
		return
	}
	c.m.RecordPoolExhausted(pool, count)
}

// RecordQueueDropped records a result dropped on a full queue.
func (c *MetricsCollector) RecordQueueDropped(queue string) {
	if !c.enabled() {
		return
	}
	c.m.RecordQueueDropped(queue)
}

// RecordDetectedObject records an object seen on a channel.
func (c *MetricsCollector) RecordDetectedObject(channel string) {
	if !c.enabled() {
		return
	}
	c.m.RecordDetectedObject(channel)
}

// RecordCorrelation records one correlation run.
func (c *MetricsCollector) RecordCorrelation(r *CorrelationResult) {
	if !c.enabled() {
		return
	}
	c.m.RecordCorrelation(r.Trigger, r.Runtime.Seconds(), r.Offset, r.Value)
}

// RecordEventCorrelation records one event correlation run.
func (c *MetricsCollector) RecordEventCorrelation(found bool, delay uint64) {
	if !c.enabled() {
		return
	}
	c.m.RecordEventCorrelation(found, delay)
}

// RecordTapRecord records a publish attempt on the armed tap.
func (c *MetricsCollector) RecordTapRecord(published bool) {
	if !c.enabled() {
		return
	}
	c.m.RecordTapRecord(published)
}
