// Package metrics provides signal chain metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Acquisition delivery statuses.
const (
	StatusDelivered = "delivered"
	StatusPoolEmpty = "pool_empty"
	StatusMalformed = "malformed"
)

// SignalChainMetrics contains Prometheus metrics for the signal chain
type SignalChainMetrics struct {
	registry prometheus.Registerer

	// Acquisition metrics
	acquisitionBlocks *prometheus.CounterVec

	// Filter chain metrics
	filterSamples     *prometheus.CounterVec
	filterOverflows   *prometheus.CounterVec
	filterSaturations *prometheus.CounterVec

	// Plumbing metrics
	poolExhausted *prometheus.CounterVec
	queueDropped  *prometheus.CounterVec

	// Detector metrics
	detectedObjects   *prometheus.CounterVec
	detectorOverflows *prometheus.CounterVec

	// Correlator metrics
	correlatorRuns     *prometheus.CounterVec
	correlatorDuration *prometheus.HistogramVec
	correlatorOffset   prometheus.Gauge
	correlatorValue    prometheus.Gauge

	// Event correlator metrics
	eventCorrelations *prometheus.CounterVec
	eventDelay        prometheus.Gauge

	// Debug tap metrics
	tapRecords *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewSignalChainMetrics creates and registers new signal chain metrics
func NewSignalChainMetrics(registry prometheus.Registerer) (*SignalChainMetrics, error) {
	m := &SignalChainMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *SignalChainMetrics) initMetrics() error {
	m.acquisitionBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_acquisition_blocks_total",
			Help: "Raw ADC blocks offered to the signal chain by delivery status",
		},
		[]string{"status"}, // delivered, pool_empty, malformed
	)

	m.filterSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_filter_samples_total",
			Help: "Decimated samples produced by each filter stage",
		},
		[]string{"channel", "stage"},
	)

	m.filterOverflows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_filter_overflows_total",
			Help: "Filter outputs dropped because the output queue was full",
		},
		[]string{"channel", "stage"},
	)

	m.filterSaturations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_filter_saturations_total",
			Help: "Filter outputs clipped to the sample range",
		},
		[]string{"channel", "stage"},
	)

	m.poolExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_pool_exhausted_total",
			Help: "Claims refused because every message of a pool was in use",
		},
		[]string{"pool"},
	)

	m.queueDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_queue_dropped_total",
			Help: "Results dropped because a result queue was full",
		},
		[]string{"queue"},
	)

	m.detectedObjects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_detected_objects_total",
			Help: "Objects reported by the detectors",
		},
		[]string{"channel"},
	)

	m.detectorOverflows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_detector_overflows_total",
			Help: "Objects dropped because the detector result ring was full",
		},
		[]string{"channel"},
	)

	m.correlatorRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_correlator_runs_total",
			Help: "Correlation runs by trigger",
		},
		[]string{"trigger"}, // periodic, detector
	)

	m.correlatorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oppc_correlator_duration_seconds",
			Help:    "Time taken by one correlation run",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~1.6s
		},
		[]string{"trigger"},
	)

	m.correlatorOffset = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oppc_correlator_offset_samples",
			Help: "Offset of the correlation maximum of the last run",
		},
	)

	m.correlatorValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oppc_correlator_peak_value",
			Help: "Correlation sum at the maximum of the last run",
		},
	)

	m.eventCorrelations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_event_correlations_total",
			Help: "Event correlation runs by outcome",
		},
		[]string{"outcome"}, // found, empty
	)

	m.eventDelay = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oppc_event_delay_samples",
			Help: "Lower bound of the modal delay bin of the last event correlation",
		},
	)

	m.tapRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oppc_tap_records_total",
			Help: "Debug tap records by status",
		},
		[]string{"status"}, // published, dropped
	)

	// Initialize collectors slice with all metrics
	m.collectors = []prometheus.Collector{
		m.acquisitionBlocks,
		m.filterSamples,
		m.filterOverflows,
		m.filterSaturations,
		m.poolExhausted,
		m.queueDropped,
		m.detectedObjects,
		m.detectorOverflows,
		m.correlatorRuns,
		m.correlatorDuration,
		m.correlatorOffset,
		m.correlatorValue,
		m.eventCorrelations,
		m.eventDelay,
		m.tapRecords,
	}

	return nil
}

// Describe implements the Collector interface
func (m *SignalChainMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *SignalChainMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Acquisition metrics recording methods

// RecordAcquisitionBlocks adds count blocks with the given delivery status
func (m *SignalChainMetrics) RecordAcquisitionBlocks(status string, count uint64) {
	if count > 0 {
		m.acquisitionBlocks.WithLabelValues(status).Add(float64(count))
	}
}

// Filter chain metrics recording methods

// RecordFilterSamples adds decimated samples produced by a stage
func (m *SignalChainMetrics) RecordFilterSamples(channel, stage string, count int) {
	if count > 0 {
		m.filterSamples.WithLabelValues(channel, stage).Add(float64(count))
	}
}

// RecordFilterOverflows adds dropped filter outputs
func (m *SignalChainMetrics) RecordFilterOverflows(channel, stage string, count uint64) {
	if count > 0 {
		m.filterOverflows.WithLabelValues(channel, stage).Add(float64(count))
	}
}

// RecordFilterSaturations adds clipped filter outputs
func (m *SignalChainMetrics) RecordFilterSaturations(channel, stage string, count uint64) {
	if count > 0 {
		m.filterSaturations.WithLabelValues(channel, stage).Add(float64(count))
	}
}

// Plumbing metrics recording methods

// RecordPoolExhausted adds refused claims on a pool
func (m *SignalChainMetrics) RecordPoolExhausted(pool string, count uint64) {
	if count > 0 {
		m.poolExhausted.WithLabelValues(pool).Add(float64(count))
	}
}

// RecordQueueDropped records a result dropped on a full queue
func (m *SignalChainMetrics) RecordQueueDropped(queue string) {
	m.queueDropped.WithLabelValues(queue).Inc()
}

// Detector metrics recording methods

// RecordDetectedObject records an object reported on a channel
func (m *SignalChainMetrics) RecordDetectedObject(channel string) {
	m.detectedObjects.WithLabelValues(channel).Inc()
}

// RecordDetectorOverflows adds objects dropped by a detector
func (m *SignalChainMetrics) RecordDetectorOverflows(channel string, count uint64) {
	if count > 0 {
		m.detectorOverflows.WithLabelValues(channel).Add(float64(count))
	}
}

// Correlator metrics recording methods

// RecordCorrelation records one correlation run and its maximum
func (m *SignalChainMetrics) RecordCorrelation(trigger string, seconds float64, offset int, value int64) {
	m.correlatorRuns.WithLabelValues(trigger).Inc()
	m.correlatorDuration.WithLabelValues(trigger).Observe(seconds)
	m.correlatorOffset.Set(float64(offset))
	m.correlatorValue.Set(float64(value))
}

// RecordEventCorrelation records one event correlation run
func (m *SignalChainMetrics) RecordEventCorrelation(found bool, delay uint64) {
	if !found {
		m.eventCorrelations.WithLabelValues("empty").Inc()
		return
	}
	m.eventCorrelations.WithLabelValues("found").Inc()
	m.eventDelay.Set(float64(delay))
}

// Debug tap metrics recording methods

// RecordTapRecord records a publish attempt on an armed tap
func (m *SignalChainMetrics) RecordTapRecord(published bool) {
	if published {
		m.tapRecords.WithLabelValues("published").Inc()
		return
	}
	m.tapRecords.WithLabelValues("dropped").Inc()
}
