package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/queue"
	"github.com/avlk/oppc-aux-sw/internal/tap"
)

func newTestCorrelationStage(t *testing.T, s *conf.Settings) (*correlationStage, *queue.Queue[CorrelationResult], *tap.Tap) {
	t.Helper()

	samples, err := queue.NewPool[SampleBlock](1, nil)
	require.NoError(t, err)
	results, err := queue.NewQueue[CorrelationResult](16)
	require.NoError(t, err)
	tp, err := tap.New(s.Tap.Capacity)
	require.NoError(t, err)

	stage, err := newCorrelationStage(s, samples, results, tp)
	require.NoError(t, err)
	stage.counters = &counters{}
	stage.log = discardLogger()
	return stage, results, tp
}

// delayedPair returns channel A as a pulse train and channel B as the same
// train delay samples later, both DC free.
func delayedPair(n, delay int) (a, b []int16) {
	a = make([]int16, n)
	b = make([]int16, n)
	level := func(i int) int16 {
		if i >= 0 && i%200 < 40 {
			return 400
		}
		return -80
	}
	for i := range n {
		a[i] = level(i)
		b[i] = level(i - delay)
	}
	return a, b
}

func TestCorrelationStageFindsDelay(t *testing.T) {
	t.Parallel()

	stage, results, _ := newTestCorrelationStage(t, testSettings(t))
	assert.Equal(t, 10, stage.offsetMin)
	assert.Equal(t, 150, stage.offsetMax)
	assert.Equal(t, 400, stage.length)

	a, b := delayedPair(1500, 70)

	// Half filled rings are not correlated.
	stage.ringA.Write(a[:500])
	stage.ringB.Write(b[:500])
	stage.correlate(conf.TriggerPeriodic)
	assert.Equal(t, uint64(1), stage.counters.correlationsSkipped.Load())
	assert.Zero(t, results.Len())

	stage.ringA.Write(a[500:])
	stage.ringB.Write(b[500:])
	stage.correlate(conf.TriggerPeriodic)

	result, ok := results.Poll()
	require.True(t, ok)
	assert.Equal(t, 70, result.Offset)
	assert.Equal(t, conf.TriggerPeriodic, result.Trigger)
	assert.Equal(t, uint64(1500), result.Timestamp)
	assert.Equal(t, 5, result.BinWidth)
	assert.Equal(t, 10, result.OffsetMin)
	require.Len(t, result.Bins, 28)

	// The maximum sits in the bin starting at offset 70, the heaviest bin.
	peak := 0
	for i, v := range result.Bins {
		if v > result.Bins[peak] {
			peak = i
		}
	}
	assert.Equal(t, 70, result.BinStart(peak))
	assert.Equal(t, uint64(1), stage.counters.correlationRuns.Load())
}

func TestCorrelationStagePeriodicTrigger(t *testing.T) {
	t.Parallel()

	stage, _, _ := newTestCorrelationStage(t, testSettings(t))
	require.Equal(t, 3000, stage.interval)

	fired := 0
	for i := 1; i <= 100; i++ {
		trigger, ok := stage.due(64, false)
		if ok {
			fired++
			assert.Equal(t, conf.TriggerPeriodic, trigger)
			assert.Contains(t, []int{47, 94}, i, "fires once 3000 samples have arrived")
		}
	}
	assert.Equal(t, 2, fired)
}

func TestCorrelationStageDetectorTrigger(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Correlator.Trigger = conf.TriggerDetector
	s.Correlator.MinInterval = time.Hour
	stage, _, _ := newTestCorrelationStage(t, s)
	require.Equal(t, 100, stage.settle)

	// Nothing happens without a detection.
	for range 100 {
		_, ok := stage.due(64, false)
		require.False(t, ok)
	}

	_, ok := stage.due(64, true)
	assert.False(t, ok, "settling")
	trigger, ok := stage.due(64, false)
	require.True(t, ok)
	assert.Equal(t, conf.TriggerDetector, trigger)

	// A second detection inside the minimum interval is suppressed.
	_, ok = stage.due(64, true)
	assert.False(t, ok)
	_, ok = stage.due(64, false)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), stage.counters.correlationsSuppressed.Load())
}

func TestCorrelationStageBothTriggers(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Correlator.Trigger = conf.TriggerBoth
	s.Correlator.Settle = 0
	stage, _, _ := newTestCorrelationStage(t, s)

	trigger, ok := stage.due(64, true)
	require.True(t, ok)
	assert.Equal(t, conf.TriggerDetector, trigger)

	// A detection on the message that completes the interval runs once.
	for range 45 {
		_, ok = stage.due(64, false)
		require.False(t, ok)
	}
	trigger, ok = stage.due(64, true)
	require.True(t, ok)
	assert.Equal(t, conf.TriggerPeriodic, trigger)
	assert.Zero(t, stage.counters.correlationsSuppressed.Load())
}

func TestCorrelationStageCapturesToTap(t *testing.T) {
	t.Parallel()

	stage, _, tp := newTestCorrelationStage(t, testSettings(t))
	tp.Arm(true)

	a, b := delayedPair(1200, 70)
	stage.ringA.Write(a)
	stage.ringB.Write(b)
	stage.correlate(conf.TriggerPeriodic)

	assert.False(t, tp.Armed(), "one-shot capture disarms")

	records, err := tp.Drain()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, tap.KindRingA, records[0].Kind)
	assert.Equal(t, tap.KindRingB, records[1].Kind)
	assert.Equal(t, tap.KindCorrelation, records[2].Kind)

	samples, err := records[0].Data.GetInt64Array("samples")
	require.NoError(t, err)
	require.Len(t, samples, 1000)
	assert.Equal(t, int64(a[200]), samples[0], "oldest sample first")

	offset, err := records[2].Data.GetInt64("offset")
	require.NoError(t, err)
	assert.Equal(t, int64(70), offset)

	// Disarmed, the next run publishes nothing.
	stage.correlate(conf.TriggerPeriodic)
	assert.Equal(t, uint64(3), tp.Stats().Published)
}

func TestCorrelationStageRejectsShortBufferA(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Correlator.BufferA = 30 * time.Millisecond

	samples, err := queue.NewPool[SampleBlock](1, nil)
	require.NoError(t, err)
	results, err := queue.NewQueue[CorrelationResult](1)
	require.NoError(t, err)

	_, err = newCorrelationStage(s, samples, results, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds buffer A")
}
