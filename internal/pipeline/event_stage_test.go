package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlk/oppc-aux-sw/internal/correlator"
	"github.com/avlk/oppc-aux-sw/internal/detector"
	"github.com/avlk/oppc-aux-sw/internal/queue"
	"github.com/avlk/oppc-aux-sw/internal/testutil"
)

func newTestEventStage(t *testing.T, batch int) (*eventStage, *queue.Queue[detector.DetectedObject], *queue.Queue[correlator.EventCorrelationResult]) {
	t.Helper()

	s := testSettings(t)
	s.Events.Enabled = true
	s.Events.Batch = batch
	s.Events.Interval = 20 * time.Millisecond

	in, err := queue.NewQueue[detector.DetectedObject](64)
	require.NoError(t, err)
	results, err := queue.NewQueue[correlator.EventCorrelationResult](8)
	require.NoError(t, err)

	stage, err := newEventStage(s, in, results)
	require.NoError(t, err)
	stage.counters = &counters{}
	stage.log = discardLogger()
	return stage, in, results
}

func TestEventStageFindsModalDelay(t *testing.T) {
	t.Parallel()

	stage, _, results := newTestEventStage(t, 32)
	require.Equal(t, uint64(250), stage.corr.MaxDelay())

	for i := range 10 {
		start := uint64(1000 + 300*i)
		stage.add(detector.DetectedObject{Start: start, Length: 40, Source: detector.ChannelA})
		stage.add(detector.DetectedObject{Start: start + 72, Length: 40, Source: detector.ChannelB})
	}
	stage.correlate()

	result, ok := results.Poll()
	require.True(t, ok)
	assert.Equal(t, 14, result.Bin)
	assert.Equal(t, uint64(70), result.DelayMin)
	assert.Equal(t, uint64(75), result.DelayMax)
	assert.Equal(t, int64(10), result.Count)
	assert.Equal(t, uint64(1), stage.counters.eventRuns.Load())
	assert.Zero(t, stage.arrived)
}

func TestEventStageEvictsAgedObjects(t *testing.T) {
	t.Parallel()

	stage, _, _ := newTestEventStage(t, 32)

	stage.add(detector.DetectedObject{Start: 0, Length: 10, Source: detector.ChannelA})
	stage.add(detector.DetectedObject{Start: 100000, Length: 10, Source: detector.ChannelB})
	stage.correlate()

	assert.Equal(t, 0, stage.windows[detector.ChannelA].Len())
	assert.Equal(t, 1, stage.windows[detector.ChannelB].Len())
	assert.Equal(t, uint64(1), stage.counters.eventsEvicted.Load())
}

func TestEventStageRunBatchesAndStops(t *testing.T) {
	t.Parallel()

	stage, in, results := newTestEventStage(t, 4)
	stage.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- stage.run(ctx) }()

	for i := range 2 {
		start := uint64(500 * (i + 1))
		require.True(t, in.Push(detector.DetectedObject{Start: start, Length: 20, Source: detector.ChannelA}))
		require.True(t, in.Push(detector.DetectedObject{Start: start + 30, Length: 20, Source: detector.ChannelB}))
	}

	var result correlator.EventCorrelationResult
	require.Eventually(t, func() bool {
		var ok bool
		result, ok = results.Poll()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(30), result.DelayMin)

	cancel()
	require.NoError(t, testutil.WaitForError(t, done, testutil.ShortTestTimeout, "event stage did not stop"))
}
