package tap

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type histogram struct {
	Offset int     `json:"offset"`
	Bins   []int64 `json:"bins"`
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(0)
	require.Error(t, err)
}

func TestDisarmedTapIgnoresRecords(t *testing.T) {
	t.Parallel()

	tp, err := New(1024)
	require.NoError(t, err)

	assert.False(t, tp.Publish(KindCorrelation, 1, histogram{}))
	assert.Equal(t, Stats{Capacity: 1024}, tp.Stats())
}

func TestPublishAndDrain(t *testing.T) {
	t.Parallel()

	tp, err := New(4096)
	require.NoError(t, err)
	tp.Arm(false)

	require.True(t, tp.Publish(KindRingA, 100, map[string]any{"samples": []int16{1, -2, 3}}))
	require.True(t, tp.Publish(KindCorrelation, 164, histogram{Offset: 70, Bins: []int64{1, 5, 2}}))

	records, err := tp.Drain()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, KindRingA, records[0].Kind)
	assert.Equal(t, int64(0), records[0].Seq)
	assert.Equal(t, int64(100), records[0].Timestamp)
	samples, err := records[0].Data.GetInt64Array("samples")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -2, 3}, samples)

	assert.Equal(t, KindCorrelation, records[1].Kind)
	assert.Equal(t, int64(1), records[1].Seq)
	offset, err := records[1].Data.GetInt64("offset")
	require.NoError(t, err)
	assert.Equal(t, int64(70), offset)

	again, err := tp.Drain()
	require.NoError(t, err)
	assert.Empty(t, again, "drain consumes the records")
}

func TestRecordThatDoesNotFitIsDropped(t *testing.T) {
	t.Parallel()

	tp, err := New(128)
	require.NoError(t, err)
	tp.Arm(false)

	big := histogram{Bins: make([]int64, 100)}
	assert.False(t, tp.Publish(KindCorrelation, 0, big))

	small := histogram{Offset: 1}
	for tp.Publish(KindCorrelation, 0, small) {
	}

	stats := tp.Stats()
	assert.Positive(t, stats.Published)
	assert.GreaterOrEqual(t, stats.Dropped, uint64(2))

	var buf bytes.Buffer
	_, err = tp.WriteTo(&buf)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, int(stats.Published), "only whole records are buffered")

	records, err := Decode(&buf)
	require.NoError(t, err)
	assert.Len(t, records, int(stats.Published))
}

func TestOneShotCapture(t *testing.T) {
	t.Parallel()

	tp, err := New(1024)
	require.NoError(t, err)

	tp.Complete()
	assert.Zero(t, tp.Stats().Captures, "disarmed tap ignores completion")

	tp.Arm(true)
	require.True(t, tp.Publish(KindRingB, 0, histogram{}))
	tp.Complete()
	assert.False(t, tp.Armed())
	assert.False(t, tp.Publish(KindRingB, 1, histogram{}))

	tp.Arm(false)
	tp.Complete()
	assert.True(t, tp.Armed(), "continuous capture stays armed")
	assert.Equal(t, uint64(2), tp.Stats().Captures)

	tp.Disarm()
	assert.False(t, tp.Armed())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	records, err := Decode(strings.NewReader("{\"kind\":\"ring_a\",\"seq\":0,\"timestamp\":0,\"data\":{}}\nnot json\n"))
	require.Error(t, err)
	assert.Len(t, records, 1)
}
