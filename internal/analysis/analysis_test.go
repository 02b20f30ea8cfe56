package analysis

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/observation"
	"github.com/avlk/oppc-aux-sw/internal/tap"
	"github.com/avlk/oppc-aux-sw/internal/testutil"
)

// testSettings is the small correlator geometry with the event correlator
// running.
func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	s := testutil.SmallCorrelator(t)
	s.Events.Enabled = true
	s.Events.Interval = 20 * time.Millisecond
	return s
}

// testPulses delays channel B by 1050 raw samples, 70 output samples.
func testPulses() SimulateOptions {
	return SimulateOptions{
		Delay:     4200 * time.Microsecond,
		Period:    12 * time.Millisecond,
		Width:     2400 * time.Microsecond,
		Baseline:  1000,
		Amplitude: 400,
		Duration:  800 * time.Millisecond,
	}
}

func TestSyntheticConfigConvertsDurations(t *testing.T) {
	t.Parallel()

	cfg := SyntheticConfig(testSettings(t), testPulses())
	assert.Equal(t, 1050, cfg.Delay)
	assert.Equal(t, 3000, cfg.Period)
	assert.Equal(t, 600, cfg.Width)
	assert.Equal(t, uint64(200000), cfg.Samples)
	assert.Equal(t, 128, cfg.BlockLength)
}

func TestSimulateAndReplayFindDelay(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	sim := testPulses()
	sim.Record = filepath.Join(t.TempDir(), "sim.wav")

	var out bytes.Buffer
	report, err := Simulate(context.Background(), s, sim, Options{
		Out:     &out,
		Format:  observation.FormatJSON,
		Summary: true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, uint64(3125), report.Source.Blocks)
	assert.GreaterOrEqual(t, report.Correlations, 4)
	assert.InDelta(t, 70, report.LastOffset, 2)
	assert.Positive(t, report.Objects)
	assert.Positive(t, report.Events)
	assert.Equal(t, report.Source.Delivered, report.Chain.Acquisition.Delivered)

	text := out.String()
	assert.Contains(t, text, `"kind":"correlation"`)
	assert.Contains(t, text, `"kind":"event"`)
	assert.NotContains(t, text, `"kind":"object"`, "objects are only printed on request")
	assert.Contains(t, text, "correlator: ")
	assert.Contains(t, text, "oppc_acquisition_blocks_total")

	// The recording holds every delivered block and replays to the same delay.
	info, err := os.Stat(sim.Record)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	var replayed bytes.Buffer
	again, err := Replay(context.Background(), s, sim.Record, false, Options{Out: &replayed})
	require.NoError(t, err)
	assert.Equal(t, report.Source.Delivered, again.Source.Blocks)
	assert.GreaterOrEqual(t, again.Correlations, 4)
	assert.InDelta(t, 70, again.LastOffset, 2)
	assert.Contains(t, replayed.String(), "correlation\t")
}

func TestSimulateWritesObjectsAndTap(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Events.Enabled = false
	s.Metrics.Enabled = false
	sim := testPulses()
	sim.Duration = 400 * time.Millisecond
	tapPath := filepath.Join(t.TempDir(), "tap.jsonl")

	var out bytes.Buffer
	report, err := Simulate(context.Background(), s, sim, Options{
		Out:     &out,
		Format:  observation.FormatCSV,
		Objects: true,
		TapFile: tapPath,
	})
	require.NoError(t, err)
	assert.Positive(t, report.Objects)
	assert.Zero(t, report.Events)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Greater(t, len(lines), 1)
	assert.True(t, strings.HasPrefix(lines[0], "kind,channel,timestamp"))
	assert.Contains(t, out.String(), "object,a,")

	// The one-shot tap captured the first correlation run.
	f, err := os.Open(tapPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := tap.Decode(f)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, tap.KindCorrelation, records[2].Kind)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	sim := testPulses()
	sim.Duration = 0
	sim.Realtime = true

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	report, err := Simulate(ctx, s, sim, Options{Out: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Positive(t, report.Source.Blocks)
}

func TestRunWithoutTapPastPollInterval(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Events.Enabled = false
	sim := testPulses()
	sim.Duration = 0
	sim.Realtime = true

	ctx, cancel := context.WithTimeout(context.Background(), 6*pollInterval)
	defer cancel()

	report, err := Simulate(ctx, s, sim, Options{Out: &bytes.Buffer{}})
	require.NoError(t, err, "the collector ticks several times with no tap file")
	assert.GreaterOrEqual(t, report.Duration, 5*pollInterval)
}

func TestRunAppendsNotesToOutFile(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Events.Enabled = false
	s.Metrics.Enabled = false
	sim := testPulses()
	sim.Duration = 400 * time.Millisecond
	path := filepath.Join(t.TempDir(), "notes", "run.jsonl")

	var out bytes.Buffer
	report, err := Simulate(context.Background(), s, sim, Options{
		Out:     &out,
		OutFile: path,
		Format:  observation.FormatJSON,
		Summary: true,
	})
	require.NoError(t, err)
	require.Positive(t, report.Correlations)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, report.Correlations, strings.Count(string(data), `"kind":"correlation"`))
	assert.NotContains(t, out.String(), `"kind":"correlation"`, "notes go to the file only")
	assert.Contains(t, out.String(), "correlator: ", "the summary still goes to Out")
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := Simulate(context.Background(), testSettings(t), testPulses(), Options{Format: "xml"})
	require.Error(t, err)
}

func TestNewDesignDefaults(t *testing.T) {
	t.Parallel()

	d, err := NewDesign(conf.Defaults())
	require.NoError(t, err)

	assert.Equal(t, int64(625), d.CICGain)
	assert.Equal(t, uint(9), d.CICShift)
	assert.InDelta(t, 625.0/512, d.CICResidual, 1e-9)
	assert.Equal(t, 49, d.FIRTaps)
	assert.True(t, d.FIRSymmetric)
	assert.Len(t, d.FIRCoefficients, 49)
	assert.InDelta(t, 250000.0/15, d.OutputRate, 1e-6)
	assert.Equal(t, 10000, d.BufferA)
	assert.Equal(t, 2500, d.BufferB)
	assert.True(t, d.DCBlocker)
	assert.InDelta(t, 0.995, d.DCPole, 1e-3)

	var out bytes.Buffer
	require.NoError(t, WriteDesign(&out, d))
	text := out.String()
	assert.Contains(t, text, "order 4, decimation 5, gain 625, shift 9")
	assert.Contains(t, text, "49 taps, decimation 3")
	assert.Equal(t, 8+49, strings.Count(text, "\n"))
}
