package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlk/oppc-aux-sw/internal/buildinfo"
	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// testConfig shrinks the correlator to 1000/400 sample buffers, offsets
// [10,150) and a periodic run every 3000 output samples.
const testConfig = `
detector:
  threshold: 42
correlator:
  buffera: 60ms
  bufferb: 24ms
  offsetmin: 600us
  offsetmax: 9ms
  binwidth: 300us
  interval: 180ms
log:
  level: warn
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oppc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return path
}

// execute runs the root command with a fresh viper instance and returns
// what it printed.
func execute(t *testing.T, args ...string) (string, *conf.Settings, error) {
	t.Helper()

	prev := slog.Default()
	viper.Reset()
	t.Cleanup(func() {
		viper.Reset()
		errors.SetReporter(nil)
		slog.SetDefault(prev)
	})

	settings := &conf.Settings{}
	root := RootCommand(settings, buildinfo.NewContext("1.2.3", "2026-10-19"))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), settings, err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "oppc 1.2.3 (built 2026-10-19)\n", out)
}

func TestConfigCommandPrintsLoadedSettings(t *testing.T) {
	out, settings, err := execute(t, "config", "--config", writeConfig(t), "--log-level", "error")
	require.NoError(t, err)

	assert.Equal(t, int32(42), settings.Detector.Threshold)
	assert.Equal(t, "error", settings.Log.Level, "flags win over the config file")
	assert.Contains(t, out, "threshold: 42")
	assert.Contains(t, out, "buffera: 60ms")
}

func TestConfigCommandMissingFile(t *testing.T) {
	_, _, err := execute(t, "config", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestDesignCommandJSON(t *testing.T) {
	out, _, err := execute(t, "design", "--config", writeConfig(t), "--json")
	require.NoError(t, err)

	var d map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.InDelta(t, 625, d["cic_gain"], 0)
	assert.InDelta(t, 49, d["fir_taps"], 0)
	assert.InDelta(t, 1000, d["buffer_a"], 0)
}

func TestSimulateCommand(t *testing.T) {
	out, _, err := execute(t, "simulate", "--config", writeConfig(t),
		"--duration", "800ms", "--format", "json", "--events")
	require.NoError(t, err)

	assert.Contains(t, out, `"kind":"correlation"`)
	assert.Contains(t, out, `"trigger":"periodic"`)
	assert.Contains(t, out, "correlator: 4 runs")
	assert.Contains(t, out, "oppc_correlator_runs_total")
}

func TestSimulateCommandOutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.csv")
	out, _, err := execute(t, "simulate", "--config", writeConfig(t),
		"--duration", "400ms", "--format", "csv", "--out", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "kind,channel,timestamp"))
	assert.Contains(t, string(data), "correlation,")
	assert.NotContains(t, out, "correlation,")
	assert.Contains(t, out, "correlator: ")
}

func TestSimulateCommandRejectsBadTrigger(t *testing.T) {
	_, _, err := execute(t, "simulate", "--config", writeConfig(t), "--trigger", "sometimes")
	require.Error(t, err)
}

func TestReplayCommandNeedsFile(t *testing.T) {
	_, _, err := execute(t, "replay", "--config", writeConfig(t), filepath.Join(t.TempDir(), "none.wav"))
	require.Error(t, err)
}
