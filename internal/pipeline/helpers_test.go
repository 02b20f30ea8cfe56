package pipeline

import (
	"log/slog"
	"testing"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/testutil"
)

// testSettings is the small correlator geometry with every block delivered.
func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	s := testutil.SmallCorrelator(t)
	s.Acquisition.SkipFirstBlock = false
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// pulseTrain returns n samples at baseline with pulses of the given width
// every period samples, the first starting at lag.
func pulseTrain(n, period, width, lag int, baseline, level uint16) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = baseline
		if i >= lag && (i-lag)%period < width {
			out[i] = level
		}
	}
	return out
}

// interleave merges two channels into one A-first stream.
func interleave(a, b []uint16) []uint16 {
	out := make([]uint16, 0, len(a)+len(b))
	for i := range a {
		out = append(out, a[i], b[i])
	}
	return out
}
