// Package testutil provides shared test utilities for the signal chain
// packages.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avlk/oppc-aux-sw/internal/conf"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second
)

// WaitForError waits for the result of a Run goroutine on ch and returns it,
// failing the test when nothing arrives before timeout.
func WaitForError(t *testing.T, ch <-chan error, timeout time.Duration, msg string) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		require.Fail(t, msg)
		return nil
	}
}

// SmallCorrelator returns the default settings with the correlator shrunk
// so that, at the default 16666.67 Hz output rate, buffer A holds 1000
// samples and buffer B 400, offsets span [10,150) in bins of 5 and the
// periodic trigger fires every 3000 samples. Event delays reach 250
// samples.
func SmallCorrelator(t *testing.T) *conf.Settings {
	t.Helper()

	s := conf.Defaults()
	s.Correlator.BufferA = 60 * time.Millisecond
	s.Correlator.BufferB = 24 * time.Millisecond
	s.Correlator.OffsetMin = 600 * time.Microsecond
	s.Correlator.OffsetMax = 9 * time.Millisecond
	s.Correlator.BinWidth = 300 * time.Microsecond
	s.Correlator.Interval = 180 * time.Millisecond
	s.Correlator.Settle = 6 * time.Millisecond
	s.Events.MaxDelay = 15 * time.Millisecond
	s.Events.Bins = 50

	require.NoError(t, conf.ValidateSettings(s))
	require.Equal(t, 1000, s.Samples(s.Correlator.BufferA))
	require.Equal(t, 400, s.Samples(s.Correlator.BufferB))
	return s
}
