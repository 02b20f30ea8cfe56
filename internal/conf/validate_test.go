package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{
			name:    "odd acquisition block",
			mutate:  func(s *Settings) { s.Acquisition.BlockLength = 127 },
			wantErr: "multiple of 2",
		},
		{
			name:    "cic order too high",
			mutate:  func(s *Settings) { s.Filter.CIC.Order = 9 },
			wantErr: "cic order",
		},
		{
			name:    "design without cutoff",
			mutate:  func(s *Settings) { s.Filter.FIR.Taps = 31 },
			wantErr: "cutoff",
		},
		{
			name:    "dc blocker pole",
			mutate:  func(s *Settings) { s.Filter.DCBlocker.Pole = 1 },
			wantErr: "pole",
		},
		{
			name: "disabled dc blocker is not checked",
			mutate: func(s *Settings) {
				s.Filter.DCBlocker.Enabled = false
				s.Filter.DCBlocker.Pole = 1
			},
		},
		{
			name:    "zero min length",
			mutate:  func(s *Settings) { s.Detector.MinLength = 0 },
			wantErr: "minimum length",
		},
		{
			name:    "zero receive timeout",
			mutate:  func(s *Settings) { s.Pipeline.ReceiveTimeout = 0 },
			wantErr: "receive timeout",
		},
		{
			name:    "buffer a too short",
			mutate:  func(s *Settings) { s.Correlator.BufferA = 300 * time.Millisecond },
			wantErr: "must cover buffer b",
		},
		{
			name:    "empty offset range",
			mutate:  func(s *Settings) { s.Correlator.OffsetMax = s.Correlator.OffsetMin },
			wantErr: "is empty",
		},
		{
			name:    "unknown trigger",
			mutate:  func(s *Settings) { s.Correlator.Trigger = "random" },
			wantErr: "trigger",
		},
		{
			name: "enabled events need a horizon",
			mutate: func(s *Settings) {
				s.Events.Enabled = true
				s.Events.Horizon = time.Millisecond
			},
			wantErr: "horizon",
		},
		{
			name:    "tap capacity",
			mutate:  func(s *Settings) { s.Tap.Capacity = 0 },
			wantErr: "tap capacity",
		},
		{
			name:    "log level",
			mutate:  func(s *Settings) { s.Log.Level = "loud" },
			wantErr: "log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := Defaults()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	t.Parallel()

	s := Defaults()
	s.Acquisition.PoolSize = 0
	s.Detector.Capacity = 0
	s.Tap.Capacity = -1

	err := ValidateSettings(s)
	require.Error(t, err)
	ve, ok := err.(ValidationError)
	require.True(t, ok)
	assert.Len(t, ve.Errors, 3)
}
