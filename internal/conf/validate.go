// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateAcquisitionSettings,
		validateFilterSettings,
		validateDetectorSettings,
		validatePipelineSettings,
		validateCorrelatorSettings,
		validateEventSettings,
		validateTapSettings,
		validateLogSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	// If there are any errors, return the ValidationError
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAcquisitionSettings(s *Settings) error {
	var errs []string
	a := &s.Acquisition

	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Sprintf("acquisition sample rate must be positive, got %d", a.SampleRate))
	}
	if a.BlockLength <= 0 || a.BlockLength%Channels != 0 {
		errs = append(errs, fmt.Sprintf("acquisition block length must be a positive multiple of %d, got %d", Channels, a.BlockLength))
	}
	if a.PoolSize <= 0 {
		errs = append(errs, fmt.Sprintf("acquisition pool size must be positive, got %d", a.PoolSize))
	}

	return joinErrors(errs)
}

// validateFilterSettings checks ranges only. Gain and coefficient limits
// that depend on the kernel are checked when the filters are built.
func validateFilterSettings(s *Settings) error {
	var errs []string
	f := &s.Filter

	if f.CIC.Order < 1 || f.CIC.Order > 8 {
		errs = append(errs, fmt.Sprintf("cic order must be between 1 and 8, got %d", f.CIC.Order))
	}
	if f.CIC.Decimation < 2 || f.CIC.Decimation > 64 {
		errs = append(errs, fmt.Sprintf("cic decimation must be between 2 and 64, got %d", f.CIC.Decimation))
	}

	if f.FIR.Decimation < 1 {
		errs = append(errs, fmt.Sprintf("fir decimation must be at least 1, got %d", f.FIR.Decimation))
	}
	if f.FIR.GainBits < 1 || f.FIR.GainBits > 24 {
		errs = append(errs, fmt.Sprintf("fir gain bits must be between 1 and 24, got %d", f.FIR.GainBits))
	}
	if len(f.FIR.Coefficients) > 128 {
		errs = append(errs, fmt.Sprintf("fir accepts at most 128 coefficients, got %d", len(f.FIR.Coefficients)))
	}
	if f.FIR.Taps < 0 || f.FIR.Taps > 128 {
		errs = append(errs, fmt.Sprintf("fir taps must be between 0 and 128, got %d", f.FIR.Taps))
	}
	if f.FIR.Taps > 0 && (f.FIR.Cutoff <= 0 || f.FIR.Cutoff >= 0.5) {
		errs = append(errs, fmt.Sprintf("fir cutoff must be in (0, 0.5) when taps are set, got %v", f.FIR.Cutoff))
	}

	if f.DCBlocker.Enabled {
		if !(f.DCBlocker.Pole > 0 && f.DCBlocker.Pole < 1) {
			errs = append(errs, fmt.Sprintf("dc blocker pole must be in (0, 1), got %v", f.DCBlocker.Pole))
		}
		if f.DCBlocker.BaseShift < 8 || f.DCBlocker.BaseShift > 24 {
			errs = append(errs, fmt.Sprintf("dc blocker base shift must be between 8 and 24, got %d", f.DCBlocker.BaseShift))
		}
		if f.DCBlocker.Preinit < -1 || f.DCBlocker.Preinit > 0xffff {
			errs = append(errs, fmt.Sprintf("dc blocker preinit must be -1 or a sample value, got %d", f.DCBlocker.Preinit))
		}
	}

	return joinErrors(errs)
}

func validateDetectorSettings(s *Settings) error {
	var errs []string

	if s.Detector.MinLength == 0 {
		errs = append(errs, "detector minimum length must be at least 1")
	}
	if s.Detector.Capacity <= 0 {
		errs = append(errs, fmt.Sprintf("detector capacity must be positive, got %d", s.Detector.Capacity))
	}

	return joinErrors(errs)
}

func validatePipelineSettings(s *Settings) error {
	var errs []string
	p := &s.Pipeline

	if p.BlockLength <= 0 {
		errs = append(errs, fmt.Sprintf("pipeline block length must be positive, got %d", p.BlockLength))
	}
	if p.PoolSize <= 0 {
		errs = append(errs, fmt.Sprintf("pipeline pool size must be positive, got %d", p.PoolSize))
	}
	if p.ReceiveTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("pipeline receive timeout must be positive, got %v", p.ReceiveTimeout))
	}
	if p.Results <= 0 {
		errs = append(errs, fmt.Sprintf("pipeline results queue must be positive, got %d", p.Results))
	}

	return joinErrors(errs)
}

func validateCorrelatorSettings(s *Settings) error {
	var errs []string
	c := &s.Correlator

	switch c.Trigger {
	case TriggerPeriodic, TriggerDetector, TriggerBoth:
	default:
		errs = append(errs, fmt.Sprintf("correlator trigger must be one of %s, %s, %s, got %q",
			TriggerPeriodic, TriggerDetector, TriggerBoth, c.Trigger))
	}

	bufA, bufB := s.Samples(c.BufferA), s.Samples(c.BufferB)
	offMin, offMax := s.Samples(c.OffsetMin), s.Samples(c.OffsetMax)
	if bufA <= 0 || bufB <= 0 {
		errs = append(errs, fmt.Sprintf("correlator buffers must hold at least one sample, got %d and %d", bufA, bufB))
	}
	if offMin < 0 || offMax <= offMin {
		errs = append(errs, fmt.Sprintf("correlator offset range [%v, %v) is empty", c.OffsetMin, c.OffsetMax))
	}
	if bufB+offMax > bufA {
		errs = append(errs, fmt.Sprintf("correlator buffer a (%v) must cover buffer b (%v) plus the maximum offset (%v)",
			c.BufferA, c.BufferB, c.OffsetMax))
	}
	if s.Samples(c.BinWidth) <= 0 {
		errs = append(errs, fmt.Sprintf("correlator bin width %v is shorter than one sample", c.BinWidth))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("correlator interval must be positive, got %v", c.Interval))
	}
	if c.Settle < 0 || c.MinInterval < 0 {
		errs = append(errs, "correlator settle and minimum interval must not be negative")
	}
	if c.Results <= 0 {
		errs = append(errs, fmt.Sprintf("correlator results queue must be positive, got %d", c.Results))
	}

	return joinErrors(errs)
}

func validateEventSettings(s *Settings) error {
	e := &s.Events
	if !e.Enabled {
		return nil
	}

	var errs []string
	if e.Bins <= 0 {
		errs = append(errs, fmt.Sprintf("event bins must be positive, got %d", e.Bins))
	}
	if s.Samples(e.MaxDelay) < e.Bins {
		errs = append(errs, fmt.Sprintf("event max delay %v is shorter than %d samples", e.MaxDelay, e.Bins))
	}
	if e.Horizon < e.MaxDelay {
		errs = append(errs, fmt.Sprintf("event horizon %v must cover the max delay %v", e.Horizon, e.MaxDelay))
	}
	if e.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("event interval must be positive, got %v", e.Interval))
	}
	if e.Batch <= 0 || e.Window <= 0 || e.Results <= 0 {
		errs = append(errs, "event batch, window and results sizes must be positive")
	}

	return joinErrors(errs)
}

func validateTapSettings(s *Settings) error {
	if s.Tap.Capacity <= 0 {
		return fmt.Errorf("tap capacity must be positive, got %d", s.Tap.Capacity)
	}
	return nil
}

func validateLogSettings(s *Settings) error {
	switch strings.ToLower(s.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", s.Log.Level)
	}
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}
