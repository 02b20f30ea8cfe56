// Package errors - optional error reporting
package errors

import (
	"sync"
	"sync/atomic"
)

// Reporter receives enhanced errors as they are built. The signal chain CLI
// installs one that logs construction failures; tests install recorders.
type Reporter interface {
	ReportError(err *EnhancedError)
}

// ReporterFunc adapts a plain function to the Reporter interface
type ReporterFunc func(err *EnhancedError)

// ReportError calls f(err)
func (f ReporterFunc) ReportError(err *EnhancedError) { f(err) }

var (
	hasActiveReporting atomic.Bool
	reporterMu         sync.RWMutex
	activeReporter     Reporter
)

// SetReporter installs the reporter. Passing nil disables reporting and puts
// Build back on its fast path.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	activeReporter = r
	hasActiveReporting.Store(r != nil)
}

// report hands the error to the reporter once. Validation errors are
// expected at startup and are not reported.
func report(ee *EnhancedError) {
	if ee.Category == CategoryValidation {
		return
	}

	reporterMu.RLock()
	r := activeReporter
	reporterMu.RUnlock()

	if r == nil || ee.IsReported() {
		return
	}
	r.ReportError(ee)
	ee.MarkReported()
}
