// Package analysis runs the signal chain against a source and reports its
// results: the simulate, replay and design commands are thin wrappers
// around it.
package analysis

import (
	"log/slog"
	"sync"

	"github.com/avlk/oppc-aux-sw/internal/logging"
)

// Package-level logger for analysis runs
var (
	logger         *slog.Logger
	loggerInitOnce sync.Once
)

// GetLogger returns the analysis logger, falling back to slog.Default when
// logging has not been initialized.
func GetLogger() *slog.Logger {
	loggerInitOnce.Do(func() {
		logger = logging.ForService("analysis")
		if logger == nil {
			logger = slog.Default().With("service", "analysis")
		}
	})
	return logger
}
