// Package pipeline wires the filter chains, detectors and correlators of the
// two sensor channels into a running signal chain.
package pipeline

import (
	"log/slog"
	"sync"

	"github.com/avlk/oppc-aux-sw/internal/logging"
)

var (
	logger         *slog.Logger
	loggerInitOnce sync.Once
)

// GetLogger returns the package logger. The service logger is used once
// logging is initialized, slog.Default otherwise.
func GetLogger() *slog.Logger {
	loggerInitOnce.Do(func() {
		logger = logging.ForService("pipeline")
		if logger == nil {
			logger = slog.Default().With("service", "pipeline")
		}
	})
	return logger
}
