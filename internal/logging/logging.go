package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

var rootLogger *slog.Logger

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Add trace and fatal level names.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// replaceLevelNames renders the custom TRACE and FATAL levels by name.
func replaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		levelLabel, exists := levelNames[level]
		if !exists {
			levelLabel = level.String()
		}
		a.Value = slog.StringValue(levelLabel)
	}
	return a
}

// Options configures the process-wide logger.
type Options struct {
	Level  slog.Level
	JSON   bool      // JSON output instead of key=value text
	Output io.Writer // defaults to os.Stderr
}

// Init configures the process-wide logger and installs it as the slog default.
func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: replaceLevelNames,
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	rootLogger = slog.New(handler)
	slog.SetDefault(rootLogger)
}

// ParseLevel maps a configuration string to a slog level. Unknown names fall
// back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "fatal":
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

// ForService creates a new logger instance with the 'service' attribute added.
// Returns nil if Init() has not been called.
func ForService(serviceName string) *slog.Logger {
	if rootLogger == nil {
		return nil
	}
	return rootLogger.With("service", serviceName)
}

// Trace logs a trace message using the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

// Rotation holds lumberjack rotation limits.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// newRotatingWriter creates the log directory and a lumberjack writer with
// rot applied over the defaults.
func newRotatingWriter(filePath string, rot Rotation) (*lumberjack.Logger, error) {
	// lumberjack doesn't create directories
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   rot.Compress,
	}
	if rot.MaxSizeMB > 0 {
		logWriter.MaxSize = rot.MaxSizeMB
	}
	if rot.MaxBackups > 0 {
		logWriter.MaxBackups = rot.MaxBackups
	}
	if rot.MaxAgeDays > 0 {
		logWriter.MaxAge = rot.MaxAgeDays
	}
	return logWriter, nil
}

// InitFile is Init with JSON output into a rotated log file. The returned
// function closes the file.
func InitFile(filePath string, level slog.Level, rot Rotation) (func() error, error) {
	logWriter, err := newRotatingWriter(filePath, rot)
	if err != nil {
		return nil, err
	}
	Init(Options{Level: level, JSON: true, Output: logWriter})
	return logWriter.Close, nil
}
