package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"salesrep/config"
)

// Logger represents a logger instance
type Logger = *logrus.Logger

// Fields represents structured logging fields
type Fields = logrus.Fields

// Entry is a logger with fields attached
type Entry = *logrus.Entry

// NewLogger creates a logger writing to stderr.
func NewLogger(level, format string) Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(config.GetLogLevel(level))
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// NewFileLogger creates a logger that appends to path, for the TUI where stderr
// belongs to the alt screen. The returned closer releases the file.
func NewFileLogger(path, level, format string) (Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := NewLogger(level, format)
	logger.SetOutput(f)
	return logger, f, nil
}

// Discard returns a logger that drops everything; used by tests.
func Discard() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
