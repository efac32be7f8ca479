// Package logger provides structured logging for authfuzz
package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger wraps logrus.Logger with scan-oriented helpers
type Logger struct {
	*logrus.Logger
}

// RotateOptions controls the optional rotating log file.
type RotateOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogger creates a new structured logger
func NewLogger(level logrus.Level) *Logger {
	logger := logrus.New()
	logger.SetLevel(level)

	// JSON in production, human readable text everywhere else
	if os.Getenv("ENV") == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	if path := os.Getenv("AUTHFUZZ_LOG_FILE"); path != "" {
		logger.SetOutput(rotatingWriter(RotateOptions{Path: path}))
	}

	return &Logger{Logger: logger}
}

// WithRotation tees log output into a size-rotated file.
func (l *Logger) WithRotation(opts RotateOptions) *Logger {
	if opts.Path == "" {
		return l
	}
	l.Logger.SetOutput(rotatingWriter(opts))
	return l
}

func rotatingWriter(opts RotateOptions) io.Writer {
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 50
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 5
	}
	if opts.MaxAgeDays == 0 {
		opts.MaxAgeDays = 14
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	})
}

// WithScan tags entries with the scan they belong to
func (l *Logger) WithScan(scanID string) *logrus.Entry {
	return l.Logger.WithField("scan_id", scanID)
}

// WithStrategy adds strategy and endpoint identity to the entry
func (l *Logger) WithStrategy(strategy, endpoint string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"strategy": strategy,
		"endpoint": endpoint,
	})
}

// WithError adds error context to the logger
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}

// Timed logs the start and end of fn under the given action name
func (l *Logger) Timed(action string, fields Fields, fn func() error) error {
	start := time.Now()
	entry := l.WithFields(fields).WithField("action", action)
	entry.Debug("started")

	err := fn()
	entry = entry.WithField("duration", time.Since(start).String())
	if err != nil {
		entry.WithError(err).Error("failed")
	} else {
		entry.Debug("completed")
	}
	return err
}

var defaultLogger = NewLogger(logrus.InfoLevel)

// Default returns the process-wide logger
func Default() *Logger {
	return defaultLogger
}

// SetLevel sets the log level for the default logger
func SetLevel(level logrus.Level) {
	defaultLogger.SetLevel(level)
}

func Info(args ...interface{}) {
	defaultLogger.Info(args...)
}

func Infof(format string, args ...interface{}) {
	defaultLogger.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	defaultLogger.Warnf(format, args...)
}

func Error(args ...interface{}) {
	defaultLogger.Error(args...)
}

func Errorf(format string, args ...interface{}) {
	defaultLogger.Errorf(format, args...)
}

// WithFields returns an entry with the specified fields using the default logger
func WithFields(fields Fields) *logrus.Entry {
	return defaultLogger.WithFields(fields)
}
