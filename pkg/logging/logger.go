package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
}

type Fields map[string]any

type fieldsKey struct{}

// WithFields returns a context whose loggers carry the given fields.
func WithFields(ctx context.Context, fields Fields) context.Context {
	merged := Fields{}
	if existing, ok := ctx.Value(fieldsKey{}).(Fields); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, fieldsKey{}, merged)
}

func fieldsFromContext(ctx context.Context) Fields {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).(Fields)
	return fields
}

// LoggerFactory replaces the logrus logger returned by NewLogger, e.g. to capture logs in tests.
type LoggerFactory interface {
	CreateLogger(ctx context.Context) Logger
}

var (
	baseMu        sync.RWMutex
	baseLogger    = logrus.New()
	loggerFactory LoggerFactory
)

// SetLoggerFactory installs factory for every later NewLogger call. Nil restores logrus.
func SetLoggerFactory(factory LoggerFactory) {
	baseMu.Lock()
	defer baseMu.Unlock()
	loggerFactory = factory
}

func GetLoggerFactory() LoggerFactory {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return loggerFactory
}

// Configure sets the level and output format ("text" or "json") of the default logger.
func Configure(level string, format string, out io.Writer) error {
	lvl := logrus.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
		if err != nil {
			return err
		}
		lvl = parsed
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	baseMu.Lock()
	baseLogger = logger
	baseMu.Unlock()
	return nil
}

type logrusLogger struct {
	entry *logrus.Entry
}

func (l *logrusLogger) Debug(args ...any) {
	l.entry.Debug(args...)
}

func (l *logrusLogger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Info(args ...any) {
	l.entry.Info(args...)
}

func (l *logrusLogger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Error(args ...any) {
	l.entry.Error(args...)
}

func (l *logrusLogger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) Warn(args ...any) {
	l.entry.Warn(args...)
}

func (l *logrusLogger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Fatal(args ...any) {
	l.entry.Fatal(args...)
}

func (l *logrusLogger) Fatalf(format string, args ...any) {
	l.entry.Fatalf(format, args...)
}

func NewLogger(ctx context.Context) Logger {
	factory := GetLoggerFactory()
	if factory != nil {
		return factory.CreateLogger(ctx)
	}

	return newLogrusLogger(ctx)
}

func newLogrusLogger(ctx context.Context) Logger {
	baseMu.RLock()
	logger := baseLogger
	baseMu.RUnlock()

	entry := logrus.NewEntry(logger)
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	if fields := fieldsFromContext(ctx); len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	return &logrusLogger{entry: entry}
}
