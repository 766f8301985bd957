package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines a minimal, printf-style logging contract.
//
// It intentionally stays this small so packages can depend on it without
// pulling in the zap configuration that backs it.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

var (
	rootLogger *zap.SugaredLogger
	rootOnce   sync.Once
)

func root() *zap.SugaredLogger {
	rootOnce.Do(func() {
		level := zapcore.InfoLevel
		switch strings.ToLower(os.Getenv("DOCQUERY_LOG_LEVEL")) {
		case "debug":
			level = zapcore.DebugLevel
		case "warn":
			level = zapcore.WarnLevel
		case "error":
			level = zapcore.ErrorLevel
		}

		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.OutputPaths = []string{"stderr"}
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		logger, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Last resort: keep the process alive with a no-op core.
			logger = zap.NewNop()
		}
		rootLogger = logger.Sugar()
	})
	return rootLogger
}

type componentLogger struct {
	sugar *zap.SugaredLogger
}

// NewComponentLogger returns the application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{sugar: root().Named(component)}
}

func (l *componentLogger) Debug(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.sugar.Errorf(format, args...) }

// Sync flushes any buffered log entries. Safe to call on exit.
func Sync() {
	if rootLogger != nil {
		_ = rootLogger.Sync()
	}
}
