// Package logger provides basic logging functionalities.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines a simple interface for logging.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// zapLogger adapts a zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new Logger writing console-encoded lines to stdout.
// loglevel could be "debug", "info", "warn", "error", "fatal"
func NewLogger(logLevel string) Logger {
	return &zapLogger{sugar: build(parseLevel(logLevel)).Sugar()}
}

func build(level zapcore.LevelEnabler) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		level,
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

func parseLevel(logLevel string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(logLevel))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func (l *zapLogger) Debug(args ...interface{})                 { l.sugar.Debug(args...) }
func (l *zapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Info(args ...interface{})                  { l.sugar.Info(args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warn(args ...interface{})                  { l.sugar.Warn(args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Error(args ...interface{})                 { l.sugar.Error(args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Fatal(args ...interface{})                 { l.sugar.Fatal(args...) }
func (l *zapLogger) Fatalf(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }

// level is shared by the global logger and every logger derived from Zap,
// so a level change reaches components that were handed a logger earlier.
var (
	mu    sync.RWMutex
	level        = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base         = build(level)
	std   Logger = &zapLogger{sugar: base.Sugar()}
)

// SetGlobalLogLevel changes the level of the global logger and of every
// logger obtained from Zap.
func SetGlobalLogLevel(logLevel string) {
	level.SetLevel(parseLevel(logLevel))
}

// Zap returns the structured logger behind the global std logger, for
// components that take an injected *zap.Logger.
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if err := base.Sync(); err != nil && !strings.Contains(err.Error(), "sync /dev/stdout") {
		fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
	}
}

func global() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// Debug logs a debug message using the global std logger.
func Debug(args ...interface{}) {
	global().Debug(args...)
}

// Debugf logs a debug message with formatting.
func Debugf(format string, args ...interface{}) {
	global().Debugf(format, args...)
}

// Info logs an informational message using the global std logger.
func Info(args ...interface{}) {
	global().Info(args...)
}

// Infof logs an informational message with formatting.
func Infof(format string, args ...interface{}) {
	global().Infof(format, args...)
}

// Warn logs a warning message.
func Warn(args ...interface{}) {
	global().Warn(args...)
}

// Warnf logs a warning message with formatting.
func Warnf(format string, args ...interface{}) {
	global().Warnf(format, args...)
}

// Error logs an error message.
func Error(args ...interface{}) {
	global().Error(args...)
}

// Errorf logs an error message with formatting.
func Errorf(format string, args ...interface{}) {
	global().Errorf(format, args...)
}

// Fatal logs a fatal error message and exits.
func Fatal(args ...interface{}) {
	global().Fatal(args...)
}

// Fatalf logs a fatal error message with formatting and exits.
func Fatalf(format string, args ...interface{}) {
	global().Fatalf(format, args...)
}
