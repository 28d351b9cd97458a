// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package commons

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logger shared by every service package.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})

	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})

	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Fatalf(template string, args ...interface{})

	// With returns a child logger carrying the given key/value pairs.
	With(keysAndValues ...interface{}) Logger
	Sync() error
}

type applicationLogger struct {
	*zap.SugaredLogger
}

func (l *applicationLogger) With(keysAndValues ...interface{}) Logger {
	return &applicationLogger{l.SugaredLogger.With(keysAndValues...)}
}

type loggerOptions struct {
	name       string
	path       string
	level      string
	console    bool
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
}

type Option func(*loggerOptions)

// Name sets the logger name and the log file base name.
func Name(name string) Option {
	return func(o *loggerOptions) { o.name = name }
}

// Path sets the directory for rotated log files. Empty disables file output.
func Path(path string) Option {
	return func(o *loggerOptions) { o.path = path }
}

// Level sets the minimum level ("debug", "info", "warn", "error").
func Level(level string) Option {
	return func(o *loggerOptions) { o.level = level }
}

// Console toggles the stderr console core.
func Console(enabled bool) Option {
	return func(o *loggerOptions) { o.console = enabled }
}

// Rotation configures lumberjack rotation limits.
func Rotation(maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *loggerOptions) {
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
		o.maxAgeDays = maxAgeDays
	}
}

// NewApplicationLogger builds a zap logger that writes JSON to a rotated file
// under Path and human readable lines to stderr.
func NewApplicationLogger(opts ...Option) (Logger, error) {
	o := &loggerOptions{
		name:       "rapida",
		level:      "info",
		console:    true,
		maxSizeMB:  100,
		maxBackups: 5,
		maxAgeDays: 28,
	}
	for _, opt := range opts {
		opt(o)
	}

	lvl, err := zapcore.ParseLevel(o.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.level, err)
	}
	atomicLevel := zap.NewAtomicLevelAt(lvl)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if o.path != "" {
		if err := os.MkdirAll(o.path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", o.path, err)
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(o.path, o.name+".log"),
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
			MaxAge:     o.maxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			atomicLevel,
		))
	}
	if o.console {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.Lock(os.Stderr),
			atomicLevel,
		))
	}
	if len(cores) == 0 {
		return NewNopLogger(), nil
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Named(o.name)
	return &applicationLogger{zl.Sugar()}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &applicationLogger{zap.NewNop().Sugar()}
}
