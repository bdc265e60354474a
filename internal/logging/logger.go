// Package logging provides structured logging for the sync agent.
//
// The package keeps a process-wide logger initialized once at startup.
// Output is JSON to stderr; when a file path is configured the log is
// additionally written to a size-rotated file.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the global logger.
type Options struct {
	Level string // debug, info, warn, error
	File  string // optional log file, rotated at MaxSizeMB
}

var (
	global *zap.Logger
	once   sync.Once
)

// Init initializes the global logger. Safe to call more than once; only the
// first call takes effect.
func Init(opts Options) {
	once.Do(func() {
		global = build(opts)
	})
}

// Get returns the global logger, initializing a default one if needed.
func Get() *zap.Logger {
	if global == nil {
		Init(Options{Level: "info"})
	}
	return global
}

func build(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}
	if opts.File != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}))
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core)
}

// Convenience functions using the global logger.

func Debug(message string, fields ...zap.Field) {
	Get().Debug(message, fields...)
}

func Info(message string, fields ...zap.Field) {
	Get().Info(message, fields...)
}

func Warn(message string, fields ...zap.Field) {
	Get().Warn(message, fields...)
}

func Error(message string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	Get().Error(message, fields...)
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}
