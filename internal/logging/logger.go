// Package logging owns the process-wide zap logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"panelqa-runner/internal/config"
)

var (
	global atomic.Pointer[zap.Logger]
	once   sync.Once
)

// Initialize installs the global logger. Only the first call has effect.
// Console output goes to stderr because stdout carries MCP stdio traffic.
func Initialize(cfg config.LoggerConfig, serviceName string) *zap.Logger {
	once.Do(func() {
		global.Store(build(cfg, serviceName, zapcore.Lock(os.Stderr)))
	})
	return L()
}

// New builds a logger writing to w and, when configured, the rotating file.
// Tests use it to capture output without touching the global.
func New(cfg config.LoggerConfig, serviceName string, w io.Writer) *zap.Logger {
	return build(cfg, serviceName, zapcore.AddSync(w))
}

func build(cfg config.LoggerConfig, serviceName string, console zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	var cores []zapcore.Core
	if cfg.Console || cfg.File == "" {
		cores = append(cores, zapcore.NewCore(encoder(cfg.Format), console, level))
	}
	if cfg.File != "" {
		// the file sink is always JSON
		file := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(encoder("json"), file, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
	if serviceName != "" {
		logger = logger.Named(serviceName)
	}
	return logger
}

func encoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	if strings.EqualFold(format, "json") {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

// L returns the global logger, or a no-op logger before Initialize.
func L() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// Sync flushes the global logger.
func Sync() {
	if l := global.Load(); l != nil {
		_ = l.Sync()
	}
}

// ResetForTest clears the global logger so Initialize runs again.
func ResetForTest() {
	global.Store(nil)
	once = sync.Once{}
}
