// Package logger builds the zap loggers used across the service. Every line is
// a single JSON object with ts, level and msg keys.
package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New returns a JSON logger writing to stdout. Development mode logs at debug
// level with callers; anything else logs at info.
func New(mode string) *zap.Logger {
	level := zapcore.InfoLevel
	var opts []zap.Option
	switch strings.ToLower(mode) {
	case "dev", "development", "local":
		level = zapcore.DebugLevel
		opts = append(opts, zap.AddCaller())
	}
	return NewWithWriter(os.Stdout, level, opts...)
}

// NewWithWriter returns a JSON logger writing to w at the given level.
func NewWithWriter(w io.Writer, level zapcore.Level, opts ...zap.Option) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core, opts...)
}
