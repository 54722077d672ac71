// Package logging builds the structured zap loggers shared by service commands.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// New returns a console logger writing ISO8601 timestamps to stdout at level.
func New(level string) (*zap.Logger, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.AddSync(os.Stdout),
		parsed,
	)
	return zap.New(core, zap.AddCaller()), nil
}

// ParseLevel maps a configured level name onto a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = DefaultLevel
	}
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("parse log level %q: %w", level, err)
	}
	return parsed, nil
}

// Service returns logger scoped to one named service.
func Service(logger *zap.Logger, service string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.Named(service).With(zap.String("service", service))
}

// Printf adapts logger to the printf-style callbacks used by platform helpers.
func Printf(logger *zap.Logger) func(string, ...any) {
	if logger == nil {
		return func(string, ...any) {}
	}
	sugar := logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
	return func(format string, args ...any) {
		sugar.Infof(format, args...)
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
}
