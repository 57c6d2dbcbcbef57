// Package logging - Builds the zap loggers used by every component.
package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// NewLoggerConfig returns the logger configuration for level and format.
//
// Both formats share the same keys; the console format colors levels and the json format writes
// one object per line. Stack traces are disabled.
//
// Arguments:
//   - level: A zap level name such as "debug", "info" or "warn".
//   - format: FormatConsole or FormatJSON.
//
// Returns:
//   - zap.Config: The configuration, writing to stderr.
//   - error: An error if level or format is unknown.
func NewLoggerConfig(level, format string) (zap.Config, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return zap.Config{}, errors.Wrapf(err, "invalid log level %q", level)
	}

	encodeLevel := zapcore.CapitalColorLevelEncoder
	switch format {
	case FormatConsole:
	case FormatJSON:
		encodeLevel = zapcore.LowercaseLevelEncoder
	default:
		return zap.Config{}, errors.Errorf("unknown log format %q", format)
	}

	return zap.Config{
		Level:    atomicLevel,
		Encoding: format,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    encodeLevel,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}, nil
}

// NewLogger builds a logger for level and format. See NewLoggerConfig.
func NewLogger(level, format string) (*zap.Logger, error) {
	cfg, err := NewLoggerConfig(level, format)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}
	return logger, nil
}
