package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation limits for the rolling log file.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
)

// RollingFile describes a size-rotated log file.
type RollingFile struct {
	// Path is the active log file; rotated copies are kept next to it.
	Path string
	// MaxSizeMB is the size in megabytes that triggers rotation.
	MaxSizeMB int
	// MaxBackups is how many rotated files are retained.
	MaxBackups int
}

// NewWithFile creates a logger that writes to the console and, as JSON lines, to a rolling file.
// The returned close function flushes and closes the file.
func NewWithFile(level zapcore.LevelEnabler, file RollingFile, options ...zap.Option) (*zap.SugaredLogger, func() error) {
	if level == nil {
		level = defaultLevel
	}

	if file.MaxSizeMB <= 0 {
		file.MaxSizeMB = DefaultMaxSizeMB
	}

	if file.MaxBackups <= 0 {
		file.MaxBackups = DefaultMaxBackups
	}

	sink := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
	}

	fileEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "time",
		MessageKey:     "message",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(sink), level),
	)

	l := zap.New(core, options...).Sugar()

	return l, func() error {
		_ = l.Sync()

		return sink.Close()
	}
}
