// Package logging builds the leveled loggers every component receives.
package logging

import (
	"os"

	"github.com/zond/mudcore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string `env:"LEVEL"`
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB"`
	MaxBackups int    `env:"MAX_BACKUPS"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// New returns a logger writing to stderr, or to a rotated file if File is set.
func New(c Config) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(c.Level); err != nil {
			return nil, mudcore.WithStack(err)
		}
	}
	var sink zapcore.WriteSyncer
	if c.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), sink, level)
	return zap.New(core, zap.AddCaller()).Sugar(), nil
}

// OrNop returns log, or a logger discarding everything if log is nil.
func OrNop(log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}
