// Package log configures the process-wide logrus logger.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the global logger. Zero value logs at info level to
// stdout in text format.
type Config struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"` // text | json
	File   FileConfig `mapstructure:"file"`
}

// FileConfig enables rotated file output in addition to stdout.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Init builds the global logger from configuration. It is safe to call
// before any GetLogger use; without it the logrus defaults apply.
func Init(cfg Config) error {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		level = parsed
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unsupported log format: %s (must be text or json)", cfg.Format)
	}

	writers := []io.Writer{os.Stdout}
	if cfg.File.Path != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}
	logrus.SetOutput(io.MultiWriter(writers...))

	return nil
}

// GetLogger returns the configured logger.
func GetLogger() logrus.FieldLogger {
	return logrus.StandardLogger()
}
