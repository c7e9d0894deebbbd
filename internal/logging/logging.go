// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"Go2NetPulse/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init applies the level, format and output from cfg to the standard logrus logger.
func Init(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logrus.SetOutput(output(cfg))
	return nil
}

func output(cfg config.LogConfig) io.Writer {
	if cfg.File == "" {
		return os.Stdout
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays, // days
		Compress:   cfg.Compress,
	}
	return io.MultiWriter(os.Stdout, file)
}

// For returns a logger entry tagged with the component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
