package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/pixelfit/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. Every record carries component so API and
// worker output can share a sink.
func New(cfg config.LogConfig, component string) zerolog.Logger {
	return NewWithWriter(cfg, component, os.Stderr)
}

func NewWithWriter(cfg config.LogConfig, component string, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var console io.Writer = out
	if strings.EqualFold(cfg.Format, "console") {
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	writer := console
	if file := strings.TrimSpace(cfg.File); file != "" {
		writer = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    max(1, cfg.MaxSizeMB),
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
