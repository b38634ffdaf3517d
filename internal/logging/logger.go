// Package logging provides structured logging with zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	File   string // empty writes to stdout, or stderr when Stderr is set
	Stderr bool
}

func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init configures the global zerolog logger. The returned closer releases the
// log file, if any.
func Init(cfg Config) (io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Stderr {
		out = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = f
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: cfg.File != ""}
	}

	log.Logger = zerolog.New(out).
		With().
		Timestamp().
		Str("service", "koewake").
		Logger()
	return closer, nil
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithRecording returns a logger scoped to one recording.
func WithRecording(component, recordingID string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Str("recordingId", recordingID).
		Logger()
}
