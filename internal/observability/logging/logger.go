// Package logging provides structured logging with zerolog.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
	Output     io.Writer
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithRequest derives a logger carrying the chi request id found in ctx.
func WithRequest(base zerolog.Logger, ctx context.Context) zerolog.Logger {
	reqID := middleware.GetReqID(ctx)
	if reqID == "" {
		return base
	}
	return base.With().
		Str("requestId", reqID).
		Logger()
}

// WithCall returns a logger with conversation context.
func WithCall(base zerolog.Logger, conversationID, agentID string) zerolog.Logger {
	ctx := base.With()
	if conversationID != "" {
		ctx = ctx.Str("conversationId", conversationID)
	}
	if agentID != "" {
		ctx = ctx.Str("agentId", agentID)
	}
	return ctx.Logger()
}
