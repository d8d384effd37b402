// Package logging builds the zerolog logger used across the gateway.
package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/relaymesh/gateway/internal/config"
)

// New returns a configured zerolog.Logger: human-readable console output
// in development, structured JSON otherwise.
func New(cfg *config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var log zerolog.Logger
	if cfg.IsDevelopment() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return log.With().Str("service", "llm-gateway").Logger()
}
