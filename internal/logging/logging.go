// Package logging configures the process-wide zerolog logger from the
// `logger` config key (spec.md §5: the logger is the one shared resource,
// safe for concurrent use by every worker goroutine).
package logging

import (
	"os"
	"strings"

	"github.com/cloudwarden/cloudwarden/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure sets the global zerolog level and writer from cfg and returns
// the configured logger.
func Configure(cfg config.LoggerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	log.Logger = logger
	return logger
}
