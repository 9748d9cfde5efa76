// Package runtime holds the options shared by every subcommand.
package runtime

import (
	"log/slog"

	"github.com/drksbr/xmlabridge/internal/logger"
)

// Options carries the global flag values and the logger they produce.
type Options struct {
	JSONLogs bool
	LogLevel string

	log *slog.Logger
}

// SetupLogger builds the process logger from the global flags.
func (o *Options) SetupLogger() error {
	format := logger.FormatText
	if o.JSONLogs {
		format = logger.FormatJSON
	}
	l, err := logger.New(logger.Config{
		Format: format,
		Level:  o.LogLevel,
	})
	if err != nil {
		return err
	}
	o.log = l.Logger
	return nil
}

// Logger returns the configured logger, or nil before SetupLogger runs.
func (o *Options) Logger() *slog.Logger {
	return o.log
}
