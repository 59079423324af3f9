// Package common contains shared configuration helpers for the command
// line tools.
package common

import (
	"log/slog"
	"os"
)

// PackageName identifies this module in logs.
const PackageName = "sev-launch-kit"

// Version is set at build time via ldflags.
var Version = "dev"

// LoggingOpts configure the process logger.
type LoggingOpts struct {
	// Debug lowers the log level to debug.
	Debug bool

	// JSON switches to JSON output.
	JSON bool

	// Service is added as a field to every record if set.
	Service string

	// Version is added as a field to every record if set.
	Version string
}

// SetupLogger builds the process-wide slog logger.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
