// Package observability bootstraps the process-wide zerolog logger and
// hands back an internal/obs.Logger wired to it, so callers depend on
// this module's narrow logging interface rather than on zerolog
// directly. Adapted from
// manifold/internal/observability/logging.go's InitLogger bootstrap,
// re-pointed at this module's config.LoggingConfig and obs.Logger
// instead of bare logPath/level strings.
package observability

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chunkr/internal/config"
	"chunkr/internal/obs"
)

// Init configures the global zerolog logger from cfg and returns it
// wrapped as an obs.Logger. If cfg.Path is non-empty, logs are written
// only to that file (append mode) rather than stdout, matching the
// teacher's "don't interfere with an interactive UI on stdout" choice;
// a failing open falls back to stdout and the failure is reported to
// stderr rather than treated as fatal, since logging must never be why
// a chunk or insert run aborts.
func Init(cfg config.LoggingConfig) obs.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if cfg.Path != "" {
		if f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", cfg.Path, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	// Redirect the standard library logger (used by cmd/chunkr's
	// log.Fatalf calls) into zerolog so a single run produces one log
	// stream.
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	return obs.NewZerologLogger(log.Logger)
}

// parseLevel maps a configured level name to a zerolog.Level,
// tolerating the "warning" alias and defaulting to info on anything
// unrecognized or empty rather than failing startup over a log-level
// typo.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
