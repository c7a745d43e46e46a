// Package obslog wires zerolog as the module's structured logger and
// exposes a small OpenTelemetry counter for LLM token spend, following a
// RecordTokenMetrics-style pattern for recording per-call usage.
package obslog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Init configures the global zerolog logger from LOG_LEVEL/LOG_PATH; zerolog
// is the logging library the rest of internal/ standardizes on.
func Init(level, logPath string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stdout
	if strings.TrimSpace(logPath) != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = io.MultiWriter(os.Stdout, f)
		}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log = logger
	return logger
}

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Logger returns the process-wide logger. Init must have run first for
// level/output configuration; the zero-value logger is a safe fallback for
// tests that never call Init.
func Logger() *zerolog.Logger { return &log }
