package httpapi

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "nearby-core"

// LoggerOptions selects the level, encoding and destination of service logs.
type LoggerOptions struct {
	Level  string
	Format string // "json" (default) or "console"
	Out    io.Writer
}

// NewLogger builds the process logger and sets the global zerolog level.
func NewLogger(opts LoggerOptions) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(opts.Level))

	return zerolog.New(out).With().Timestamp().Str("service", serviceName).Logger()
}

// parseLevel accepts zerolog level names plus "warning". Anything else is info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
