// backend-go/pkg/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	// Log is the global logger instance
	Log zerolog.Logger
)

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano
	Log = build(os.Stdout, FormatConsole)
}

// Init configures the process logger. The zerolog global logger used by the
// internal packages is pointed at the same output so every line shares one
// format and level.
func Init(level, format string) {
	Log = build(os.Stdout, format)
	SetLevel(level)
}

func build(w io.Writer, format string) zerolog.Logger {
	out := w
	if !strings.EqualFold(format, FormatJSON) {
		// Default to console output with color
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}
	return zerolog.New(out).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetLevel sets the log level. The gin modes "release" and "test" map to
// info and warn.
func SetLevel(levelStr string) {
	switch strings.ToLower(levelStr) {
	case "release":
		levelStr = "info"
	case "test":
		levelStr = "warn"
	}
	level, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil || levelStr == "" {
		Log.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	Log = Log.Level(level)
	log.Logger = Log
}
