package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	// FormatZerolog emits JSON through zerolog.
	FormatZerolog = "zerolog"
)

// New builds a Logger writing to out in the given format at the given level
// (debug, info, warn, error). Values of secret keys such as "password" or
// "refresh_token" are written as Redacted.
func New(format, level string, out io.Writer) (Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "", FormatText:
		return newSlog(false, out, lvl), nil
	case FormatJSON:
		return newSlog(true, out, lvl), nil
	case FormatZerolog:
		zl := zerolog.New(out).Level(zerologLevel(lvl)).With().Timestamp().Logger()
		return NewZerologLogger(zl), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l <= slog.LevelDebug:
		return zerolog.DebugLevel
	case l <= slog.LevelInfo:
		return zerolog.InfoLevel
	case l <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
