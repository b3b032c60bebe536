// Package logging builds the zerolog loggers used by the commands.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel parses a level name case-insensitively. Unknown or empty names
// fall back to info.
func ParseLevel(level string) zerolog.Level {
	ll, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || ll == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return ll
}

// New returns a console logger writing to w at the given level.
func New(level string, w io.Writer) zerolog.Logger {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	return logger.Level(ParseLevel(level))
}

// ValidLevel reports whether level names a zerolog level.
func ValidLevel(level string) bool {
	_, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	return err == nil
}
