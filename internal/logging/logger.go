package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the root logger. Level parsing is forgiving: an unknown level
// falls back to info rather than failing startup.
func New(level string, debug bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)
	if debug {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}
