package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the zerolog global logger. Human-friendly console output goes to
// stderr so stdout stays free for command results.
func Init(level string) {
	InitWriter(os.Stderr, level)
}

func InitWriter(w io.Writer, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel accepts zerolog names plus the dev/prod aliases.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "dev", "development":
		return zerolog.DebugLevel
	case "prod", "production":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}
