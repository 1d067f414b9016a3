package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":            zerolog.InfoLevel,
		"debug":       zerolog.DebugLevel,
		"dev":         zerolog.DebugLevel,
		"WARN":        zerolog.WarnLevel,
		"production":  zerolog.ErrorLevel,
		"nonsense":    zerolog.InfoLevel,
		"trace":       zerolog.TraceLevel,
		"development": zerolog.DebugLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
