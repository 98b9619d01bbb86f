package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	for level, want := range map[string]zerolog.Level{
		"debug":  zerolog.DebugLevel,
		" WARN ": zerolog.WarnLevel,
		"":       zerolog.InfoLevel,
		"chatty": zerolog.InfoLevel,
		"error":  zerolog.ErrorLevel,
	} {
		assert.Equal(t, want, New(&bytes.Buffer{}, level, false).GetLevel(), level)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", false)
	log.Debug().Msg("hidden")
	log.Info().Str("host", "example.com").Msg("attached")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "attached", line["message"])
	assert.Equal(t, "example.com", line["host"])
	assert.Contains(t, line, "time")
}

func TestNewPretty(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", true)
	log.Info().Msg("attached")
	assert.Contains(t, buf.String(), "attached")
	assert.NotContains(t, buf.String(), `"message"`)
}
