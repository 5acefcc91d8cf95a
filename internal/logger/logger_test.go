package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestHandlerFormatAndFilter(t *testing.T) {
	var buf bytes.Buffer
	SetLevel(slog.LevelInfo)
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	log := slog.New(NewHandler(&buf)).With("component", "inclusion")

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.Warn("storage desync", "shard", 7)

	out := buf.String()
	assert.Contains(t, out, "[WRN] storage desync")
	assert.Contains(t, out, "component=inclusion")
	assert.Contains(t, out, "shard=7")
}
