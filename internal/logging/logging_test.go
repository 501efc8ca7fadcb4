package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{
		Level:  "info",
		Format: "json",
		Output: &buf,
		Attrs:  []slog.Attr{slog.String("queue", "generate:zimage")},
	})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Job completed", "job", "j1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "Job completed", record["msg"])
	assert.Equal(t, "j1", record["job"])
	assert.Equal(t, "generate:zimage", record["queue"])
	assert.NotContains(t, record, "source")
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "TEXT", Output: &buf})
	require.NoError(t, err)

	logger.Debug("Claim miss", "queue", "generate:ltx2")
	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, `msg="Claim miss"`)
	assert.Contains(t, out, "source=")
}

func TestNew_AutoWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "auto", Output: &buf})
	require.NoError(t, err)

	logger.Warn("Failed to notify")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "buffers are not terminals, expected JSON")
}

func TestNew_UnsupportedFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
