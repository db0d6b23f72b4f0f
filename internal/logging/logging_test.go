package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"campusmarket/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, config.Logging{Level: "debug", Format: "json"}))

	logger.Warn("escrow released", "escrow_id", "e-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["severity"])
	assert.Equal(t, "escrow released", line["message"])
	assert.Equal(t, "e-1", line["escrow_id"])
	assert.Contains(t, line, "timestamp")
}

func TestHandlerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, config.Logging{Level: "error"}))

	logger.Info("ignored")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
