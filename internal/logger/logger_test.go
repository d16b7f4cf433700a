package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWithWriterAddsService(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "charge-scheduler", "info")

	log.Debug("hidden")
	log.Info("charge cycle finished", "processed", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "charge-scheduler", entry["service"])
	assert.Equal(t, "charge cycle finished", entry["msg"])
	assert.EqualValues(t, 3, entry["processed"])
}
