package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	lvl, err := parseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = parseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func TestMuteWriter(t *testing.T) {
	var buf bytes.Buffer
	m := newMuteWriter(&buf)

	_, _ = m.Write([]byte("a"))
	m.Mute(true)
	n, err := m.Write([]byte("bc"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	m.Mute(false)
	_, _ = m.Write([]byte("d"))

	assert.Equal(t, "ad", buf.String())
}

func TestNewLoggerTeesToFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "run.log")

	log, flush, err := newLogger(logConfig{Level: "info", File: path}, &console)
	require.NoError(t, err)
	log.Debug("hidden")
	log.Info("region written", zap.Int64("offset", 4096))
	flush()

	assert.Contains(t, console.String(), "region written")
	assert.NotContains(t, console.String(), "hidden")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &line))
	assert.Equal(t, "region written", line["msg"])
	assert.Equal(t, "INFO", line["level"])
	assert.EqualValues(t, 4096, line["offset"])
}

func TestNewLoggerBadFile(t *testing.T) {
	_, _, err := newLogger(logConfig{File: filepath.Join(t.TempDir(), "missing", "run.log")}, &bytes.Buffer{})
	assert.Error(t, err)
}
