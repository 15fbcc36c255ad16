package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"panelqa-runner/internal/config"
)

func TestNewConsoleWritesNamedEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggerConfig{Level: "debug", Format: "console", Console: true}, "panelqa", &buf)
	logger.Named("navigator").Debug("clicked", zap.String("label", "Grab Bag"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "panelqa.navigator.")
	assert.Contains(t, out, "clicked")
	assert.Contains(t, out, `"label": "Grab Bag"`)
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggerConfig{Level: "warn", Format: "json", Console: true}, "", &buf)
	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	var console bytes.Buffer
	logger := New(config.LoggerConfig{Level: "info", File: path, MaxSizeMB: 1}, "svc", &console)
	logger.Info("to file")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"to file"`))
	assert.Empty(t, console.String(), "console is off when a file is configured without console")
}

func TestGlobalLifecycle(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	assert.NotNil(t, L())
	first := Initialize(config.LoggerConfig{Level: "error"}, "one")
	second := Initialize(config.LoggerConfig{Level: "debug"}, "two")
	assert.Same(t, first, second)
	Sync()
}
