package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kang-git/threejs-sync-server/internal/config"
)

func quiet() *bool { b := false; return &b }

func TestManagerWritesPerComponentFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(config.LoggingConfig{Dir: dir, Level: config.LogLevelInfo, Format: config.LogFormatJSON, MaxSizeMB: 1, MaxBackups: 1, Console: quiet()})

	m.Logger("sync").Info("pulled", "source", "github")
	m.Logger("build").Debug("hidden")
	m.Logger("build").Warn("degraded")
	require.NoError(t, m.Close())

	syncLog, err := os.ReadFile(filepath.Join(dir, "sync.log"))
	require.NoError(t, err)
	assert.Contains(t, string(syncLog), `"msg":"pulled"`)
	assert.Contains(t, string(syncLog), `"component":"sync"`)

	buildLog, err := os.ReadFile(filepath.Join(dir, "build.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(buildLog), "hidden")
	assert.Contains(t, string(buildLog), "degraded")
}

func TestNewHandlerFormats(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, config.LoggingConfig{Format: config.LogFormatText, Level: config.LogLevelDebug})).Debug("hello")
	assert.True(t, strings.Contains(buf.String(), "msg=hello"), buf.String())
	assert.Equal(t, slog.LevelError, Level(config.LogLevelError))
	assert.Equal(t, slog.LevelInfo, Level("bogus"))
}

func TestClearLog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sync.log"), []byte("data"), 0o600))

	existed, err := ClearLog(dir, "sync")
	require.NoError(t, err)
	assert.True(t, existed)
	info, err := os.Stat(filepath.Join(dir, "sync.log"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	existed, err = ClearLog(dir, "missing")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = ClearLog(dir, "../etc/passwd")
	assert.Error(t, err)
}

func TestClearAll(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"sync.log", "build.log", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o600))
	}

	res, err := ClearAll(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"build.log", "sync.log"}, res.Cleared)
	assert.Empty(t, res.Failed)

	txt, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(txt))

	res, err = ClearAll(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, res.Cleared)
}
