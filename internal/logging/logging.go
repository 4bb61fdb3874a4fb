// Package logging owns the service's log files: one rotating file per component,
// optionally tee'd to stderr, plus the truncation helpers behind `logs clear`.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kang-git/threejs-sync-server/internal/config"
	"github.com/kang-git/threejs-sync-server/internal/logfields"
)

// Manager hands out component loggers backed by rotating files.
type Manager struct {
	cfg     config.LoggingConfig
	console io.Writer

	mu    sync.Mutex
	files map[string]*lumberjack.Logger
}

// NewManager creates a Manager. Nothing is opened until Logger is called.
func NewManager(cfg config.LoggingConfig) *Manager {
	m := &Manager{cfg: cfg, files: make(map[string]*lumberjack.Logger)}
	if cfg.ConsoleEnabled() {
		m.console = os.Stderr
	}
	return m
}

// Logger returns a logger writing to <dir>/<component>.log.
func (m *Manager) Logger(component string) *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[component]
	if !ok {
		f = &lumberjack.Logger{
			Filename:   filepath.Join(m.cfg.Dir, component+".log"),
			MaxSize:    m.cfg.MaxSizeMB,
			MaxBackups: m.cfg.MaxBackups,
			Compress:   m.cfg.Compress,
		}
		m.files[component] = f
	}

	var w io.Writer = f
	if m.console != nil {
		w = io.MultiWriter(m.console, f)
	}
	return slog.New(NewHandler(w, m.cfg)).With(logfields.Component(component))
}

// Close closes every open log file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for name, f := range m.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(m.files, name)
	}
	return first
}

// NewHandler builds the configured slog handler over w.
func NewHandler(w io.Writer, cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: Level(cfg.Level)}
	if cfg.Format == config.LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Level maps a configured level onto slog.
func Level(l config.LogLevel) slog.Level {
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
