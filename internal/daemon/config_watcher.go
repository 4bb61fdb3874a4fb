package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kang-git/threejs-sync-server/internal/config"
	"github.com/kang-git/threejs-sync-server/internal/logfields"
)

// ReloadFunc applies a freshly loaded configuration.
type ReloadFunc func(ctx context.Context, cfg *config.Config) error

// ConfigWatcher monitors the configuration file and reloads it on change.
type ConfigWatcher struct {
	configPath string
	apply      ReloadFunc
	logger     *slog.Logger
	watcher    *fsnotify.Watcher
	debounce   time.Duration

	reloadCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConfigWatcher creates a watcher for configPath.
func NewConfigWatcher(configPath string, apply ReloadFunc, logger *slog.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &ConfigWatcher{
		configPath: absPath,
		apply:      apply,
		logger:     logger,
		watcher:    w,
		debounce:   2 * time.Second,
		reloadCh:   make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}, nil
}

// Start watches the directory holding the config file. Editors often replace
// the file instead of writing it, which a file-level watch would miss.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}
	cw.logger.Info("Starting configuration watcher", logfields.Path(cw.configPath))

	cw.wg.Add(2)
	go cw.watchLoop(ctx)
	go cw.reloadLoop(ctx)
	return nil
}

// Stop ends both loops and closes the fsnotify watcher.
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		close(cw.stopCh)
		err = cw.watcher.Close()
		cw.wg.Wait()
	})
	return err
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	defer cw.wg.Done()
	name := filepath.Base(cw.configPath)
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
				cw.logger.Debug("Config file change detected", logfields.File(event.Name), slog.String("op", event.Op.String()))
				cw.trigger()
			case event.Has(fsnotify.Remove):
				cw.logger.Warn("Config file removed", logfields.File(event.Name))
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("Config watcher error", logfields.Error(err))
		}
	}
}

func (cw *ConfigWatcher) trigger() {
	select {
	case cw.reloadCh <- struct{}{}:
	default:
	}
}

// reloadLoop coalesces bursts of events into one reload after the debounce.
func (cw *ConfigWatcher) reloadLoop(ctx context.Context) {
	defer cw.wg.Done()
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case <-cw.reloadCh:
			timer.Reset(cw.debounce)
		case <-timer.C:
			if err := cw.reload(ctx); err != nil {
				cw.logger.Error("Failed to reload configuration", logfields.Error(err))
			}
		}
	}
}

func (cw *ConfigWatcher) reload(ctx context.Context) error {
	cw.logger.Info("Reloading configuration", logfields.Path(cw.configPath))
	cfg, err := config.Load(cw.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new configuration: %w", err)
	}
	if err := cw.apply(ctx, cfg); err != nil {
		return fmt.Errorf("failed to apply new configuration: %w", err)
	}
	return nil
}
