package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
)

// cronParser accepts the six-field form with a leading seconds field.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	checks := []func(*Config) error{
		validateSources,
		validateStorage,
		validateSync,
		validateBuild,
		validateServer,
		validateMonitoring,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid configuration").Fatal().Build()
		}
	}
	return nil
}

func validateSources(cfg *Config) error {
	if len(cfg.Sources) == 0 {
		return errors.New("at least one source must be configured")
	}
	seen := make(map[string]bool, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.URL == "" {
			return fmt.Errorf("sources[%d]: url cannot be empty", i)
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name: %s", src.Name)
		}
		seen[src.Name] = true
		if strings.Contains(src.URL, "://") {
			if _, err := url.Parse(src.URL); err != nil {
				return fmt.Errorf("sources[%d]: invalid url: %w", i, err)
			}
		}
	}
	return nil
}

func validateStorage(cfg *Config) error {
	checkout := filepath.Clean(cfg.Storage.CheckoutDir)
	serve := filepath.Clean(cfg.Storage.ServeDir)
	if checkout == serve {
		return fmt.Errorf("storage.checkout_dir and storage.serve_dir must differ (both %s)", checkout)
	}
	if rel, err := filepath.Rel(checkout, serve); err == nil && !strings.HasPrefix(rel, "..") {
		return fmt.Errorf("storage.serve_dir must not be inside storage.checkout_dir")
	}
	return validateDurations(map[string]string{"storage.event_retention": cfg.Storage.EventRetention})
}

func validateSync(cfg *Config) error {
	if err := ValidateSchedule(cfg.Sync.Schedule); err != nil {
		return err
	}
	if cfg.Sync.RetryBackoff == "" {
		return errors.New("sync.retry_backoff: unknown mode")
	}
	return validateDurations(map[string]string{
		"sync.clone_timeout":   cfg.Sync.CloneTimeout,
		"sync.pull_timeout":    cfg.Sync.PullTimeout,
		"sync.retry_delay":     cfg.Sync.RetryDelay,
		"sync.retry_max_delay": cfg.Sync.RetryMaxDelay,
	})
}

// ValidateSchedule checks a six-field cron expression (seconds first).
func ValidateSchedule(expr string) error {
	if n := len(strings.Fields(expr)); n != 6 && !strings.HasPrefix(expr, "@") {
		return fmt.Errorf("sync.schedule %q: expected 6 fields, got %d", expr, n)
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("sync.schedule %q: %w", expr, err)
	}
	return nil
}

func validateBuild(cfg *Config) error {
	b := cfg.Build
	for name, argv := range map[string][]string{
		"build.install":         b.Install,
		"build.install_reduced": b.InstallReduced,
		"build.build":           b.Build,
		"build.docs":            b.Docs,
	} {
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			return fmt.Errorf("%s: command cannot be empty", name)
		}
	}
	for _, dir := range append(append(append([]string{}, b.CopyDirs...), b.Minimal.RequiredDirs...), b.Minimal.OptionalDirs...) {
		if dir == "" || filepath.IsAbs(dir) || strings.Contains(dir, "..") {
			return fmt.Errorf("build: invalid artifact directory %q", dir)
		}
	}
	if len(b.Minimal.RequiredDirs) == 0 && len(b.Minimal.OptionalDirs) == 0 {
		return errors.New("build.minimal: at least one directory is required")
	}
	if b.SourceBrowsePrefix == "" {
		return errors.New("build.source_browse_prefix cannot be empty")
	}
	return validateDurations(map[string]string{
		"build.install_timeout":         b.InstallTimeout,
		"build.install_reduced_timeout": b.InstallReducedTimeout,
		"build.build_timeout":           b.BuildTimeout,
		"build.docs_timeout":            b.DocsTimeout,
	})
}

func validateServer(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	return validateDurations(map[string]string{"server.read_timeout": cfg.Server.ReadTimeout})
}

func validateMonitoring(cfg *Config) error {
	paths := map[string]string{
		"monitoring.health_path": cfg.Monitoring.HealthPath,
		"monitoring.status_path": cfg.Monitoring.StatusPath,
		"monitoring.cycles_path": cfg.Monitoring.CyclesPath,
	}
	if cfg.Monitoring.MetricsEnabled {
		paths["monitoring.metrics_path"] = cfg.Monitoring.MetricsPath
	}
	for name, p := range paths {
		if !strings.HasPrefix(p, "/") || p == "/" {
			return fmt.Errorf("%s must be an absolute sub-path, got %q", name, p)
		}
	}
	return nil
}

func validateDurations(fields map[string]string) error {
	for name, raw := range fields {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", name, raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
