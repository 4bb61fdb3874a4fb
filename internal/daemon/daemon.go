// Package daemon assembles the long-running sync service: mirror, build
// pipeline, orchestrator, event history, scheduler, static server and config
// watcher, all built from one configuration.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/kang-git/threejs-sync-server/internal/config"
	"github.com/kang-git/threejs-sync-server/internal/eventstore"
	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
	"github.com/kang-git/threejs-sync-server/internal/git"
	"github.com/kang-git/threejs-sync-server/internal/logfields"
	"github.com/kang-git/threejs-sync-server/internal/logging"
	"github.com/kang-git/threejs-sync-server/internal/metrics"
	"github.com/kang-git/threejs-sync-server/internal/mirror"
	"github.com/kang-git/threejs-sync-server/internal/notify"
	"github.com/kang-git/threejs-sync-server/internal/orchestrator"
	"github.com/kang-git/threejs-sync-server/internal/pipeline"
	"github.com/kang-git/threejs-sync-server/internal/retry"
	"github.com/kang-git/threejs-sync-server/internal/server/httpserver"
)

const eventsFile = "events.db"

// Option customizes component construction, mostly for tests.
type Option func(*options)

type options struct {
	gitClient mirror.GitClient
	runner    pipeline.Runner
	notifier  notify.Publisher
}

// WithGitClient replaces the go-git client used by the mirror.
func WithGitClient(c mirror.GitClient) Option { return func(o *options) { o.gitClient = c } }

// WithRunner replaces the subprocess runner used by the pipeline.
func WithRunner(r pipeline.Runner) Option { return func(o *options) { o.runner = r } }

// WithNotifier replaces the notifier chosen from configuration.
func WithNotifier(p notify.Publisher) Option { return func(o *options) { o.notifier = p } }

// Daemon owns every long-lived component.
type Daemon struct {
	configPath string
	startTime  time.Time

	logs      *logging.Manager
	logger    *slog.Logger
	store     *eventstore.SQLiteStore
	history   *eventstore.CycleHistoryProjection
	notifier  notify.Publisher
	orch      *orchestrator.Orchestrator
	scheduler *Scheduler
	server    *httpserver.Server

	mu      sync.Mutex
	cfg     *config.Config
	watcher *ConfigWatcher
	started bool
	stopped bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds every component from cfg. configPath may be empty, which
// disables config watching.
func New(ctx context.Context, cfg *config.Config, configPath string, opts ...Option) (_ *Daemon, err error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("configuration is required").Build()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logs := logging.NewManager(cfg.Logging)
	d := &Daemon{
		configPath: configPath,
		startTime:  time.Now(),
		cfg:        cfg,
		logs:       logs,
		logger:     logs.Logger("daemon"),
	}
	defer func() {
		if err != nil {
			_ = d.closeResources()
		}
	}()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o750); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create data directory").
			WithContext("path", cfg.Storage.DataDir).Build()
	}
	d.store, err = eventstore.NewSQLiteStore(filepath.Join(cfg.Storage.DataDir, eventsFile))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to open event store").Build()
	}
	if retention := cfg.Storage.EventRetentionDuration(); retention > 0 {
		if n, perr := d.store.Prune(ctx, time.Now().Add(-retention)); perr != nil {
			d.logger.Warn("Failed to prune cycle events", logfields.Error(perr))
		} else if n > 0 {
			d.logger.Info("Pruned old cycle events", slog.Int64("count", n))
		}
	}
	d.history = eventstore.NewCycleHistoryProjection(d.store, cfg.Monitoring.HistorySize)
	if err := d.history.Rebuild(ctx); err != nil {
		d.logger.Warn("Failed to rebuild cycle history", logfields.Error(err))
	}

	d.notifier = o.notifier
	if d.notifier == nil {
		d.notifier, err = newNotifier(cfg.Notify, logs.Logger("notify"))
		if err != nil {
			return nil, err
		}
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var registry *prom.Registry
	if cfg.Monitoring.MetricsEnabled {
		registry = metrics.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
	}

	syncLogger := logs.Logger("sync")
	client := o.gitClient
	if client == nil {
		client = git.NewClient(git.Options{Branch: cfg.Branch, ShallowDepth: cfg.Sync.ShallowDepth, Logger: syncLogger})
	}
	m, err := mirror.New(mirror.Config{
		Path:         cfg.Storage.CheckoutDir,
		Sources:      cfg.Sources,
		Policy:       retry.FromSyncConfig(cfg.Sync),
		CloneTimeout: cfg.Sync.CloneTimeoutDuration(),
		PullTimeout:  cfg.Sync.PullTimeoutDuration(),
	}, client, mirror.WithLogger(syncLogger), mirror.WithRecorder(recorder))
	if err != nil {
		return nil, err
	}

	popts := []pipeline.Option{pipeline.WithLogger(logs.Logger("build")), pipeline.WithRecorder(recorder)}
	if o.runner != nil {
		popts = append(popts, pipeline.WithRunner(o.runner))
	}
	p, err := pipeline.New(pipeline.Config{
		CheckoutDir: cfg.Storage.CheckoutDir,
		ServeDir:    cfg.Storage.ServeDir,
		Build:       cfg.Build,
	}, popts...)
	if err != nil {
		return nil, err
	}

	d.orch = orchestrator.New(m, p,
		orchestrator.WithLogger(logs.Logger("cycle")),
		orchestrator.WithRecorder(recorder),
		orchestrator.WithEventSink(d.store),
		orchestrator.WithHistory(d.history),
		orchestrator.WithNotifier(d.notifier),
	)

	d.scheduler, err = NewScheduler(d.logger)
	if err != nil {
		return nil, err
	}

	srvOpts := httpserver.Options{
		Addr:        cfg.Server.Address(),
		ServeDir:    cfg.Storage.ServeDir,
		ReadTimeout: cfg.Server.ReadTimeoutDuration(),
		HealthPath:  cfg.Monitoring.HealthPath,
		StatusPath:  cfg.Monitoring.StatusPath,
		CyclesPath:  cfg.Monitoring.CyclesPath,
		Logger:      logs.Logger("server"),
	}
	if registry != nil {
		srvOpts.MetricsPath = cfg.Monitoring.MetricsPath
		srvOpts.MetricsHandler = metrics.HTTPHandler(registry)
	}
	d.server = httpserver.New(srvOpts, d, d.history)
	return d, nil
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) (notify.Publisher, error) {
	if cfg.NATSURL == "" {
		return notify.Noop{}, nil
	}
	p, err := notify.NewNATSPublisher(cfg.NATSURL, cfg.Subject, logger)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to create NATS notifier").
			WithContext("url", cfg.NATSURL).Build()
	}
	return p, nil
}

// Start binds the HTTP server, runs the startup cycle when enabled and then
// arms the recurring schedule. It returns once the listener is bound; cycles
// run in the background until Stop or ctx cancellation.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ferrors.DaemonError("daemon already started").Build()
	}
	if d.stopped {
		return ferrors.DaemonError("daemon has been stopped").Build()
	}

	if err := d.server.Start(ctx); err != nil {
		return err
	}
	d.scheduler.Start()
	d.runCtx, d.cancel = context.WithCancel(ctx)
	d.started = true

	cfg := d.cfg
	runCtx := d.runCtx
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if cfg.Sync.SyncOnStartEnabled() {
			d.orch.RunCycle(runCtx, orchestrator.TriggerStartup)
		}
		if runCtx.Err() != nil {
			return
		}
		d.armSchedule()
	}()

	if d.configPath != "" {
		w, err := NewConfigWatcher(d.configPath, d.ReloadConfig, d.logger)
		if err == nil {
			err = w.Start(d.runCtx)
		}
		if err != nil {
			d.logger.Warn("Config watching disabled", logfields.Error(err))
		} else {
			d.watcher = w
		}
	}

	d.logger.Info("Daemon started",
		slog.String("addr", d.server.Addr()),
		logfields.Schedule(cfg.Sync.Schedule),
		slog.Bool("sync_on_start", cfg.Sync.SyncOnStartEnabled()))
	return nil
}

func (d *Daemon) scheduledCycle() {
	d.mu.Lock()
	ctx := d.runCtx
	d.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	d.orch.RunCycle(ctx, orchestrator.TriggerSchedule)
}

// RunOnce runs a single manual cycle without starting the server or schedule.
func (d *Daemon) RunOnce(ctx context.Context) orchestrator.Cycle {
	return d.orch.RunCycle(ctx, orchestrator.TriggerManual)
}

// Stop cancels any running cycle and shuts every component down. It is safe
// to call more than once and on a daemon that never started.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	cancel, watcher := d.cancel, d.watcher
	d.mu.Unlock()

	d.logger.Info("Stopping daemon")
	if cancel != nil {
		cancel()
	}

	var errs []error
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := d.server.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for startup cycle: %w", ctx.Err()))
	}

	d.logger.Info("Daemon stopped")
	if err := d.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Daemon) closeResources() error {
	var errs []error
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event store: %w", err))
		}
	}
	if d.notifier != nil {
		if err := d.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("notifier: %w", err))
		}
	}
	if err := d.logs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("logs: %w", err))
	}
	return errors.Join(errs...)
}

// armSchedule registers the recurring cycle job with the schedule in effect.
// It holds mu so a concurrent ReloadConfig either sees the armed job and
// reschedules it, or lands first and its schedule is the one armed.
func (d *Daemon) armSchedule() {
	d.mu.Lock()
	defer d.mu.Unlock()
	expr := d.cfg.Sync.Schedule
	if _, err := d.scheduler.ScheduleCycle(expr, d.scheduledCycle); err != nil {
		d.logger.Error("Failed to arm cycle schedule", logfields.Schedule(expr), logfields.Error(err))
	}
}

// ReloadConfig applies a new configuration. Only the schedule is applied
// live; any other difference is logged as needing a restart.
func (d *Daemon) ReloadConfig(_ context.Context, next *config.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.cfg

	if next.Sync.Schedule != prev.Sync.Schedule {
		if d.scheduler.Schedule() != "" {
			if _, err := d.scheduler.ScheduleCycle(next.Sync.Schedule, d.scheduledCycle); err != nil {
				return err
			}
		}
		d.logger.Info("Schedule reloaded", logfields.Schedule(next.Sync.Schedule), slog.String("previous", prev.Sync.Schedule))
	}

	restart := *next
	restart.Sync.Schedule = prev.Sync.Schedule
	if !reflect.DeepEqual(&restart, prev) {
		d.logger.Warn("Configuration changed beyond the schedule; restart required to apply it")
	}

	// Keep the running components' view but remember the live schedule.
	updated := *prev
	updated.Sync.Schedule = next.Sync.Schedule
	d.cfg = &updated
	return nil
}

// Config returns the configuration in effect.
func (d *Daemon) Config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Status reports the orchestrator snapshot.
func (d *Daemon) Status() orchestrator.Status { return d.orch.Status() }

// StartTime is when the daemon was created.
func (d *Daemon) StartTime() time.Time { return d.startTime }

// Addr returns the bound HTTP address, or "" when not serving.
func (d *Daemon) Addr() string { return d.server.Addr() }

// History returns recent cycles, newest first.
func (d *Daemon) History() []eventstore.CycleSummary { return d.history.History() }

// NextRun reports when the next scheduled cycle fires.
func (d *Daemon) NextRun() (time.Time, bool) { return d.scheduler.NextRun() }
