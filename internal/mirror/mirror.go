// Package mirror keeps a local checkout consistent with an ordered list of
// remote sources, recovering from transient network failures, unreachable
// mirrors and corrupted working copies.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kang-git/threejs-sync-server/internal/config"
	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
	"github.com/kang-git/threejs-sync-server/internal/git"
	"github.com/kang-git/threejs-sync-server/internal/logfields"
	"github.com/kang-git/threejs-sync-server/internal/metrics"
	"github.com/kang-git/threejs-sync-server/internal/retry"
)

// GitClient is the subset of git operations the mirror drives.
type GitClient interface {
	Clone(ctx context.Context, url, path string) error
	Pull(ctx context.Context, path string) error
	RemoteURL(path string) (string, error)
	SetRemoteURL(path, url string) error
	IsRepository(path string) bool
}

// Config describes the checkout and its sources.
type Config struct {
	Path         string
	Sources      []config.Source
	Policy       retry.Policy
	CloneTimeout time.Duration
	PullTimeout  time.Duration
}

// Option customizes a Mirror.
type Option func(*Mirror)

func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(m *Mirror) { m.recorder = metrics.OrNoop(r) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Mirror) { m.now = now }
}

// Mirror owns the local checkout. At most one EnsureSynced runs at a time.
type Mirror struct {
	cfg      Config
	git      GitClient
	logger   *slog.Logger
	recorder metrics.Recorder
	now      func() time.Time

	mu    sync.Mutex
	state State
}

// New validates cfg and returns a Mirror.
func New(cfg Config, client GitClient, opts ...Option) (*Mirror, error) {
	if len(cfg.Sources) == 0 {
		return nil, ferrors.ConfigError("mirror requires at least one source").Build()
	}
	clean := filepath.Clean(cfg.Path)
	if cfg.Path == "" || clean == "/" || clean == "." {
		return nil, ferrors.ConfigError("mirror path must name a dedicated directory").WithContext("path", cfg.Path).Build()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid retry policy").Build()
	}
	cfg.Path = clean
	m := &Mirror{
		cfg:      cfg,
		git:      client,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
		state:    State{Path: clean},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns the last recorded state.
func (m *Mirror) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureSynced brings the checkout in line with the first reachable source.
// It is idempotent: calling it on a synced checkout performs a pull.
func (m *Mirror) EnsureSynced(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.inspect()
	st.LastSync = m.state.LastSync
	st.LastAttempt = m.now()
	m.logger.Info("Mirror sync starting", logfields.Path(st.Path), slog.String("status", string(st.Status)))

	if st.Status == StatusCorrupt {
		m.logger.Warn("Checkout lacks repository metadata, recreating", logfields.Path(st.Path))
	}
	src, action, err := m.runRecovery(ctx, m.recoveryPlan(st.Status))

	st.Action = action
	if err != nil {
		st.Status = StatusFailed
		st.LastError = err.Error()
		st.Exists, st.Valid = m.probe()
		m.state = st
		m.logger.Error("Mirror sync failed", logfields.Path(st.Path), logfields.Error(err))
		return st, err
	}

	st.Status = StatusSynced
	st.Exists, st.Valid = true, true
	st.ActiveSource, st.ActiveURL = src.Name, src.URL
	st.LastSync = m.now()
	st.LastError = ""
	m.state = st
	m.logger.Info("Mirror synced", logfields.Source(src.Name), logfields.URL(src.URL), slog.String("action", string(action)))
	return st, nil
}

// inspect classifies the local path without touching it.
func (m *Mirror) inspect() State {
	st := State{Path: m.cfg.Path}
	st.Exists, st.Valid = m.probe()
	switch {
	case !st.Exists:
		st.Status = StatusAbsent
	case !st.Valid:
		st.Status = StatusCorrupt
	default:
		st.Status = StatusStale
	}
	return st
}

func (m *Mirror) probe() (exists, valid bool) {
	if _, err := os.Stat(m.cfg.Path); err != nil {
		return false, false
	}
	return true, m.git.IsRepository(m.cfg.Path)
}

// pullWithRetry retries only the pull. It never falls back to cloning.
func (m *Mirror) pullWithRetry(ctx context.Context, url string) error {
	err := retry.Do(ctx, m.cfg.Policy, retry.Options{
		Permanent: git.IsPermanent,
		OnRetry: func(attempt int, err error) {
			m.logger.Warn("Pull failed, retrying", logfields.URL(url), logfields.Attempt(attempt),
				logfields.MaxAttempts(m.cfg.Policy.MaxAttempts), logfields.Error(err))
		},
	}, func(ctx context.Context, attempt int) error {
		err := m.withTimeout(ctx, m.cfg.PullTimeout, "pull", url, func(ctx context.Context) error {
			return m.git.Pull(ctx, m.cfg.Path)
		})
		m.recorder.IncSyncAttempt("pull", resultLabel(err))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPullFailed, err)
	}
	return nil
}

// cloneWithFallback walks sources in order, giving each a fresh attempt budget.
// The checkout directory is reset before every attempt.
func (m *Mirror) cloneWithFallback(ctx context.Context) (config.Source, error) {
	var errs []error
	for i, src := range m.cfg.Sources {
		if i > 0 {
			m.logger.Warn("Falling back to next source", logfields.Source(src.Name), logfields.URL(src.URL))
			m.recorder.IncSourceFallback(src.Name)
		}
		err := retry.Do(ctx, m.cfg.Policy, retry.Options{
			Permanent: git.IsPermanent,
			OnRetry: func(attempt int, err error) {
				m.logger.Warn("Clone failed, retrying", logfields.Source(src.Name), logfields.Attempt(attempt),
					logfields.MaxAttempts(m.cfg.Policy.MaxAttempts), logfields.Error(err))
			},
		}, func(ctx context.Context, attempt int) error {
			if err := m.resetDir(); err != nil {
				return err
			}
			err := m.withTimeout(ctx, m.cfg.CloneTimeout, "clone", src.URL, func(ctx context.Context) error {
				return m.git.Clone(ctx, src.URL, m.cfg.Path)
			})
			m.recorder.IncSyncAttempt("clone", resultLabel(err))
			return err
		})
		if err == nil {
			return src, nil
		}
		m.logger.Error("Source exhausted", logfields.Source(src.Name), logfields.URL(src.URL), logfields.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
		if ctx.Err() != nil {
			break
		}
	}

	cause := fmt.Errorf("%w: %w", ErrSourcesExhausted, errors.Join(errs...))
	category := ferrors.CategoryNetwork
	if len(errs) > 0 && git.IsTimeout(errs[len(errs)-1]) {
		category = ferrors.CategoryTimeout
	}
	return config.Source{}, ferrors.WrapError(cause, category, "clone failed for every source").
		Transient().
		WithContext("sources", len(m.cfg.Sources)).
		Build()
}

// withTimeout bounds fn by d and reports an expired deadline as a TimeoutError
// even when the client returned something else.
func (m *Mirror) withTimeout(ctx context.Context, d time.Duration, op, url string, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	opCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := fn(opCtx)
	if err != nil && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) && !git.IsTimeout(err) {
		return &git.TimeoutError{Op: op, URL: url, Err: err}
	}
	return err
}

func (m *Mirror) resetDir() error {
	if err := os.RemoveAll(m.cfg.Path); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove checkout").WithContext("path", m.cfg.Path).Build()
	}
	if err := os.MkdirAll(m.cfg.Path, 0o750); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create checkout").WithContext("path", m.cfg.Path).Build()
	}
	return nil
}

// sourceFor maps a remote URL back to its configured source.
func (m *Mirror) sourceFor(url string) config.Source {
	for _, s := range m.cfg.Sources {
		if s.URL == url {
			return s
		}
	}
	return config.Source{Name: "unlisted", URL: url}
}

// sourceFailure reports errors another remote might not have.
func sourceFailure(err error) bool {
	return git.IsUnreachable(err) || git.IsPermanent(err)
}

func resultLabel(err error) metrics.ResultLabel {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case git.IsTimeout(err):
		return metrics.ResultTimeout
	default:
		return metrics.ResultFailure
	}
}
