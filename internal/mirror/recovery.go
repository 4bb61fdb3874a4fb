package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kang-git/threejs-sync-server/internal/config"
	"github.com/kang-git/threejs-sync-server/internal/logfields"
)

// errStepSkipped is returned by a recovery step that does not apply to the
// failure left by the step before it.
var errStepSkipped = errors.New("recovery step not applicable")

// recoveryStep is one strategy for bringing the checkout to Synced. Steps run
// in order until one succeeds.
type recoveryStep struct {
	name Action
	run  func(ctx context.Context) (config.Source, error)
}

// recovery carries what earlier steps learned to the later ones.
type recovery struct {
	m       *Mirror
	current string // origin URL before any reset
	pullErr error
}

// recoveryPlan returns the ordered strategies for a checkout in status st.
func (m *Mirror) recoveryPlan(st Status) []recoveryStep {
	switch st {
	case StatusAbsent:
		return []recoveryStep{{name: ActionClone, run: m.cloneWithFallback}}
	case StatusCorrupt:
		return []recoveryStep{{name: ActionReclone, run: m.cloneWithFallback}}
	}
	r := &recovery{m: m}
	return []recoveryStep{
		{name: ActionPull, run: r.pull},
		{name: ActionRemoteReset, run: r.remoteReset},
		{name: ActionReclone, run: m.cloneWithFallback},
	}
}

// runRecovery walks steps in order. It stops at the first success, on a
// cancelled context, or when the last step fails.
func (m *Mirror) runRecovery(ctx context.Context, steps []recoveryStep) (config.Source, Action, error) {
	var (
		lastErr    error
		lastAction Action
	)
	for i, step := range steps {
		src, err := step.run(ctx)
		if err == nil {
			return src, step.name, nil
		}
		if errors.Is(err, errStepSkipped) {
			m.logger.Debug("Recovery step skipped", slog.String("step", string(step.name)))
			continue
		}
		lastErr, lastAction = err, step.name
		if ctx.Err() != nil {
			break
		}
		if i < len(steps)-1 {
			m.logger.Warn("Recovery step failed, escalating", slog.String("step", string(step.name)),
				slog.String("next", string(steps[i+1].name)), logfields.Error(err))
		}
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return config.Source{}, lastAction, lastErr
}

// pull retries a pull from the checkout's current origin.
func (r *recovery) pull(ctx context.Context) (config.Source, error) {
	current, err := r.m.git.RemoteURL(r.m.cfg.Path)
	if err != nil {
		r.pullErr = err
		return config.Source{}, fmt.Errorf("%w: read remote url: %w", ErrPullFailed, err)
	}
	r.current = current
	if r.pullErr = r.m.pullWithRetry(ctx, current); r.pullErr != nil {
		return config.Source{}, r.pullErr
	}
	return r.m.sourceFor(current), nil
}

// remoteReset points origin at each configured source not yet tried and pulls
// again. It applies only when the pull failed in a way another remote might
// not.
func (r *recovery) remoteReset(ctx context.Context) (config.Source, error) {
	if r.current == "" || !sourceFailure(r.pullErr) {
		return config.Source{}, errStepSkipped
	}
	m := r.m
	tried := map[string]bool{r.current: true}
	err := r.pullErr
	for _, src := range m.cfg.Sources {
		if tried[src.URL] {
			continue
		}
		tried[src.URL] = true
		m.logger.Warn("Resetting remote to fallback source", logfields.Source(src.Name), logfields.URL(src.URL), logfields.Error(err))
		m.recorder.IncSourceFallback(src.Name)
		if serr := m.git.SetRemoteURL(m.cfg.Path, src.URL); serr != nil {
			return config.Source{}, fmt.Errorf("set remote %s: %w", src.Name, serr)
		}
		if err = m.pullWithRetry(ctx, src.URL); err == nil {
			return src, nil
		}
		if ctx.Err() != nil {
			return config.Source{}, err
		}
	}
	if len(tried) == 1 {
		return config.Source{}, errStepSkipped
	}
	return config.Source{}, err
}
