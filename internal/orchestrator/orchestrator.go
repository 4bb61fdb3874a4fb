// Package orchestrator runs sync cycles: bring the mirror up to date, build
// the artifact tree, and fall back to a minimal build when the full one fails.
// A cycle never returns an error or panics out of RunCycle; its outcome is
// reported in the returned Cycle, the logs, metrics and the event store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kang-git/threejs-sync-server/internal/eventstore"
	"github.com/kang-git/threejs-sync-server/internal/logfields"
	"github.com/kang-git/threejs-sync-server/internal/metrics"
	"github.com/kang-git/threejs-sync-server/internal/mirror"
	"github.com/kang-git/threejs-sync-server/internal/notify"
	"github.com/kang-git/threejs-sync-server/internal/pipeline"
)

// notifyTimeout bounds publication of a finished cycle.
const notifyTimeout = 5 * time.Second

// Mirror keeps the checkout in sync.
type Mirror interface {
	EnsureSynced(ctx context.Context) (mirror.State, error)
}

// Builder produces the served artifact tree.
type Builder interface {
	BuildFull(ctx context.Context) (pipeline.BuildResult, error)
	BuildMinimal(ctx context.Context) (pipeline.BuildResult, error)
}

// EventSink persists cycle events.
type EventSink interface {
	AppendEvent(ctx context.Context, e eventstore.Event) error
}

// History is the read side of the event store.
type History interface {
	Apply(e eventstore.Event)
	LastSuccess() (time.Time, bool)
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = metrics.OrNoop(r) }
}

func WithEventSink(s EventSink) Option {
	return func(o *Orchestrator) { o.events = s }
}

// WithHistory restores the last successful sync time from h and keeps it
// updated with every emitted event.
func WithHistory(h History) Option {
	return func(o *Orchestrator) { o.history = h }
}

func WithNotifier(p notify.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.notifier = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator sequences the mirror and the pipeline. RunCycle is
// single-flight: a trigger that arrives while a cycle runs is skipped.
type Orchestrator struct {
	mirror   Mirror
	builder  Builder
	logger   *slog.Logger
	recorder metrics.Recorder
	events   EventSink
	history  History
	notifier notify.Publisher
	now      func() time.Time
	newID    func() string

	running atomic.Bool

	mu          sync.RWMutex
	last        *Cycle
	lastSuccess time.Time
	counts      map[Outcome]int
}

// New wires an Orchestrator.
func New(m Mirror, b Builder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		mirror:   m,
		builder:  b,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		notifier: notify.Noop{},
		now:      time.Now,
		newID:    uuid.NewString,
		counts:   make(map[Outcome]int),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.history != nil {
		if t, ok := o.history.LastSuccess(); ok {
			o.lastSuccess = t
			o.recorder.SetLastSuccess(t)
			o.logger.Info("Restored last successful sync", slog.Time("last_success", t))
		}
	}
	return o
}

// RunCycle performs one cycle and reports how it ended. It never panics and
// never blocks behind another cycle.
func (o *Orchestrator) RunCycle(ctx context.Context, trigger Trigger) (c Cycle) {
	if !o.running.CompareAndSwap(false, true) {
		o.recorder.IncOverlapSkip()
		o.logger.Warn("Sync cycle already running, skipping trigger", logfields.Trigger(string(trigger)))
		o.mu.Lock()
		o.counts[OutcomeSkipped]++
		o.mu.Unlock()
		now := o.now()
		return Cycle{Trigger: trigger, Start: now, End: now, Outcome: OutcomeSkipped}
	}
	defer o.running.Store(false)

	c = Cycle{ID: o.newID(), Trigger: trigger, Start: o.now(), Outcome: OutcomeFailure}
	logger := o.logger.With(logfields.CycleID(c.ID), logfields.Trigger(string(trigger)))
	logger.Info("Sync cycle starting")

	defer func() {
		if r := recover(); r != nil {
			c.Outcome = OutcomeFailure
			c.Error = fmt.Sprintf("panic: %v", r)
			logger.Error("Recovered from panic in sync cycle",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
		o.finish(ctx, logger, &c)
	}()

	if started, err := eventstore.NewCycleStarted(c.ID, string(trigger)); err == nil {
		o.emit(ctx, logger, started)
	}
	o.run(ctx, logger, &c)
	return c
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, c *Cycle) {
	syncStart := o.now()
	state, err := o.mirror.EnsureSynced(ctx)
	c.Mirror = state
	o.emitSync(ctx, logger, c.ID, state, o.now().Sub(syncStart), err)
	if err != nil || !state.Synced() {
		if err == nil {
			err = fmt.Errorf("mirror not synced (status %s)", state.Status)
		}
		c.Error = err.Error()
		logger.Error("Mirror sync failed, skipping build", logfields.Error(err))
		return
	}

	full, err := o.builder.BuildFull(ctx)
	o.emitBuild(ctx, logger, c.ID, full, err)
	if err == nil {
		c.Build = &full
		c.Outcome = OutcomeSuccess
		return
	}
	if ctx.Err() != nil {
		c.Build = &full
		c.Error = err.Error()
		logger.Warn("Full build interrupted, not falling back", logfields.Error(err))
		return
	}
	logger.Warn("Full build failed, falling back to minimal build", logfields.Error(err))

	minimal, merr := o.builder.BuildMinimal(ctx)
	o.emitBuild(ctx, logger, c.ID, minimal, merr)
	c.Build = &minimal
	if merr != nil {
		c.Error = errors.Join(err, merr).Error()
		logger.Error("Minimal build failed", logfields.Error(merr))
		return
	}
	c.Error = err.Error()
	c.Outcome = OutcomeDegradedSuccess
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, c *Cycle) {
	c.End = o.now()
	d := c.Duration()
	o.recorder.ObserveCycle(string(c.Outcome), d)

	o.mu.Lock()
	o.counts[c.Outcome]++
	if c.Outcome.Succeeded() {
		o.lastSuccess = c.End
	}
	last := *c
	o.last = &last
	o.mu.Unlock()

	if c.Outcome.Succeeded() {
		o.recorder.SetLastSuccess(c.End)
		logger.Info("Sync cycle finished", logfields.Outcome(string(c.Outcome)), logfields.Duration(d))
	} else {
		logger.Error("Sync cycle failed", logfields.Outcome(string(c.Outcome)), logfields.Duration(d), slog.String("error", c.Error))
	}

	o.publish(ctx, logger, last)
}

// publish records and announces a finished cycle. Sinks are outside the
// cycle's own recovery, so they get their own.
func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, c Cycle) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic while publishing cycle", slog.Any("panic", r))
		}
	}()

	d := c.Duration()
	report := eventstore.CycleReport{
		Trigger:    string(c.Trigger),
		Outcome:    string(c.Outcome),
		Succeeded:  c.Outcome.Succeeded(),
		StartedAt:  c.Start,
		DurationMS: d.Milliseconds(),
		Error:      c.Error,
	}
	if c.Build != nil {
		report.BuildKind = string(c.Build.Kind)
	}
	if finished, err := eventstore.NewCycleFinished(c.ID, report); err == nil {
		o.emit(ctx, logger, finished)
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := o.notifier.PublishJSON(nctx, c); err != nil {
		logger.Warn("Failed to publish cycle notification", logfields.Error(err))
	}
}

func (o *Orchestrator) emitSync(ctx context.Context, logger *slog.Logger, id string, st mirror.State, d time.Duration, err error) {
	res := eventstore.SyncResult{
		Status:       string(st.Status),
		Action:       string(st.Action),
		ActiveSource: st.ActiveSource,
		ActiveURL:    st.ActiveURL,
		DurationMS:   d.Milliseconds(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	if e, mErr := eventstore.NewSyncFinished(id, res); mErr == nil {
		o.emit(ctx, logger, e)
	}
}

func (o *Orchestrator) emitBuild(ctx context.Context, logger *slog.Logger, id string, res pipeline.BuildResult, err error) {
	rep := eventstore.BuildReport{
		Kind:           string(res.Kind),
		DurationMS:     res.Duration.Milliseconds(),
		StageDurations: make(map[string]int64, len(res.Stages)),
		Copied:         res.Copied,
		Warnings:       res.Warnings,
	}
	for _, s := range res.Stages {
		rep.StageDurations[string(s.Stage)] += s.DurationMS
	}
	var bf *pipeline.BuildFailure
	if errors.As(err, &bf) {
		rep.Kind = string(bf.Kind)
		rep.FailedStage = string(bf.Stage)
	}
	if err != nil {
		rep.Error = err.Error()
	}
	if e, mErr := eventstore.NewBuildFinished(id, rep); mErr == nil {
		o.emit(ctx, logger, e)
	}
}

// emit persists e and folds it into the history. Store failures are logged;
// they never change the cycle outcome.
func (o *Orchestrator) emit(ctx context.Context, logger *slog.Logger, e eventstore.Event) {
	if o.events != nil {
		if err := o.events.AppendEvent(context.WithoutCancel(ctx), e); err != nil {
			logger.Warn("Failed to store cycle event", slog.String("event_type", e.Type()), logfields.Error(err))
		}
	}
	if o.history != nil {
		o.history.Apply(e)
	}
}
