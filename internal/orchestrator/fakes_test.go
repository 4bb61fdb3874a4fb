package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/kang-git/threejs-sync-server/internal/mirror"
	"github.com/kang-git/threejs-sync-server/internal/pipeline"
)

type fakeMirror struct {
	state mirror.State
	err   error
	// block, when set, holds EnsureSynced until closed.
	block   chan struct{}
	entered chan struct{}
	calls   int
	mu      sync.Mutex
}

func syncedMirror() *fakeMirror {
	return &fakeMirror{state: mirror.State{Status: mirror.StatusSynced, ActiveSource: "primary", Valid: true, Exists: true}}
}

func (f *fakeMirror) EnsureSynced(ctx context.Context) (mirror.State, error) {
	f.mu.Lock()
	f.calls++
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return f.state, ctx.Err()
		}
	}
	return f.state, f.err
}

type fakeBuilder struct {
	fullErr    error
	minimalErr error
	panicFull  bool

	mu           sync.Mutex
	fullCalls    int
	minimalCalls int
}

func (f *fakeBuilder) BuildFull(context.Context) (pipeline.BuildResult, error) {
	f.mu.Lock()
	f.fullCalls++
	f.mu.Unlock()
	if f.panicFull {
		panic("index out of range")
	}
	if f.fullErr != nil {
		return pipeline.BuildResult{Kind: pipeline.BuildFailed}, f.fullErr
	}
	return pipeline.BuildResult{Kind: pipeline.BuildFull, OutputDir: "public"}, nil
}

func (f *fakeBuilder) BuildMinimal(context.Context) (pipeline.BuildResult, error) {
	f.mu.Lock()
	f.minimalCalls++
	f.mu.Unlock()
	if f.minimalErr != nil {
		return pipeline.BuildResult{Kind: pipeline.BuildFailed}, f.minimalErr
	}
	return pipeline.BuildResult{Kind: pipeline.BuildMinimal, OutputDir: "public"}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []any
	err  error
}

func (f *fakeNotifier) PublishJSON(_ context.Context, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
	return f.err
}

func (f *fakeNotifier) Close() error { return nil }

var errNetwork = errors.New("dial tcp: connection refused")

func fullFailure(stage pipeline.StageName) error {
	return &pipeline.BuildFailure{Kind: pipeline.BuildFull, Stage: stage, Err: errors.New("boom")}
}

func minimalFailure() error {
	return &pipeline.BuildFailure{Kind: pipeline.BuildMinimal, Stage: pipeline.StageCopy, Err: pipeline.ErrNotServable}
}
