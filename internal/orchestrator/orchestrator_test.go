package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kang-git/threejs-sync-server/internal/eventstore"
	"github.com/kang-git/threejs-sync-server/internal/mirror"
	"github.com/kang-git/threejs-sync-server/internal/pipeline"
)

func TestRunCycleSuccess(t *testing.T) {
	b := &fakeBuilder{}
	o := New(syncedMirror(), b)

	c := o.RunCycle(t.Context(), TriggerSchedule)
	assert.Equal(t, OutcomeSuccess, c.Outcome)
	assert.NotEmpty(t, c.ID)
	require.NotNil(t, c.Build)
	assert.Equal(t, pipeline.BuildFull, c.Build.Kind)
	assert.Zero(t, b.minimalCalls)
	assert.Equal(t, c.End, o.LastSuccess())
}

func TestRunCycleMirrorFailureSkipsBuild(t *testing.T) {
	m := &fakeMirror{state: mirror.State{Status: mirror.StatusFailed}, err: errNetwork}
	b := &fakeBuilder{}
	o := New(m, b)

	c := o.RunCycle(t.Context(), TriggerSchedule)
	assert.Equal(t, OutcomeFailure, c.Outcome)
	assert.Contains(t, c.Error, "connection refused")
	assert.Zero(t, b.fullCalls)
	assert.True(t, o.LastSuccess().IsZero())
}

func TestRunCycleUnsyncedStateWithoutErrorSkipsBuild(t *testing.T) {
	m := &fakeMirror{state: mirror.State{Status: mirror.StatusStale}}
	b := &fakeBuilder{}
	c := New(m, b).RunCycle(t.Context(), TriggerManual)
	assert.Equal(t, OutcomeFailure, c.Outcome)
	assert.Contains(t, c.Error, "not synced")
	assert.Zero(t, b.fullCalls)
}

func TestRunCycleFullFailureRunsMinimalOnce(t *testing.T) {
	b := &fakeBuilder{fullErr: fullFailure(pipeline.StageCopy)}
	o := New(syncedMirror(), b)

	c := o.RunCycle(t.Context(), TriggerSchedule)
	assert.Equal(t, OutcomeDegradedSuccess, c.Outcome)
	assert.Equal(t, 1, b.fullCalls)
	assert.Equal(t, 1, b.minimalCalls)
	require.NotNil(t, c.Build)
	assert.Equal(t, pipeline.BuildMinimal, c.Build.Kind)
	assert.False(t, o.LastSuccess().IsZero())
}

func TestRunCycleMinimalFailure(t *testing.T) {
	b := &fakeBuilder{fullErr: fullFailure(pipeline.StageBuild), minimalErr: minimalFailure()}
	o := New(syncedMirror(), b)

	c := o.RunCycle(t.Context(), TriggerSchedule)
	assert.Equal(t, OutcomeFailure, c.Outcome)
	assert.Equal(t, 1, b.minimalCalls)
	assert.Contains(t, c.Error, "not servable")
	assert.True(t, o.LastSuccess().IsZero())
}

func TestRunCycleRecoversFromPanicAndNextCycleRuns(t *testing.T) {
	b := &fakeBuilder{panicFull: true}
	o := New(syncedMirror(), b)

	var c Cycle
	require.NotPanics(t, func() { c = o.RunCycle(t.Context(), TriggerSchedule) })
	assert.Equal(t, OutcomeFailure, c.Outcome)
	assert.Contains(t, c.Error, "panic: index out of range")
	assert.False(t, o.Status().Running)

	b.panicFull = false
	next := o.RunCycle(t.Context(), TriggerSchedule)
	assert.Equal(t, OutcomeSuccess, next.Outcome)
	assert.Equal(t, map[Outcome]int{OutcomeFailure: 1, OutcomeSuccess: 1}, o.Status().Counts)
}

func TestRunCycleSkipsOverlappingTrigger(t *testing.T) {
	m := syncedMirror()
	m.block = make(chan struct{})
	m.entered = make(chan struct{}, 1)
	o := New(m, &fakeBuilder{})

	var wg sync.WaitGroup
	var first Cycle
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = o.RunCycle(t.Context(), TriggerSchedule)
	}()
	<-m.entered
	assert.True(t, o.Status().Running)

	skipped := o.RunCycle(t.Context(), TriggerSchedule)
	assert.Equal(t, OutcomeSkipped, skipped.Outcome)
	assert.Empty(t, skipped.ID)

	close(m.block)
	wg.Wait()
	assert.Equal(t, OutcomeSuccess, first.Outcome)
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, 1, o.Status().Counts[OutcomeSkipped])
}

func TestRunCycleCancelledDuringFullBuildDoesNotFallBack(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	b := &fakeBuilder{fullErr: fullFailure(pipeline.StageInstall)}

	c := New(syncedMirror(), b).RunCycle(ctx, TriggerManual)
	assert.Equal(t, OutcomeFailure, c.Outcome)
	assert.Zero(t, b.minimalCalls)
}

func TestRunCycleRecordsEventsAndRestoresLastSuccess(t *testing.T) {
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	history := eventstore.NewCycleHistoryProjection(store, 10)
	notifier := &fakeNotifier{err: errors.New("nats down")}

	o := New(syncedMirror(), &fakeBuilder{fullErr: fullFailure(pipeline.StageDocs)},
		WithEventSink(store), WithHistory(history), WithNotifier(notifier))
	c := o.RunCycle(t.Context(), TriggerStartup)
	require.Equal(t, OutcomeDegradedSuccess, c.Outcome)

	events, err := store.GetByCycleID(t.Context(), c.ID)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type())
	}
	assert.Equal(t, []string{
		eventstore.TypeCycleStarted,
		eventstore.TypeSyncFinished,
		eventstore.TypeBuildFinished,
		eventstore.TypeBuildFinished,
		eventstore.TypeCycleFinished,
	}, types)

	summary, ok := history.Cycle(c.ID)
	require.True(t, ok)
	require.Len(t, summary.Builds, 2)
	assert.Equal(t, "docs", summary.Builds[0].FailedStage)
	assert.Equal(t, "minimal", summary.Builds[1].Kind)
	require.Len(t, notifier.sent, 1)

	restoredHistory := eventstore.NewCycleHistoryProjection(store, 10)
	require.NoError(t, restoredHistory.Rebuild(t.Context()))
	restored := New(syncedMirror(), &fakeBuilder{}, WithHistory(restoredHistory))
	assert.WithinDuration(t, c.End, restored.LastSuccess(), time.Second)
}

func TestFailedCycleKeepsLastSuccess(t *testing.T) {
	b := &fakeBuilder{}
	m := syncedMirror()
	o := New(m, b)
	ok := o.RunCycle(t.Context(), TriggerSchedule)
	require.Equal(t, OutcomeSuccess, ok.Outcome)

	m.err = errNetwork
	m.state = mirror.State{Status: mirror.StatusFailed}
	failed := o.RunCycle(t.Context(), TriggerSchedule)
	require.Equal(t, OutcomeFailure, failed.Outcome)

	st := o.Status()
	assert.Equal(t, ok.End, st.LastSuccess)
	require.NotNil(t, st.LastCycle)
	assert.Equal(t, failed.ID, st.LastCycle.ID)
}
