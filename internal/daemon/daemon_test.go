package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kang-git/threejs-sync-server/internal/orchestrator"
	"github.com/kang-git/threejs-sync-server/internal/pipeline"
)

func TestRunOncePublishesSite(t *testing.T) {
	cfg := testConfig(t, "")
	git := &fakeGit{}
	d := newTestDaemon(t, cfg, git)

	c := d.RunOnce(t.Context())
	require.Equal(t, orchestrator.OutcomeSuccess, c.Outcome, c.Error)
	require.NotNil(t, c.Build)
	assert.Equal(t, pipeline.BuildFull, c.Build.Kind)
	assert.Equal(t, 1, git.clones)

	assert.FileExists(t, filepath.Join(cfg.Storage.ServeDir, "index.html"))
	assert.FileExists(t, filepath.Join(cfg.Storage.ServeDir, "build", "three.module.js"))
	assert.FileExists(t, filepath.Join(cfg.Storage.ServeDir, "codeview", "src", "Three.js.html"))

	history := d.History()
	require.Len(t, history, 1)
	assert.Equal(t, c.ID, history[0].CycleID)
	assert.True(t, history[0].Succeeded)

	// A second cycle pulls the existing checkout.
	c = d.RunOnce(t.Context())
	require.Equal(t, orchestrator.OutcomeSuccess, c.Outcome, c.Error)
	assert.Equal(t, 1, git.clones)
	assert.Equal(t, 1, git.pulls)
}

func TestLastSuccessSurvivesRestart(t *testing.T) {
	cfg := testConfig(t, "")
	d, err := New(t.Context(), cfg, "", WithGitClient(&fakeGit{}), WithRunner(okRunner{}))
	require.NoError(t, err)
	c := d.RunOnce(t.Context())
	require.True(t, c.Outcome.Succeeded())
	first := d.Status().LastSuccess
	require.False(t, first.IsZero())
	require.NoError(t, d.Stop(t.Context()))

	restarted := newTestDaemon(t, cfg, &fakeGit{})
	st := restarted.Status()
	assert.Nil(t, st.LastCycle)
	assert.WithinDuration(t, first, st.LastSuccess, time.Second)
	assert.Len(t, restarted.History(), 1)
}

func TestStartServesStatusAndArmsSchedule(t *testing.T) {
	cfg := testConfig(t, "")
	d := newTestDaemon(t, cfg, &fakeGit{})
	require.NoError(t, d.Start(t.Context()))
	require.Error(t, d.Start(t.Context()))

	require.Eventually(t, func() bool {
		_, ok := d.NextRun()
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	st := d.Status()
	require.NotNil(t, st.LastCycle)
	assert.Equal(t, orchestrator.TriggerStartup, st.LastCycle.Trigger)

	resp, err := http.Get("http://" + d.Addr() + cfg.Monitoring.StatusPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.NotNil(t, body["last_sync"])

	metrics, err := http.Get("http://" + d.Addr() + cfg.Monitoring.MetricsPath)
	require.NoError(t, err)
	_ = metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)

	require.NoError(t, d.Stop(t.Context()))
	assert.Empty(t, d.Addr())
}

func TestStartWithoutStartupCycle(t *testing.T) {
	cfg := testConfig(t, "")
	off := false
	cfg.Sync.SyncOnStart = &off
	git := &fakeGit{}
	d := newTestDaemon(t, cfg, git)
	require.NoError(t, d.Start(t.Context()))

	require.Eventually(t, func() bool { return d.scheduler.Schedule() != "" }, 5*time.Second, 10*time.Millisecond)
	assert.Nil(t, d.Status().LastCycle)
	assert.Zero(t, git.clones)
}

func TestReloadConfigReschedules(t *testing.T) {
	cfg := testConfig(t, "")
	off := false
	cfg.Sync.SyncOnStart = &off
	d := newTestDaemon(t, cfg, &fakeGit{})
	require.NoError(t, d.Start(t.Context()))
	require.Eventually(t, func() bool { return d.scheduler.Schedule() != "" }, 5*time.Second, 10*time.Millisecond)

	next := *cfg
	next.Sync.Schedule = "0 30 3 * * *"
	require.NoError(t, d.ReloadConfig(t.Context(), &next))
	assert.Equal(t, "0 30 3 * * *", d.scheduler.Schedule())
	assert.Equal(t, "0 30 3 * * *", d.Config().Sync.Schedule)

	// Other changes are not applied live.
	other := *d.Config()
	other.Server.Port = 9999
	require.NoError(t, d.ReloadConfig(t.Context(), &other))
	assert.Equal(t, 0, d.Config().Server.Port)
}

func TestReloadBeforeArmingUsesNewSchedule(t *testing.T) {
	cfg := testConfig(t, "")
	d := newTestDaemon(t, cfg, &fakeGit{})

	next := *cfg
	next.Sync.Schedule = "0 30 3 * * *"
	require.NoError(t, d.ReloadConfig(t.Context(), &next))
	assert.Empty(t, d.scheduler.Schedule())

	d.armSchedule()
	assert.Equal(t, "0 30 3 * * *", d.scheduler.Schedule())
}

func TestReloadRacingArmKeepsLatestSchedule(t *testing.T) {
	cfg := testConfig(t, "")
	d := newTestDaemon(t, cfg, &fakeGit{})

	next := *cfg
	next.Sync.Schedule = "0 30 3 * * *"
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.armSchedule()
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, d.ReloadConfig(t.Context(), &next))
	}()
	wg.Wait()

	assert.Equal(t, "0 30 3 * * *", d.scheduler.Schedule())
}

func TestStopWithoutStart(t *testing.T) {
	d := newTestDaemon(t, testConfig(t, ""), &fakeGit{})
	require.NoError(t, d.Stop(t.Context()))
	require.NoError(t, d.Stop(t.Context()))
	require.Error(t, d.Start(t.Context()))
}

func TestNewRejectsUnusableDataDir(t *testing.T) {
	cfg := testConfig(t, "")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.Storage.DataDir = filepath.Join(blocker, "data")

	_, err := New(context.Background(), cfg, "", WithGitClient(&fakeGit{}), WithRunner(okRunner{}))
	require.Error(t, err)
}
