package commands

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kang-git/threejs-sync-server/internal/config"
	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
	"github.com/kang-git/threejs-sync-server/internal/orchestrator"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("threejs-sync"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, ctx
}

func TestCommandParsing(t *testing.T) {
	cases := map[string]struct {
		args    []string
		command string
	}{
		"daemon":       {[]string{"daemon"}, "daemon"},
		"sync":         {[]string{"-c", "x.yaml", "sync", "--json"}, "sync"},
		"init":         {[]string{"init", "--force"}, "init"},
		"logs one":     {[]string{"logs", "clear", "sync"}, "logs clear"},
		"logs all":     {[]string{"logs", "clear", "--all"}, "logs clear"},
		"logs all -a":  {[]string{"logs", "clear", "-a"}, "logs clear"},
		"verbose flag": {[]string{"-v", "sync"}, "sync"},
		"daemon grace": {[]string{"daemon", "--shutdown-timeout", "5s"}, "daemon"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, ctx := parse(t, tc.args...)
			assert.True(t, strings.HasPrefix(ctx.Command(), tc.command), ctx.Command())
		})
	}

	cli, _ := parse(t, "-c", "custom.yaml", "-v", "sync", "--json")
	assert.True(t, cli.Verbose)
	assert.True(t, cli.Sync.JSON)
	assert.Equal(t, "custom.yaml", filepath.Base(cli.Config))

	cli, _ = parse(t, "logs", "clear", "-a")
	assert.True(t, cli.Logs.Clear.All)
	assert.Empty(t, cli.Logs.Clear.Name)
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	var out bytes.Buffer
	cmd := &InitCmd{out: &out}
	require.NoError(t, cmd.Run(&Global{Logger: slog.Default()}, &CLI{Config: path}))
	assert.Contains(t, out.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0 0 2 * * *", cfg.Sync.Schedule)

	err = (&InitCmd{out: &out}).Run(&Global{}, &CLI{Config: path})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	require.NoError(t, (&InitCmd{Force: true, out: &out}).Run(&Global{}, &CLI{Config: path}))
}

func writeLogs(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("line\n"), 0o644))
	}
}

func size(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

func TestLogsClearOne(t *testing.T) {
	dir := t.TempDir()
	writeLogs(t, dir, "sync.log", "build.log")

	var out bytes.Buffer
	cmd := &LogsClearCmd{Name: "sync", Dir: dir, out: &out}
	require.NoError(t, cmd.Run(&Global{}, &CLI{}))
	assert.Zero(t, size(t, filepath.Join(dir, "sync.log")))
	assert.NotZero(t, size(t, filepath.Join(dir, "build.log")))
	assert.Equal(t, "Cleared sync.log\n", out.String())

	err := (&LogsClearCmd{Name: "missing", Dir: dir, out: &out}).Run(&Global{}, &CLI{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestLogsClearAll(t *testing.T) {
	dir := t.TempDir()
	writeLogs(t, dir, "sync.log", "build.log", "notes.txt")

	var out bytes.Buffer
	require.NoError(t, (&LogsClearCmd{All: true, Dir: dir, out: &out}).Run(&Global{}, &CLI{}))
	assert.Zero(t, size(t, filepath.Join(dir, "sync.log")))
	assert.Zero(t, size(t, filepath.Join(dir, "build.log")))
	assert.NotZero(t, size(t, filepath.Join(dir, "notes.txt")))
	assert.Equal(t, "Cleared build.log\nCleared sync.log\n", out.String())
}

func TestLogsClearUsesConfiguredDir(t *testing.T) {
	root := t.TempDir()
	logDir := filepath.Join(root, "var-logs")
	writeLogs(t, logDir, "daemon.log")
	cfgPath := filepath.Join(root, "config.yaml")
	yaml := "sources:\n  - url: https://example.com/three.js.git\nlogging:\n  dir: " + logDir + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))

	var out bytes.Buffer
	require.NoError(t, (&LogsClearCmd{Name: "daemon.log", out: &out}).Run(&Global{}, &CLI{Config: cfgPath}))
	assert.Zero(t, size(t, filepath.Join(logDir, "daemon.log")))
}

func TestLogsClearRequiresExactlyOneTarget(t *testing.T) {
	for name, cmd := range map[string]*LogsClearCmd{
		"neither": {Dir: t.TempDir()},
		"both":    {Name: "sync", All: true, Dir: t.TempDir()},
	} {
		t.Run(name, func(t *testing.T) {
			err := cmd.Run(&Global{}, &CLI{})
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
		})
	}
}

func TestCycleErrorAndReport(t *testing.T) {
	assert.NoError(t, cycleError(orchestrator.Cycle{Outcome: orchestrator.OutcomeSuccess}))
	assert.NoError(t, cycleError(orchestrator.Cycle{Outcome: orchestrator.OutcomeDegradedSuccess}))

	err := cycleError(orchestrator.Cycle{ID: "c1", Outcome: orchestrator.OutcomeFailure, Error: "sources exhausted"})
	require.Error(t, err)
	assert.Equal(t, 12, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))

	var out bytes.Buffer
	cmd := &SyncCmd{out: &out}
	require.NoError(t, cmd.report(orchestrator.Cycle{ID: "c1", Outcome: orchestrator.OutcomeFailure}))
	assert.Contains(t, out.String(), "cycle c1: failure")

	out.Reset()
	cmd.JSON = true
	require.NoError(t, cmd.report(orchestrator.Cycle{ID: "c2", Outcome: orchestrator.OutcomeSuccess}))
	assert.Contains(t, out.String(), `"id": "c2"`)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(&CLI{Config: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}
