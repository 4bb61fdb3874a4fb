package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
)

func argvString(argv []string) string { return commandString(argv[0], argv[1:]) }

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func stageNames(res BuildResult) []StageName {
	names := make([]StageName, 0, len(res.Stages))
	for _, s := range res.Stages {
		names = append(names, s.Stage)
	}
	return names
}

func TestBuildFullPublishesArtifactTree(t *testing.T) {
	runner := &fakeRunner{}
	p, _, serve := newTestPipeline(t, runner)

	res, err := p.BuildFull(t.Context())
	require.NoError(t, err)

	assert.Equal(t, BuildFull, res.Kind)
	assert.Equal(t, serve, res.OutputDir)
	assert.Equal(t, []StageName{StageInstall, StageBuild, StageDocs, StageCopy, StageCodeview, StageIndex, StageRewrite}, stageNames(res))
	require.Len(t, runner.calls, 3)
	assert.True(t, strings.HasPrefix(runner.calls[0], "npm install "))
	assert.Equal(t, []string{"npm run build", "npm run build-docs"}, runner.calls[1:])
	assert.Len(t, res.Diagnostics, 3)

	for _, dir := range []string{"build", "docs", "editor", "examples", "manual", "playground", "files", "src"} {
		assert.DirExists(t, filepath.Join(serve, dir))
	}
	assert.FileExists(t, filepath.Join(serve, "index.html"))
	assert.FileExists(t, filepath.Join(serve, "codeview", "index.html"))
	assert.FileExists(t, filepath.Join(serve, "codeview", "src", "core", "Object3D.js.html"))
	assert.NoFileExists(t, filepath.Join(serve, "codeview", "src", "notes.txt.html"))

	assert.Contains(t, readFile(t, filepath.Join(serve, "docs", "index.html")), `href="../"`)
	assert.Contains(t, readFile(t, filepath.Join(serve, "examples", "index.html")), `href="../"`)
	assert.Contains(t, readFile(t, filepath.Join(serve, "manual", "index.html")), `href='../docs/'`)
	assert.Contains(t, readFile(t, filepath.Join(serve, "docs", "api", "en", "core", "Object3D.html")),
		"[link:../../../../codeview/src/core/Object3D.js.html src/core/Object3D.js]")
}

func TestBuildFullSkipsInstallWhenDependenciesPresent(t *testing.T) {
	runner := &fakeRunner{}
	p, checkout, _ := newTestPipeline(t, runner)
	require.NoError(t, os.MkdirAll(filepath.Join(checkout, "node_modules"), 0o755))

	_, err := p.BuildFull(t.Context())
	require.NoError(t, err)
	assert.Zero(t, runner.count("npm install"))
	assert.Equal(t, 1, runner.count("npm run build-docs"))
}

func TestBuildFullFallsBackToReducedInstall(t *testing.T) {
	b := testBuildConfig(t)
	runner := &fakeRunner{fail: map[string]error{argvString(b.Install): errors.New("ERESOLVE")}}
	p, _, _ := newTestPipeline(t, runner)

	_, err := p.BuildFull(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, runner.count("npm install"))
	assert.Equal(t, argvString(b.InstallReduced), runner.calls[1])
}

func TestBuildFullInstallFailure(t *testing.T) {
	b := testBuildConfig(t)
	runner := &fakeRunner{fail: map[string]error{
		argvString(b.Install):        errors.New("ERESOLVE"),
		argvString(b.InstallReduced): errors.New("ENOSPC"),
	}}
	p, _, serve := newTestPipeline(t, runner)

	res, err := p.BuildFull(t.Context())
	require.Error(t, err)

	var bf *BuildFailure
	require.ErrorAs(t, err, &bf)
	assert.Equal(t, BuildFull, bf.Kind)
	assert.Equal(t, StageInstall, bf.Stage)
	assert.Equal(t, BuildFailed, res.Kind)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryInstall))
	assert.Zero(t, runner.count("npm run"))
	assert.NoDirExists(t, serve)
}

func TestBuildFullCommandTimeout(t *testing.T) {
	b := testBuildConfig(t)
	timeout := &CommandError{Command: argvString(b.Build), Timeout: true, Limit: 10 * time.Minute, Err: context.DeadlineExceeded}
	runner := &fakeRunner{fail: map[string]error{argvString(b.Build): timeout}, out: "webpack: compiling"}
	p, _, _ := newTestPipeline(t, runner)

	res, err := p.BuildFull(t.Context())
	require.Error(t, err)
	assert.True(t, IsBuildFailure(err, BuildFull))
	assert.True(t, IsTimeout(err))
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryTimeout))
	assert.Zero(t, runner.count("npm run build-docs"))

	last := res.Diagnostics[len(res.Diagnostics)-1]
	assert.Equal(t, StageBuild, last.Stage)
	assert.Equal(t, "webpack: compiling", last.Output)
	assert.Contains(t, last.Error, "timed out")
}

func TestBuildFullFailsAtCopyThenMinimalSucceeds(t *testing.T) {
	runner := &fakeRunner{}
	p, checkout, serve := newTestPipeline(t, runner)
	require.NoError(t, os.RemoveAll(filepath.Join(checkout, "playground")))

	_, err := p.BuildFull(t.Context())
	var bf *BuildFailure
	require.ErrorAs(t, err, &bf)
	assert.Equal(t, StageCopy, bf.Stage)
	commands := len(runner.calls)

	res, err := p.BuildMinimal(t.Context())
	require.NoError(t, err)
	assert.Equal(t, BuildMinimal, res.Kind)
	assert.Equal(t, []string{"build", "docs", "examples", "manual", "files"}, res.Copied)
	assert.Len(t, runner.calls, commands, "minimal build must not run commands")
	assert.FileExists(t, filepath.Join(serve, "build", "three.module.js"))
	assert.Contains(t, readFile(t, filepath.Join(serve, "index.html")), "Reduced build")
}

func TestBuildMinimalRequiresBuildDirectory(t *testing.T) {
	p, checkout, _ := newTestPipeline(t, &fakeRunner{})
	require.NoError(t, os.RemoveAll(filepath.Join(checkout, "build")))

	res, err := p.BuildMinimal(t.Context())
	require.Error(t, err)
	assert.True(t, IsBuildFailure(err, BuildMinimal))
	assert.ErrorIs(t, err, ErrNotServable)
	assert.Equal(t, BuildFailed, res.Kind)
}

func TestBuildMinimalDegradesOnOptionalProblems(t *testing.T) {
	p, checkout, serve := newTestPipeline(t, &fakeRunner{})
	require.NoError(t, os.RemoveAll(filepath.Join(checkout, "manual")))
	require.NoError(t, os.RemoveAll(filepath.Join(checkout, "src")))

	res, err := p.BuildMinimal(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "docs", "examples", "files"}, res.Copied)
	require.Len(t, res.Warnings, 2)
	assert.True(t, strings.HasPrefix(res.Warnings[0], "copy:"))
	assert.True(t, strings.HasPrefix(res.Warnings[1], "codeview:"))
	assert.FileExists(t, filepath.Join(serve, "index.html"))
}

func TestBuildFullReplacesStaleOutput(t *testing.T) {
	p, _, serve := newTestPipeline(t, &fakeRunner{})
	writeFiles(t, serve, map[string]string{"build/stale.js": "old"})

	_, err := p.BuildFull(t.Context())
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(serve, "build", "stale.js"))
}

func TestDiagnosticsKeepOutputTail(t *testing.T) {
	runner := &fakeRunner{out: strings.Repeat("a", 100) + "the end"}
	checkout := newCheckout(t)
	b := testBuildConfig(t)
	b.MaxDiagnosticBytes = 7
	p, err := New(Config{CheckoutDir: checkout, ServeDir: t.TempDir(), Build: b}, WithRunner(runner))
	require.NoError(t, err)

	res, err := p.BuildFull(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "...(truncated)\nthe end", res.Diagnostics[0].Output)
}

func TestBuildFullHonorsCancellation(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeRunner{})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := p.BuildFull(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsBuildFailure(err, BuildFull))
}

func TestNewRejectsEmptyCommand(t *testing.T) {
	b := testBuildConfig(t)
	b.Docs = nil
	_, err := New(Config{CheckoutDir: "a", ServeDir: "b", Build: b})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}
