package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/kang-git/threejs-sync-server/internal/config"
	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
	"github.com/kang-git/threejs-sync-server/internal/logfields"
	"github.com/kang-git/threejs-sync-server/internal/metrics"
)

// Config locates the checkout and serving root and carries the build section
// of the service configuration.
type Config struct {
	CheckoutDir string
	ServeDir    string
	Build       config.BuildConfig
}

// Diagnostic is the captured output of one external command.
type Diagnostic struct {
	Stage   StageName `json:"stage"`
	Command string    `json:"command"`
	Output  string    `json:"output,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// BuildResult describes a finished build attempt.
type BuildResult struct {
	Kind        BuildKind     `json:"kind"`
	OutputDir   string        `json:"output_dir"`
	Copied      []string      `json:"copied,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	Stages      []StageTiming `json:"stages,omitempty"`
	Duration    time.Duration `json:"duration"`
}

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = metrics.OrNoop(r) }
}

// WithRunner replaces the os/exec runner, mainly for tests.
func WithRunner(r Runner) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.runner = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline builds the served artifact tree from the checkout. It is not safe
// for concurrent builds; the orchestrator runs one cycle at a time.
type Pipeline struct {
	cfg      Config
	logger   *slog.Logger
	recorder metrics.Recorder
	runner   Runner
	rewriter *Rewriter
	now      func() time.Time
}

// New validates cfg and returns a Pipeline.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if cfg.CheckoutDir == "" || cfg.ServeDir == "" {
		return nil, ferrors.ConfigError("pipeline requires checkout and serve directories").Build()
	}
	b := cfg.Build
	for name, argv := range map[string][]string{"install": b.Install, "install_reduced": b.InstallReduced, "build": b.Build, "docs": b.Docs} {
		if len(argv) == 0 {
			return nil, ferrors.ConfigError("build command is empty").WithContext("command", name).Build()
		}
	}

	sections := slices.Concat(b.CopyDirs, b.Minimal.RequiredDirs, b.Minimal.OptionalDirs)
	rw, err := NewRewriter(b.UpstreamSite, b.SourceBrowsePrefix, b.CodeviewSourceDir, sections)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid link rewrite settings").Build()
	}

	p := &Pipeline{
		cfg:      cfg,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		rewriter: rw,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.runner == nil {
		p.runner = ExecRunner{Logger: p.logger}
	}
	return p, nil
}

// BuildFull runs install (when dependencies are missing), build, docs, copy,
// codeview, index and rewrite. The first failing step aborts the build with a
// *BuildFailure of kind BuildFull.
func (p *Pipeline) BuildFull(ctx context.Context) (BuildResult, error) {
	start := p.now()
	res := BuildResult{Kind: BuildFull, OutputDir: p.cfg.ServeDir}
	b := p.cfg.Build
	p.logger.Info("Full build starting", logfields.BuildKind(string(BuildFull)), logfields.Path(p.cfg.CheckoutDir))

	steps := []struct {
		stage StageName
		fn    func(context.Context, *BuildResult) error
	}{
		{StageInstall, p.install},
		{StageBuild, func(ctx context.Context, r *BuildResult) error {
			return p.command(ctx, r, StageBuild, b.Build, b.BuildTimeoutDuration())
		}},
		{StageDocs, func(ctx context.Context, r *BuildResult) error {
			return p.command(ctx, r, StageDocs, b.Docs, b.DocsTimeoutDuration())
		}},
		{StageCopy, p.copyFull},
		{StageCodeview, p.codeview},
		{StageIndex, func(_ context.Context, r *BuildResult) error { return p.index(r, false) }},
		{StageRewrite, p.rewrite},
	}

	for _, step := range steps {
		if err := p.runStage(ctx, &res, step.stage, step.fn); err != nil {
			return p.fail(res, BuildFull, step.stage, err, start)
		}
	}
	return p.finish(res, start), nil
}

// BuildMinimal publishes the prebuilt output already present in the checkout
// without running any external command. Missing optional directories and
// codeview or rewrite problems are recorded as warnings; only a tree that
// cannot be served fails the build.
func (p *Pipeline) BuildMinimal(ctx context.Context) (BuildResult, error) {
	start := p.now()
	res := BuildResult{Kind: BuildMinimal, OutputDir: p.cfg.ServeDir}
	p.logger.Warn("Minimal build starting", logfields.BuildKind(string(BuildMinimal)), logfields.Path(p.cfg.CheckoutDir))

	if err := p.runStage(ctx, &res, StageCopy, p.copyMinimal); err != nil {
		return p.fail(res, BuildMinimal, StageCopy, err, start)
	}
	if err := p.runStage(ctx, &res, StageCodeview, p.codeview); err != nil {
		p.warn(&res, StageCodeview, err)
	}
	if err := p.runStage(ctx, &res, StageIndex, func(_ context.Context, r *BuildResult) error { return p.index(r, true) }); err != nil {
		return p.fail(res, BuildMinimal, StageIndex, err, start)
	}
	if err := p.runStage(ctx, &res, StageRewrite, p.rewrite); err != nil {
		p.warn(&res, StageRewrite, err)
	}
	return p.finish(res, start), nil
}

func (p *Pipeline) runStage(ctx context.Context, res *BuildResult, stage StageName, fn func(context.Context, *BuildResult) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t0 := p.now()
	err := fn(ctx, res)
	d := p.now().Sub(t0)
	timing := StageTiming{Stage: stage, DurationMS: d.Milliseconds()}
	if err != nil {
		timing.Err = err.Error()
	}
	res.Stages = append(res.Stages, timing)
	p.recorder.ObserveStageDuration(string(stage), d)
	p.logger.Debug("Stage finished", logfields.Stage(string(stage)), logfields.Duration(d))
	return err
}

func (p *Pipeline) fail(res BuildResult, kind BuildKind, stage StageName, err error, start time.Time) (BuildResult, error) {
	res.Kind = BuildFailed
	res.Duration = p.now().Sub(start)
	p.recorder.ObserveBuild(string(BuildFailed), res.Duration)
	p.logger.Error("Build failed",
		logfields.BuildKind(string(kind)),
		logfields.Stage(string(stage)),
		logfields.Duration(res.Duration),
		logfields.Error(err))
	return res, &BuildFailure{Kind: kind, Stage: stage, Err: err}
}

func (p *Pipeline) finish(res BuildResult, start time.Time) BuildResult {
	res.Duration = p.now().Sub(start)
	p.recorder.ObserveBuild(string(res.Kind), res.Duration)
	p.logger.Info("Build finished",
		logfields.BuildKind(string(res.Kind)),
		logfields.Duration(res.Duration),
		slog.Int("copied", len(res.Copied)),
		slog.Int("warnings", len(res.Warnings)))
	return res
}

func (p *Pipeline) warn(res *BuildResult, stage StageName, err error) {
	res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", stage, err))
	p.logger.Warn("Build stage degraded", logfields.Stage(string(stage)), logfields.Error(err))
}

// install runs the dependency install unless the dependency directory is
// already present, falling back once to the reduced profile.
func (p *Pipeline) install(ctx context.Context, res *BuildResult) error {
	b := p.cfg.Build
	depDir := filepath.Join(p.cfg.CheckoutDir, b.DependencyDir)
	if dirExists(depDir) {
		p.logger.Info("Dependencies present, skipping install", logfields.Path(depDir))
		return nil
	}
	err := p.command(ctx, res, StageInstall, b.Install, b.InstallTimeoutDuration())
	if err == nil {
		return nil
	}
	p.logger.Warn("Dependency install failed, retrying with reduced profile", logfields.Error(err))
	reducedErr := p.command(ctx, res, StageInstall, b.InstallReduced, b.InstallReducedTimeoutDuration())
	if reducedErr == nil {
		return nil
	}
	category := ferrors.CategoryInstall
	if IsTimeout(reducedErr) {
		category = ferrors.CategoryTimeout
	}
	return ferrors.WrapError(errors.Join(err, reducedErr), category, "dependency install failed").
		WithContext("dependency_dir", b.DependencyDir).
		Build()
}

// command runs argv in the checkout and records its output as a diagnostic.
func (p *Pipeline) command(ctx context.Context, res *BuildResult, stage StageName, argv []string, timeout time.Duration) error {
	cmd := Command{Name: argv[0], Args: argv[1:], Dir: p.cfg.CheckoutDir, Timeout: timeout}
	p.logger.Info("Running build command", logfields.Stage(string(stage)), logfields.Command(cmd.String()))
	out, err := p.runner.Run(ctx, cmd)

	diag := Diagnostic{Stage: stage, Command: cmd.String(), Output: tail(out.Combined, p.cfg.Build.MaxDiagnosticBytes)}
	if err != nil {
		diag.Error = err.Error()
	}
	res.Diagnostics = append(res.Diagnostics, diag)
	if err == nil {
		return nil
	}
	if stage == StageInstall {
		return err
	}
	category := ferrors.CategoryBuild
	if IsTimeout(err) {
		category = ferrors.CategoryTimeout
	}
	return ferrors.WrapError(err, category, "build command failed").
		WithContext("command", cmd.String()).
		Build()
}

func (p *Pipeline) copyFull(ctx context.Context, res *BuildResult) error {
	if err := os.MkdirAll(p.cfg.ServeDir, 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create serve directory").Build()
	}
	for _, dir := range p.cfg.Build.CopyDirs {
		src := filepath.Join(p.cfg.CheckoutDir, dir)
		if !dirExists(src) {
			return ferrors.FileSystemError("published directory missing from checkout").
				WithContext("dir", dir).
				Build()
		}
		if err := replaceDir(ctx, src, filepath.Join(p.cfg.ServeDir, dir)); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "copy published directory").
				WithContext("dir", dir).
				Build()
		}
		res.Copied = append(res.Copied, dir)
	}
	return nil
}

func (p *Pipeline) copyMinimal(ctx context.Context, res *BuildResult) error {
	m := p.cfg.Build.Minimal
	for _, dir := range m.RequiredDirs {
		if !dirExists(filepath.Join(p.cfg.CheckoutDir, dir)) {
			return fmt.Errorf("required directory %q missing: %w", dir, ErrNotServable)
		}
	}
	if err := os.MkdirAll(p.cfg.ServeDir, 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create serve directory").Build()
	}
	for _, dir := range m.RequiredDirs {
		if err := replaceDir(ctx, filepath.Join(p.cfg.CheckoutDir, dir), filepath.Join(p.cfg.ServeDir, dir)); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "copy required directory").
				WithContext("dir", dir).
				Build()
		}
		res.Copied = append(res.Copied, dir)
	}
	for _, dir := range m.OptionalDirs {
		src := filepath.Join(p.cfg.CheckoutDir, dir)
		if !dirExists(src) {
			p.warn(res, StageCopy, fmt.Errorf("optional directory %q missing", dir))
			continue
		}
		if err := replaceDir(ctx, src, filepath.Join(p.cfg.ServeDir, dir)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.warn(res, StageCopy, fmt.Errorf("copy %s: %w", dir, err))
			continue
		}
		res.Copied = append(res.Copied, dir)
	}
	if len(res.Copied) == 0 {
		return fmt.Errorf("no directories published: %w", ErrNotServable)
	}
	return nil
}

func (p *Pipeline) codeview(ctx context.Context, _ *BuildResult) error {
	b := p.cfg.Build
	n, err := generateCodeview(ctx, p.cfg.CheckoutDir, p.cfg.ServeDir, b.CodeviewSourceDir, b.CodeviewExtensions)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "generate code viewer").Build()
	}
	p.logger.Info("Code viewer generated", slog.Int("files", n))
	return nil
}

func (p *Pipeline) index(res *BuildResult, minimal bool) error {
	if err := generateIndex(p.cfg.CheckoutDir, p.cfg.ServeDir, res.Copied, minimal, p.now()); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryBuild, "generate root index").Build()
	}
	return nil
}

func (p *Pipeline) rewrite(ctx context.Context, _ *BuildResult) error {
	n, err := p.rewriter.RewriteTree(ctx, p.cfg.ServeDir)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryLinkRewrite, "rewrite links").Build()
	}
	p.logger.Info("Links rewritten", slog.Int("files", n))
	return nil
}

// tail keeps the last limit bytes of b.
func tail(b []byte, limit int) string {
	if limit <= 0 || len(b) <= limit {
		return string(b)
	}
	return "...(truncated)\n" + string(b[len(b)-limit:])
}
