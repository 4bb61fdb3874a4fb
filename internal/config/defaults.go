package config

import (
	"strconv"
	"strings"
)

// Default values, matching the upstream mirror deployment.
const (
	DefaultSchedule     = "0 0 2 * * *"
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = "5s"
	DefaultCloneTimeout = "10m"
	DefaultPullTimeout  = "10m"
	DefaultPort         = 9753
)

// DefaultCopyDirs are the checkout directories published by a full build.
var DefaultCopyDirs = []string{"build", "docs", "editor", "examples", "manual", "playground", "files", "src"}

func normalize(cfg *Config) {
	for i := range cfg.Sources {
		cfg.Sources[i].Name = strings.TrimSpace(cfg.Sources[i].Name)
		cfg.Sources[i].URL = strings.TrimSpace(cfg.Sources[i].URL)
	}
	cfg.Sync.Schedule = strings.Join(strings.Fields(cfg.Sync.Schedule), " ")
	if cfg.Sync.RetryBackoff != "" {
		cfg.Sync.RetryBackoff = NormalizeRetryBackoff(string(cfg.Sync.RetryBackoff))
	}
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	cfg.Build.UpstreamSite = strings.TrimRight(strings.TrimSpace(cfg.Build.UpstreamSite), "/")
}

func applyDefaults(cfg *Config) {
	for i := range cfg.Sources {
		if cfg.Sources[i].Name == "" {
			if i == 0 {
				cfg.Sources[i].Name = "primary"
			} else {
				cfg.Sources[i].Name = "backup-" + strconv.Itoa(i)
			}
		}
	}

	setDefault(&cfg.Storage.CheckoutDir, "./three.js")
	setDefault(&cfg.Storage.ServeDir, "./public")
	setDefault(&cfg.Storage.DataDir, "./data")
	setDefault(&cfg.Storage.EventRetention, "720h")

	applySyncDefaults(&cfg.Sync)
	applyBuildDefaults(&cfg.Build)

	setDefault(&cfg.Server.Host, "0.0.0.0")
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	setDefault(&cfg.Server.ReadTimeout, "30s")

	setDefault(&cfg.Logging.Dir, "logs")
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 10
	}

	setDefault(&cfg.Monitoring.MetricsPath, "/metrics")
	setDefault(&cfg.Monitoring.HealthPath, "/healthz")
	setDefault(&cfg.Monitoring.StatusPath, "/api/status")
	setDefault(&cfg.Monitoring.CyclesPath, "/api/cycles")
	if cfg.Monitoring.HistorySize <= 0 {
		cfg.Monitoring.HistorySize = 50
	}

	if cfg.Notify.NATSURL != "" {
		setDefault(&cfg.Notify.Subject, "threejs.sync.cycles")
	}
}

func applySyncDefaults(s *SyncConfig) {
	setDefault(&s.Schedule, DefaultSchedule)
	setDefault(&s.CloneTimeout, DefaultCloneTimeout)
	setDefault(&s.PullTimeout, DefaultPullTimeout)
	setDefault(&s.RetryDelay, DefaultRetryDelay)
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.RetryBackoff == "" {
		s.RetryBackoff = RetryBackoffFixed
	}
	setDefault(&s.RetryMaxDelay, "1m")
	if s.ShallowDepth < 0 {
		s.ShallowDepth = 0
	}
}

func applyBuildDefaults(b *BuildConfig) {
	setDefault(&b.DependencyDir, "node_modules")
	if len(b.Install) == 0 {
		b.Install = []string{"npm", "install", "--no-fund", "--no-audit", "--loglevel=error"}
	}
	if len(b.InstallReduced) == 0 {
		b.InstallReduced = []string{"npm", "install", "--production", "--no-fund", "--no-audit", "--loglevel=error"}
	}
	if len(b.Build) == 0 {
		b.Build = []string{"npm", "run", "build"}
	}
	if len(b.Docs) == 0 {
		b.Docs = []string{"npm", "run", "build-docs"}
	}
	setDefault(&b.InstallTimeout, "20m")
	setDefault(&b.InstallReducedTimeout, "10m")
	setDefault(&b.BuildTimeout, "10m")
	setDefault(&b.DocsTimeout, "10m")
	if len(b.CopyDirs) == 0 {
		b.CopyDirs = append([]string(nil), DefaultCopyDirs...)
	}
	setDefault(&b.UpstreamSite, "https://threejs.org")
	setDefault(&b.SourceBrowsePrefix, "https://github.com/mrdoob/three.js/blob/")
	setDefault(&b.CodeviewSourceDir, "src")
	if len(b.CodeviewExtensions) == 0 {
		b.CodeviewExtensions = []string{".js", ".ts", ".glsl", ".json"}
	}
	if len(b.Minimal.RequiredDirs) == 0 && len(b.Minimal.OptionalDirs) == 0 {
		b.Minimal.RequiredDirs = []string{"build"}
		b.Minimal.OptionalDirs = []string{"docs", "examples", "manual", "files"}
	}
	if b.MaxDiagnosticBytes <= 0 {
		b.MaxDiagnosticBytes = 64 * 1024
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}
