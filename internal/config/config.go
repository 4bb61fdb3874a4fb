package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Sources    []Source         `yaml:"sources"`
	Branch     string           `yaml:"branch,omitempty"`
	Storage    StorageConfig    `yaml:"storage"`
	Sync       SyncConfig       `yaml:"sync"`
	Build      BuildConfig      `yaml:"build"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Notify     NotifyConfig     `yaml:"notify,omitempty"`
}

// Source is one candidate remote. The first configured source is the primary.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// StorageConfig locates the checkout, the serving root and persistent data.
type StorageConfig struct {
	CheckoutDir string `yaml:"checkout_dir"`
	ServeDir    string `yaml:"serve_dir"`
	DataDir     string `yaml:"data_dir"`

	// EventRetention bounds how long cycle events are kept in the data dir.
	EventRetention string `yaml:"event_retention,omitempty"`
}

// SyncConfig controls scheduling and the clone/pull retry budget.
type SyncConfig struct {
	Schedule      string           `yaml:"schedule"` // six-field cron, seconds first
	SyncOnStart   *bool            `yaml:"sync_on_start,omitempty"`
	CloneTimeout  string           `yaml:"clone_timeout"`
	PullTimeout   string           `yaml:"pull_timeout"`
	MaxRetries    int              `yaml:"max_retries"` // total attempts per source
	RetryDelay    string           `yaml:"retry_delay"`
	RetryBackoff  RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryMaxDelay string           `yaml:"retry_max_delay,omitempty"`
	ShallowDepth  int              `yaml:"shallow_depth,omitempty"`
}

// BuildConfig describes the external build commands and the artifact layout.
type BuildConfig struct {
	DependencyDir         string        `yaml:"dependency_dir"`
	Install               []string      `yaml:"install"`
	InstallReduced        []string      `yaml:"install_reduced"`
	Build                 []string      `yaml:"build"`
	Docs                  []string      `yaml:"docs"`
	InstallTimeout        string        `yaml:"install_timeout"`
	InstallReducedTimeout string        `yaml:"install_reduced_timeout"`
	BuildTimeout          string        `yaml:"build_timeout"`
	DocsTimeout           string        `yaml:"docs_timeout"`
	CopyDirs              []string      `yaml:"copy_dirs"`
	UpstreamSite          string        `yaml:"upstream_site"`
	SourceBrowsePrefix    string        `yaml:"source_browse_prefix"`
	CodeviewSourceDir     string        `yaml:"codeview_source_dir"`
	CodeviewExtensions    []string      `yaml:"codeview_extensions"`
	Minimal               MinimalConfig `yaml:"minimal"`
	MaxDiagnosticBytes    int           `yaml:"max_diagnostic_bytes"`
}

// MinimalConfig is the reduced artifact set used when the full build fails.
type MinimalConfig struct {
	RequiredDirs []string `yaml:"required_dirs"`
	OptionalDirs []string `yaml:"optional_dirs"`
}

// ServerConfig represents the static server listener.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ReadTimeout string `yaml:"read_timeout"`
}

// LoggingConfig represents log output configuration.
type LoggingConfig struct {
	Dir        string    `yaml:"dir"`
	Level      LogLevel  `yaml:"level"`
	Format     LogFormat `yaml:"format"`
	MaxSizeMB  int       `yaml:"max_size_mb"`
	MaxBackups int       `yaml:"max_backups"`
	Compress   bool      `yaml:"compress,omitempty"`
	Console    *bool     `yaml:"console,omitempty"`
}

// MonitoringConfig represents metrics and health endpoints.
type MonitoringConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsPath    string `yaml:"metrics_path"`
	HealthPath     string `yaml:"health_path"`
	StatusPath     string `yaml:"status_path"`
	CyclesPath     string `yaml:"cycles_path"`
	HistorySize    int    `yaml:"history_size,omitempty"`
}

// NotifyConfig enables cycle notifications over NATS when NATSURL is set.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Load loads, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML after expanding environment variables.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)
	applyDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Sources: []Source{
			{Name: "github", URL: "https://github.com/mrdoob/three.js.git"},
			{Name: "gitee", URL: "https://gitee.com/mirrors/three.js.git"},
		},
		Storage: StorageConfig{
			CheckoutDir:    "./three.js",
			ServeDir:       "./public",
			DataDir:        "./data",
			EventRetention: "720h",
		},
		Sync: SyncConfig{
			Schedule:     "0 0 2 * * *",
			CloneTimeout: "10m",
			PullTimeout:  "10m",
			MaxRetries:   3,
			RetryDelay:   "5s",
			RetryBackoff: RetryBackoffFixed,
		},
		Server: ServerConfig{Host: "0.0.0.0", Port: 9753},
		Logging: LoggingConfig{
			Dir:        "logs",
			Level:      LogLevelInfo,
			Format:     LogFormatText,
			MaxSizeMB:  10,
			MaxBackups: 10,
		},
		Monitoring: MonitoringConfig{MetricsEnabled: true},
		Notify:     NotifyConfig{NATSURL: "${THREEJS_SYNC_NATS_URL}", Subject: "threejs.sync.cycles"},
	}
	applyDefaults(&example)

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}
	// #nosec G306 -- example config is not sensitive
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SyncOnStartEnabled reports whether a cycle runs once at startup.
func (s SyncConfig) SyncOnStartEnabled() bool {
	return s.SyncOnStart == nil || *s.SyncOnStart
}

func (s SyncConfig) CloneTimeoutDuration() time.Duration  { return mustDuration(s.CloneTimeout) }
func (s SyncConfig) PullTimeoutDuration() time.Duration   { return mustDuration(s.PullTimeout) }
func (s SyncConfig) RetryDelayDuration() time.Duration    { return mustDuration(s.RetryDelay) }
func (s SyncConfig) RetryMaxDelayDuration() time.Duration { return mustDuration(s.RetryMaxDelay) }

func (b BuildConfig) InstallTimeoutDuration() time.Duration { return mustDuration(b.InstallTimeout) }
func (b BuildConfig) InstallReducedTimeoutDuration() time.Duration {
	return mustDuration(b.InstallReducedTimeout)
}
func (b BuildConfig) BuildTimeoutDuration() time.Duration { return mustDuration(b.BuildTimeout) }
func (b BuildConfig) DocsTimeoutDuration() time.Duration  { return mustDuration(b.DocsTimeout) }

func (s StorageConfig) EventRetentionDuration() time.Duration { return mustDuration(s.EventRetention) }

func (s ServerConfig) ReadTimeoutDuration() time.Duration { return mustDuration(s.ReadTimeout) }

// Address returns host:port for the listener.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConsoleEnabled reports whether logs are also written to stderr.
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

// mustDuration parses a duration already checked by validation; unparsable yields 0.
func mustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
