// Package commands implements the threejs-sync subcommands.
package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kang-git/threejs-sync-server/internal/config"
	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
)

// Global carries state shared by every subcommand.
type Global struct {
	Logger *slog.Logger
}

// CLI is the root command line.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Daemon DaemonCmd `cmd:"" help:"Run the sync service: startup cycle, schedule and static server"`
	Sync   SyncCmd   `cmd:"" help:"Run one sync cycle and exit non-zero if it failed"`
	Init   InitCmd   `cmd:"" help:"Write an example configuration file"`
	Logs   LogsCmd   `cmd:"" help:"Manage log files"`
}

// AfterApply installs the console logger once flags are parsed.
// nolint:unparam // kong hook signature.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig loads root.Config, raising the log level when -v is set.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		if _, ok := ferrors.AsClassified(err); ok {
			return nil, err
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load configuration").
			WithContext("path", root.Config).Build()
	}
	if root.Verbose {
		cfg.Logging.Level = config.LogLevelDebug
	}
	return cfg, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
