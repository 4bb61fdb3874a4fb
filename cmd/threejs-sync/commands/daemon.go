package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/kang-git/threejs-sync-server/internal/daemon"
	"github.com/kang-git/threejs-sync-server/internal/logfields"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	ShutdownTimeout time.Duration `help:"Grace period for in-flight work on shutdown" default:"30s"`
}

func (c *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	d, err := daemon.New(ctx, cfg, root.Config)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		_ = d.Stop(context.Background())
		return err
	}
	g.Logger.Info("Serving three.js mirror", logfields.URL("http://"+d.Addr()+"/"))

	<-ctx.Done()
	g.Logger.Info("Shutdown signal received, stopping daemon")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	return nil
}
