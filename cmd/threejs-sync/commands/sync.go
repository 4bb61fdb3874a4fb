package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kang-git/threejs-sync-server/internal/daemon"
	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
	"github.com/kang-git/threejs-sync-server/internal/orchestrator"
)

// SyncCmd implements the 'sync' command.
type SyncCmd struct {
	JSON bool `help:"Print the finished cycle as JSON"`

	out io.Writer
}

func (c *SyncCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	d, err := daemon.New(ctx, cfg, "")
	if err != nil {
		return fmt.Errorf("failed to create sync service: %w", err)
	}
	cycle := d.RunOnce(ctx)
	if err := d.Stop(context.Background()); err != nil {
		return err
	}

	if err := c.report(cycle); err != nil {
		return err
	}
	return cycleError(cycle)
}

func (c *SyncCmd) report(cycle orchestrator.Cycle) error {
	out := c.out
	if out == nil {
		out = os.Stdout
	}
	if c.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cycle)
	}
	_, err := fmt.Fprintf(out, "cycle %s: %s in %s\n", cycle.ID, cycle.Outcome, cycle.Duration().Round(time.Millisecond))
	if err == nil && cycle.Build != nil {
		_, err = fmt.Fprintf(out, "build: %s, %d directories published\n", cycle.Build.Kind, len(cycle.Build.Copied))
	}
	return err
}

// cycleError turns a failed cycle into an error carrying its exit category.
func cycleError(cycle orchestrator.Cycle) error {
	if cycle.Outcome.Succeeded() {
		return nil
	}
	msg := "sync cycle failed"
	if cycle.Outcome == orchestrator.OutcomeSkipped {
		msg = "sync cycle skipped"
	}
	return ferrors.RuntimeError(msg).
		WithContext("cycle_id", cycle.ID).
		WithContext("error", cycle.Error).
		Build()
}
