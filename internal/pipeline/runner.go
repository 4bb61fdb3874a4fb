package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/kang-git/threejs-sync-server/internal/logfields"
)

// Command is one external process invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

func (c Command) String() string { return commandString(c.Name, c.Args) }

// Output is what a command wrote to stdout and stderr, interleaved.
type Output struct {
	Combined []byte
	Duration time.Duration
}

// Runner executes external commands. The pipeline never shells out directly.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// waitDelay bounds how long Run waits for pipes after the process is killed.
// npm leaves grandchildren holding stdout open.
const waitDelay = 10 * time.Second

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *slog.Logger
}

// Run starts cmd and waits for it. A command that outlives its timeout is
// killed and reported as a CommandError with Timeout set.
func (r ExecRunner) Run(ctx context.Context, cmd Command) (Output, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = waitDelay
	var buf bytes.Buffer
	c.Stdout = &buf
	c.Stderr = &buf

	logger.Debug("Running command", logfields.Command(cmd.String()), logfields.Path(cmd.Dir))
	start := time.Now()
	err := c.Run()
	out := Output{Combined: buf.Bytes(), Duration: time.Since(start)}
	if err == nil {
		return out, nil
	}

	ce := &CommandError{Command: cmd.String(), Limit: cmd.Timeout, Output: string(out.Combined), Err: err}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		ce.Timeout = true
		ce.Err = context.DeadlineExceeded
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ce.ExitCode = exitErr.ExitCode()
	}
	return out, ce
}
