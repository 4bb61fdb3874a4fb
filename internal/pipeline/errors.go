package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BuildKind reports which build produced the artifact tree.
type BuildKind string

const (
	BuildFull    BuildKind = "full"
	BuildMinimal BuildKind = "minimal"
	BuildFailed  BuildKind = "failed"
)

// ErrNotServable means a minimal build could not produce a usable tree.
var ErrNotServable = errors.New("artifact tree is not servable")

// BuildFailure is returned by BuildFull and BuildMinimal. Kind names the build
// that failed, Stage the step that aborted it.
type BuildFailure struct {
	Kind  BuildKind
	Stage StageName
	Err   error
}

func (e *BuildFailure) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s build failed at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *BuildFailure) Unwrap() error { return e.Err }

// IsBuildFailure reports whether err is a BuildFailure of the given kind.
func IsBuildFailure(err error, kind BuildKind) bool {
	var bf *BuildFailure
	return errors.As(err, &bf) && bf.Kind == kind
}

// CommandError describes an external command that failed or ran out of time.
type CommandError struct {
	Command  string
	Timeout  bool
	Limit    time.Duration
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("command %q timed out after %s", e.Command, e.Limit)
	}
	if e.ExitCode != 0 {
		return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// RewriteError reports a file the link rewriter could not process.
type RewriteError struct {
	Path string
	Err  error
}

func (e *RewriteError) Error() string { return "rewrite " + e.Path + ": " + e.Err.Error() }
func (e *RewriteError) Unwrap() error { return e.Err }

// IsTimeout reports whether err was caused by a command or context deadline.
func IsTimeout(err error) bool {
	var ce *CommandError
	if errors.As(err, &ce) && ce.Timeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func commandString(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
