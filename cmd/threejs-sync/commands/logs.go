package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
	"github.com/kang-git/threejs-sync-server/internal/logging"
)

// LogsCmd groups log maintenance commands.
type LogsCmd struct {
	Clear LogsClearCmd `cmd:"" help:"Truncate one named log file, or all of them with --all"`
}

// LogsClearCmd implements 'logs clear [NAME] [--all]'.
type LogsClearCmd struct {
	Name string `arg:"" optional:"" help:"Log name without the .log suffix (daemon, sync, build, cycle, server, notify)"`
	All  bool   `short:"a" help:"Clear every log file"`
	Dir  string `help:"Log directory; defaults to logging.dir from the configuration" type:"path"`

	out io.Writer
}

func (c *LogsClearCmd) Run(_ *Global, root *CLI) error {
	if c.All == (c.Name != "") {
		return ferrors.ValidationError("specify exactly one of NAME or --all").Build()
	}
	dir, err := c.logDir(root)
	if err != nil {
		return err
	}
	out := c.out
	if out == nil {
		out = os.Stdout
	}

	if !c.All {
		existed, err := logging.ClearLog(dir, c.Name)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to clear log").
				WithContext("name", c.Name).Build()
		}
		if !existed {
			return ferrors.NewError(ferrors.CategoryNotFound, "log file not found").
				WithContext("name", c.Name).WithContext("dir", dir).Build()
		}
		_, err = fmt.Fprintf(out, "Cleared %s.log\n", strings.TrimSuffix(c.Name, ".log"))
		return err
	}

	res, err := logging.ClearAll(dir)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to list log files").
			WithContext("dir", dir).Build()
	}
	for _, name := range res.Cleared {
		fmt.Fprintf(out, "Cleared %s\n", name)
	}
	if len(res.Cleared) == 0 {
		fmt.Fprintln(out, "No log files to clear")
	}
	if len(res.Failed) > 0 {
		b := ferrors.FileSystemError("some log files could not be cleared")
		for name, ferr := range res.Failed {
			b = b.WithContext(name, ferr.Error())
		}
		return b.Build()
	}
	return nil
}

func (c *LogsClearCmd) logDir(root *CLI) (string, error) {
	if c.Dir != "" {
		return c.Dir, nil
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return "", err
	}
	return cfg.Logging.Dir, nil
}
