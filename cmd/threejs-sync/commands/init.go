package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/kang-git/threejs-sync-server/internal/config"
	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`

	out io.Writer
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	if err := config.Init(root.Config, i.Force); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to write configuration").
			WithContext("path", root.Config).Build()
	}
	out := i.out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintf(out, "Wrote example configuration to %s\n", root.Config)
	return err
}
