// Command threejs-sync mirrors the three.js repository, builds its site and
// serves it locally.
package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/kang-git/threejs-sync-server/cmd/threejs-sync/commands"
	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
	"github.com/kang-git/threejs-sync-server/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("threejs-sync"),
		kong.Description("Keep a local three.js mirror synced, built and served."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	if err := parser.Run(&commands.Global{Logger: slog.Default()}, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
