// Package version carries build metadata set through -ldflags:
//
//	go build -ldflags "-X github.com/kang-git/threejs-sync-server/internal/version.Version=v1.2.0"
package version

import (
	"fmt"
	"runtime/debug"
)

var Version = "unknown"

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func init() {
	if Version != "unknown" {
		return
	}
	// go install of a tagged module records the version in the binary.
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}

// String renders version, commit and build time for --version.
func String() string {
	return fmt.Sprintf("threejs-sync %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
