// Package version carries build metadata injected at link time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.0"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the full version line printed by the version subcommand.
func String() string {
	return fmt.Sprintf("tlc %s (%s, built %s)", Version, GitSHA, BuildTime)
}
