// Package version exposes build metadata injected with -ldflags:
//
//	go build -ldflags "-X github.com/HerbHall/aquabot/internal/version.Version=v0.3.0 \
//	  -X github.com/HerbHall/aquabot/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/HerbHall/aquabot/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("aquabot %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Map returns the build metadata for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     Commit,
		"build_date": Date,
		"go_version": runtime.Version(),
	}
}
