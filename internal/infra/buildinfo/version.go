// Package buildinfo exposes the version stamped into the binary at
// build time:
//
//	go build -ldflags "-X .../internal/infra/buildinfo.Version=v1.2.0"
package buildinfo

import (
	"fmt"
	"runtime"
)

// Set via ldflags; defaults identify an untagged developer build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build identity reported by the version endpoints.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the stamped build identity.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String renders the identity on one line for --version output.
func String() string {
	return fmt.Sprintf("%s (%s) built at %s", Version, Commit, BuildTime)
}
