// Package version carries the build identity of the swsync binary.
package version

import "runtime"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/swsync-network/swsync/pkg/version.Version=v1.0.0 \
//	  -X github.com/swsync-network/swsync/pkg/version.GitCommit=abc1234 \
//	  -X github.com/swsync-network/swsync/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build is the machine-readable form printed by "swsync version --json".
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build identity.
func Get() Build {
	return Build{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// Info returns a formatted version string for display.
func Info() string {
	return Version + " (" + GitCommit + ") built " + BuildDate
}

// UserAgent is sent with every NetBox request.
func UserAgent() string {
	return "swsync/" + Version
}
