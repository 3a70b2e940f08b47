// Package version carries irgraphctl's build information, set by
// compiler flags (-ldflags) at release time.
package version

import "fmt"

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// FullVersion returns the full version string reported by `irgraphctl version`.
func FullVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime)
}
