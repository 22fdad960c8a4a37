// Package version contains build version information.
package version

// Set at build time via ldflags, for example:
//
//	-ldflags "-X .../internal/version.Version=1.2.0"
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
