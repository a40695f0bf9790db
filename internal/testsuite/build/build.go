// Package build holds version information set at link time with -ldflags "-X".
package build

var (
	ReleaseVersion = "development"
	GitCommit      = "unknown"
	GoVersion      = "unknown"
	BuildTime      = "unknown"
)
