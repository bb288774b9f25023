// Package version exposes build information for the forecaster binary.
// The variables are set via ldflags at build time.
package version

// Version is the current version of the binary.
// Set via -ldflags "-X github.com/wvencel/forecaster/internal/version.Version=..."
var Version = "dev"

// GitCommit is the git commit hash used to build the binary.
// Set via -ldflags "-X github.com/wvencel/forecaster/internal/version.GitCommit=..."
var GitCommit = "unknown"

// BuildDate is the date when the binary was built.
// Set via -ldflags "-X github.com/wvencel/forecaster/internal/version.BuildDate=..."
var BuildDate = "unknown"

// String returns the bare version string.
func String() string {
	return Version
}

// FullString returns a one-line version string for CLI output.
func FullString() string {
	if Version == "dev" {
		return "forecaster development version"
	}
	return "forecaster " + Version
}

// Info returns all version information as a map.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"gitCommit": GitCommit,
		"buildDate": BuildDate,
	}
}
