// Package version carries build metadata injected via -ldflags.
package version

import "go.uber.org/zap"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the short form reported by the health endpoint.
func Info() string {
	return Version + " (" + Commit + ")"
}

// Full includes the build time and is printed by -version.
func Full() string {
	return "clinicpulse " + Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
}

// Fields attaches the build metadata to a log line.
func Fields() []zap.Field {
	return []zap.Field{
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
	}
}
