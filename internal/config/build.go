package config

import "log/slog"

// Release metadata stamped by the engine and trigger builds:
//
//	go build -ldflags "-X learnpulse/internal/config.version=1.2.3 \
//	    -X learnpulse/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X learnpulse/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/engine
//
// Unstamped builds report dev/none/unknown.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo snapshots the stamped release metadata. LoadConfig stores it
// in Config.Build.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// LogValue groups the release metadata under one log attribute.
func (b BuildInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", b.Version),
		slog.String("commit", b.Commit),
		slog.String("build_time", b.BuildTime),
	)
}
