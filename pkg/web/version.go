package web

import "sync"

// buildInfo is stamped by the binary at startup and reported on /health.
type buildInfo struct {
	version string
	commit  string
	built   string
}

var (
	buildMu sync.RWMutex
	build   = buildInfo{version: "dev", commit: "unknown", built: "unknown"}
)

// SetVersionInfo records the build identity exposed by the web API
func SetVersionInfo(version, commit, built string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	build = buildInfo{version: version, commit: commit, built: built}
}

// GetVersionInfo returns the recorded build identity
func GetVersionInfo() (version, commit, built string) {
	buildMu.RLock()
	defer buildMu.RUnlock()
	return build.version, build.commit, build.built
}
