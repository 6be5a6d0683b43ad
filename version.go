package redisinjector

import (
	"fmt"
	"runtime"
)

// Version is the current version of redis-injector.
const Version = "0.3.0"

// Set through -ldflags "-X github.com/raniellyferreira/redis-injector.GitCommit=..."
var (
	GitCommit string
	BuildTime string
)

// VersionInfo returns version, build and runtime details
func VersionInfo() map[string]string {
	info := map[string]string{
		"version": Version,
		"go":      runtime.Version(),
	}
	if GitCommit != "" {
		info["commit"] = GitCommit
	}
	if BuildTime != "" {
		info["buildTime"] = BuildTime
	}
	return info
}

// VersionString is the one-line form printed by the version command
func VersionString() string {
	s := "redis-injector " + Version
	if GitCommit != "" {
		s += fmt.Sprintf(" (%s", GitCommit)
		if BuildTime != "" {
			s += ", " + BuildTime
		}
		s += ")"
	}
	return s + " " + runtime.Version()
}
