package common

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version and GitCommit can be set via ldflags at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
)

type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	// Fall back to module info when ldflags were not set
	if Version == "dev" {
		if build, ok := debug.ReadBuildInfo(); ok {
			if len(build.Main.Version) > 0 && build.Main.Version != "(devel)" {
				info.Version = build.Main.Version
			}
			for _, setting := range build.Settings {
				if setting.Key == "vcs.revision" {
					info.GitCommit = setting.Value
					break
				}
			}
		}
	}

	return info
}

func GetVersion() string {
	info := GetBuildInfo()
	return fmt.Sprintf("%s (git: %s)", info.Version, info.GitCommit)
}
