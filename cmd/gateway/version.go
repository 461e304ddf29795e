// In file: cmd/gateway/version.go
package main

import (
	"fmt"
	"runtime"

	appversion "github.com/dileep-u-k/mcp-gateway/internal/version"
)

// Overridden at build time via -ldflags.
var (
	buildVersion = appversion.App
	buildDate    = "unknown"
	gitCommit    = "unknown"
)

type BuildInfo struct {
	Version, BuildDate, GitCommit, GoVersion, Platform string
}

func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   buildVersion,
		BuildDate: buildDate,
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
