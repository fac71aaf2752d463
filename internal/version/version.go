// Package version exposes build metadata stamped in with ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/sessionkeeper/internal/version.Version=1.0.0 \
//	    -X github.com/jmylchreest/sessionkeeper/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	Dirty     = "false"
	BuildDate = "unknown"
)

// Info is the build metadata of the running binary.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Dirty     bool   `json:"dirty" yaml:"dirty"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Dirty:     Dirty == "true",
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns the version, suffixed with -dirty for unclean builds.
func String() string {
	if Dirty == "true" {
		return Version + "-dirty"
	}
	return Version
}

// Full renders Get() for the version command.
func Full() string {
	info := Get()
	lines := []string{
		"sessionkeeper " + String(),
		fmt.Sprintf("  commit:   %s", info.Commit),
		fmt.Sprintf("  built:    %s", info.BuildDate),
		fmt.Sprintf("  go:       %s", info.GoVersion),
		fmt.Sprintf("  platform: %s", info.Platform),
	}
	return strings.Join(lines, "\n")
}
