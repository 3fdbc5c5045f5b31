// Package buildinfo exposes version information stamped in at link time.
package buildinfo

import (
	"fmt"
	"runtime"
)

// Build information. Populated at build time via -ldflags, e.g.
//
//	-X github.com/good-yellow-bee/datamantri/pkg/buildinfo.Version=v1.0.0
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info contains all build information.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the current build information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a one-line version description.
func (i Info) String() string {
	return fmt.Sprintf("datamantri %s (%s) built at %s with %s for %s",
		i.Version, i.Commit, i.BuildTime, i.GoVersion, i.Platform)
}
