// Package versions exposes build information for the roster-sync binary.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

const unknown = "unknown"

// Values injected at build time through -ldflags.
var (
	Version   = "dev"
	Commit    = unknown
	BuildDate = unknown
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the build information of the running binary.
func GetVersionInfo() Info {
	return resolve(Version, Commit, BuildDate, readVCS)
}

// UserAgent is sent on every outbound request to the remote roster system.
func UserAgent() string {
	return fmt.Sprintf("roster-sync/%s", GetVersionInfo().Version)
}

type vcsReader func() (revision, modified string)

func readVCS() (string, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	var revision, vcsTime string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			vcsTime = s.Value
		}
	}
	return revision, vcsTime
}

func resolve(version, commit, buildDate string, vcs vcsReader) Info {
	if version == "dev" {
		revision, vcsTime := vcs()
		if commit == unknown && revision != "" {
			commit = revision
		}
		if buildDate == unknown && vcsTime != "" {
			buildDate = vcsTime
		}
		version = fmt.Sprintf("dev-%.*s", 8, commit)
	}

	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 MST")
	}

	return Info{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
