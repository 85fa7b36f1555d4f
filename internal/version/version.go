// Package version reports build metadata stamped via -ldflags, falling back
// to the module build info embedded by `go install`.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

// resolved fills unset fields from the embedded build info.
func resolved() (version, commit, date string) {
	version, commit, date = Version, Commit, Date
	info, ok := readBuildInfo()
	if !ok {
		return version, commit, date
	}
	if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	for _, setting := range info.Settings {
		switch {
		case setting.Key == "vcs.revision" && commit == "none":
			commit = setting.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		case setting.Key == "vcs.time" && date == "unknown":
			date = setting.Value
		}
	}
	return version, commit, date
}

func String() string {
	version, commit, date := resolved()
	return "entretien " + version + " (commit=" + commit + ", date=" + date + ", go=" + runtime.Version() + ")"
}

// UserAgent identifies this client to the interview backend.
func UserAgent() string {
	version, _, _ := resolved()
	return "entretien/" + version
}
