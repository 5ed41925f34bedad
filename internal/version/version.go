// Package version reports the build identity of the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Full is the long form printed by `envoluntary version`.
func Full() string {
	return fmt.Sprintf("%s (%s) %s %s/%s", Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
}

// Short is the bare version.
func Short() string {
	return Version
}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		backfill(info)
	}
}

// backfill takes version, revision and commit time from the module build
// info for `go install` builds. Values from ldflags win.
func backfill(info *debug.BuildInfo) {
	if info == nil {
		return
	}
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, s := range info.Settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if Commit == "none" {
				Commit = s.Value
				if len(Commit) > 7 {
					Commit = Commit[:7]
				}
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" && Commit != "none" {
				Commit += "-dirty"
			}
		}
	}
}
