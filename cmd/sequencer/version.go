package main

import (
	"fmt"
	"io"
	"runtime/debug"
)

// version is stamped by the release build:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/sequencer/
var version = "dev"

// resolveVersion prefers the stamped version, then the module version of an
// installed binary, then the VCS revision of a local build.
func resolveVersion(stamped string, info *debug.BuildInfo, ok bool) string {
	if stamped != "" && stamped != "dev" {
		return stamped
	}
	if !ok || info == nil {
		return "dev"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "dev"
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		rev += "-dirty"
	}
	return "dev+" + rev
}

func currentVersion() string {
	info, ok := debug.ReadBuildInfo()
	return resolveVersion(version, info, ok)
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, "sequencer", currentVersion())
}
