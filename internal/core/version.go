package core

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Version is resolved at startup from build info: the module version for
// tagged releases, or "devel[-<commit>[-dirty]]" for local builds.
var Version string

func init() {
	info, ok := debug.ReadBuildInfo()
	Version = resolveVersion(info, ok)
}

func resolveVersion(info *debug.BuildInfo, ok bool) string {
	if !ok || info == nil {
		return "devel"
	}

	// Tagged release installed via go install or goreleaser. Pseudo-versions
	// from local Go 1.24+ builds are skipped in favor of VCS info below.
	if v := info.Main.Version; v != "" && v != "(devel)" && !isPseudoVersion(v) {
		return v
	}

	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	if revision == "" {
		return "devel"
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	v := fmt.Sprintf("devel-%s", revision)
	if dirty {
		v += "-dirty"
	}
	return v
}

// FormatVersion formats a version string for display, stripping the "v"
// prefix from tagged releases. Devel versions pass through as-is.
func FormatVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isPseudoVersion reports whether v looks like a Go module pseudo-version,
// i.e. ends with a 12-character hex commit hash such as
// v0.0.0-20260217105831-82903d1d8810.
func isPseudoVersion(v string) bool {
	if i := strings.Index(v, "+"); i >= 0 {
		v = v[:i]
	}
	i := strings.LastIndex(v, "-")
	if i < 0 {
		return false
	}
	hash := v[i+1:]
	if len(hash) != 12 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
