package core

import (
	"runtime/debug"
	"testing"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct{ in, want string }{
		{"v1.12.0", "1.12.0"},
		{"devel", "devel"},
		{"devel-ad721b3", "devel-ad721b3"},
		{"devel-ad721b3-dirty", "devel-ad721b3-dirty"},
	}
	for _, tt := range tests {
		if got := FormatVersion(tt.in); got != tt.want {
			t.Errorf("FormatVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsPseudoVersion(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"v0.0.0-20260217105831-82903d1d8810", true},
		{"v1.12.1-0.20260217105831-82903d1d8810", true},
		{"v0.0.0-20260217105831-82903d1d8810+dirty", true},
		{"v1.12.0", false},
		{"(devel)", false},
		{"v1.0.0-rc1", false},
	}
	for _, tt := range tests {
		if got := isPseudoVersion(tt.in); got != tt.want {
			t.Errorf("isPseudoVersion(%q) = %t, want %t", tt.in, got, tt.want)
		}
	}
}

func TestResolveVersion(t *testing.T) {
	if got := resolveVersion(nil, false); got != "devel" {
		t.Errorf("resolveVersion(nil) = %q, want devel", got)
	}

	tagged := &debug.BuildInfo{}
	tagged.Main.Version = "v1.3.0"
	if got := resolveVersion(tagged, true); got != "v1.3.0" {
		t.Errorf("tagged build: got %q, want v1.3.0", got)
	}

	local := &debug.BuildInfo{
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "ad721b3f00baddeadbeef00112233445566aabb"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	local.Main.Version = "(devel)"
	if got := resolveVersion(local, true); got != "devel-ad721b3-dirty" {
		t.Errorf("local build: got %q, want devel-ad721b3-dirty", got)
	}

	noVCS := &debug.BuildInfo{}
	noVCS.Main.Version = "(devel)"
	if got := resolveVersion(noVCS, true); got != "devel" {
		t.Errorf("no VCS info: got %q, want devel", got)
	}
}
