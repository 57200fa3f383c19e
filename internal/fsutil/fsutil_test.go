// SPDX-License-Identifier: MIT

package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"plain name", "s1_segments.json", false},
		{"nested", "a/b.json", false},
		{"dot segment collapses", "a/./b.json", false},
		{"internal dotdot stays inside", "a/../b.json", false},
		{"escape", "../outside.json", true},
		{"deep escape", "a/../../outside.json", true},
		{"bare dotdot", "..", true},
		{"absolute", "/etc/passwd", true},
		{"nul byte", "a\x00b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfineRelPath(root, tt.target)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ConfineRelPath(%q) = %q, want error", tt.target, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConfineRelPath(%q) error: %v", tt.target, err)
			}
			rel, rerr := filepath.Rel(root, got)
			if rerr != nil || rel == ".." || filepath.IsAbs(rel) {
				t.Errorf("result %q not inside root %q", got, root)
			}
		})
	}
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.json")
	if err := os.WriteFile(file, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := IsRegularFile(file); err != nil {
		t.Errorf("IsRegularFile(file) = %v, want nil", err)
	}
	if err := IsRegularFile(dir); err == nil {
		t.Error("IsRegularFile(dir) = nil, want error")
	}
	if err := IsRegularFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("IsRegularFile(missing) = nil, want error")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"s1", "s1"},
		{"session-42_v2.0", "session-42_v2.0"},
		{"a/b", "a_b"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{"sp ace", "sp_ace"},
		{"ümlaut", "_mlaut"},
		{"...hidden", "hidden"},
		{"...", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
