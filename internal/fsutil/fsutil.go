// SPDX-License-Identifier: MIT

// Package fsutil provides traversal-safe path helpers shared by the file
// serving and artifact layers.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfineRelPath joins relTarget onto root and verifies the result stays
// inside root. It returns the cleaned absolute path or an error when the
// target escapes the root (".." segments, absolute targets, NUL bytes).
func ConfineRelPath(root, relTarget string) (string, error) {
	if strings.ContainsRune(relTarget, 0x00) {
		return "", fmt.Errorf("path %q contains NUL byte", relTarget)
	}
	if filepath.IsAbs(relTarget) {
		return "", fmt.Errorf("path %q is absolute", relTarget)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}

	full := filepath.Join(rootAbs, relTarget)
	rel, err := filepath.Rel(rootAbs, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root %q", relTarget, root)
	}
	return full, nil
}

// IsRegularFile reports an error unless path exists and is a regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%q is not a regular file", path)
	}
	return nil
}

// SanitizeName reduces an externally supplied identifier to a safe filename
// component: letters, digits, '.', '-' and '_' pass through, everything else
// becomes '_'. Leading dots are stripped so the result can never be hidden or
// a relative traversal segment.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "unknown"
	}
	return out
}
