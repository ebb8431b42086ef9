// Package pathutil stands in for the path-normalization and glob-expansion
// collaborators spec.md §1 calls out as external and specified only at
// their interface. The three functions here are deliberately thin: any
// platform-specific tilde handling, symlink resolution, or glob-library
// swap happens behind this seam without touching the registry or server.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Normalize returns the absolute, cleaned form of path, used as the
// registry's path-conflict key so "a/../a/b" and "a/b" are recognized as
// the same transfer target.
func Normalize(path string) (string, error) {
	return filepath.Abs(filepath.Clean(path))
}

// ExpandTilde replaces a leading "~" or "~/" with the current user's home
// directory, if allowTilde is true and the platform (via os.UserHomeDir)
// supports resolving one. It returns an error if tilde expansion was
// requested but no home directory is available.
func ExpandTilde(path string, allowTilde bool) (string, error) {
	if !allowTilde || !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", errNoHome
	}
	if path == "~" {
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

type noHomeError struct{}

func (noHomeError) Error() string { return "pathutil: tilde expansion requested but no home directory is available" }

var errNoHome = noHomeError{}

// Glob expands a glob pattern into matching entries, marking directories
// with a trailing separator the way spec.md §4.1's listPath requires.
func Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			m += string(filepath.Separator)
		}
		out = append(out, m)
	}
	return out, nil
}
