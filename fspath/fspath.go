// Package fspath provides a value type for filesystem paths, with
// canonicalization and a platform length guard.
package fspath

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// maxLengthWindows is the path length Windows enforces without long-path
// opt-in. maxLengthPosix is Linux's conventional PATH_MAX, used as a
// conservative bound on other platforms.
const (
	maxLengthWindows = 260
	maxLengthPosix   = 4096
)

// Path is a canonicalized filesystem path. The zero value is not a valid
// Path; construct one with New or Normalize.
type Path string

// New wraps a path string without any canonicalization. It is intended for
// paths that are already known to be absolute and clean, such as those
// loaded back out of the index.
func New(path string) Path {
	return Path(path)
}

// Normalize converts path to an absolute, symlink-free form. Unlike the
// teacher's filesystem.Normalize, it performs no tilde expansion: source
// roots and repository paths for a backup tool are not interactively typed
// shell arguments, so "~" has no special meaning here.
func Normalize(path string) (Path, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, "unable to compute absolute path")
	}

	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return "", errors.Wrap(err, "unable to evaluate symlinks")
	}

	return Path(resolved), nil
}

// String returns the path as a native string.
func (p Path) String() string {
	return string(p)
}

// Join appends elements to p using the platform separator.
func (p Path) Join(elements ...string) Path {
	parts := make([]string, 0, len(elements)+1)
	parts = append(parts, string(p))
	parts = append(parts, elements...)
	return Path(filepath.Join(parts...))
}

// Dir returns the parent of p.
func (p Path) Dir() Path {
	return Path(filepath.Dir(string(p)))
}

// Base returns the final element of p.
func (p Path) Base() string {
	return filepath.Base(string(p))
}

// IsEmpty reports whether p holds no path at all.
func (p Path) IsEmpty() bool {
	return p == ""
}

// ExceedsPlatformLimit reports whether p is longer than this platform
// tolerates without special long-path handling. Callers constructing
// archive paths (engine target-path formatting) must check this and record
// a per-file error rather than attempt the filesystem operation.
func (p Path) ExceedsPlatformLimit() bool {
	if runtime.GOOS == "windows" {
		return len(p) > maxLengthWindows
	}
	return len(p) > maxLengthPosix
}

// HasSuffix reports whether p ends in suffix, comparing case-insensitively.
// The match must start at a component boundary — the start of the path, a
// path separator, or a '.'/'_' inside the final component — so a pattern
// like "ackup.txt" does not spuriously match "mybackup.txt". This is the
// matching rule the exclusion predicate uses.
func (p Path) HasSuffix(suffix string) bool {
	lowerPath := strings.ToLower(string(p))
	lowerSuffix := strings.ToLower(suffix)
	if !strings.HasSuffix(lowerPath, lowerSuffix) {
		return false
	}

	boundary := len(lowerPath) - len(lowerSuffix)
	if boundary == 0 || lowerPath[boundary-1] == '/' || lowerPath[boundary-1] == byte(filepath.Separator) {
		return true
	}
	if boundary == len(lowerPath) {
		return false
	}
	switch lowerPath[boundary] {
	case '/', '.', '_':
		return true
	default:
		return lowerPath[boundary] == byte(filepath.Separator)
	}
}

// Rel returns target expressed relative to base.
func Rel(base, target Path) (Path, error) {
	rel, err := filepath.Rel(string(base), string(target))
	if err != nil {
		return "", errors.Wrap(err, "unable to compute relative path")
	}
	return Path(rel), nil
}
