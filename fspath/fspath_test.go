package fspath

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeAbsolute(t *testing.T) {
	dir := t.TempDir()

	normalized, err := Normalize(dir)
	if err != nil {
		t.Fatal("normalization failed:", err)
	}

	if !filepath.IsAbs(normalized.String()) {
		t.Error("normalized path is not absolute")
	}
}

func TestNormalizeRelative(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal("unable to get working directory:", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal("unable to change directory:", err)
	}
	defer os.Chdir(wd)

	normalized, err := Normalize(".")
	if err != nil {
		t.Fatal("normalization failed:", err)
	}
	if normalized.IsEmpty() {
		t.Error("normalized path is empty")
	}
}

func TestNormalizeSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.Mkdir(target, 0700); err != nil {
		t.Fatal("unable to create target directory:", err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skip("symlinks not supported on this platform")
	}

	normalized, err := Normalize(link)
	if err != nil {
		t.Fatal("normalization failed:", err)
	}

	expected, err := Normalize(target)
	if err != nil {
		t.Fatal("normalization failed:", err)
	}

	if normalized != expected {
		t.Errorf("symlink did not resolve to target: %s != %s", normalized, expected)
	}
}

func TestNormalizeNonexistent(t *testing.T) {
	if _, err := Normalize(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("normalization of nonexistent path succeeded unexpectedly")
	}
}

func TestJoin(t *testing.T) {
	p := New("/repo")
	joined := p.Join("2024-01-01_00-00-00", ".backup")
	if joined.String() != filepath.Join("/repo", "2024-01-01_00-00-00", ".backup") {
		t.Errorf("unexpected join result: %s", joined)
	}
}

func TestHasSuffixCaseInsensitive(t *testing.T) {
	p := New(`/src/project/NODE_MODULES`)
	if !p.HasSuffix("node_modules") {
		t.Error("expected case-insensitive suffix match")
	}
	if p.HasSuffix("other") {
		t.Error("unexpected suffix match")
	}
}

func TestHasSuffixRequiresComponentBoundary(t *testing.T) {
	if New(`/src/project/mybackup.txt`).HasSuffix("ackup.txt") {
		t.Error("suffix starting mid-component should not match")
	}
	if !New(`/src/project/my.backup.txt`).HasSuffix(".backup.txt") {
		t.Error("suffix starting at a '.' boundary should match")
	}
	if !New(`/src/project/foo.tmp`).HasSuffix(".tmp") {
		t.Error("extension suffix should match")
	}
	if !New(`/src/project/data_NO_BACKUP`).HasSuffix("_NO_BACKUP") {
		t.Error("suffix starting at a '_' boundary should match")
	}
}

func TestExceedsPlatformLimit(t *testing.T) {
	short := New("/a/b/c")
	if short.ExceedsPlatformLimit() {
		t.Error("short path unexpectedly exceeds platform limit")
	}

	long := New("/" + strings.Repeat("a", 5000))
	if !long.ExceedsPlatformLimit() {
		t.Error("long path unexpectedly within platform limit")
	}
}

func TestRel(t *testing.T) {
	rel, err := Rel(New("/repo/snapshot"), New("/repo/snapshot/src/a.txt"))
	if err != nil {
		t.Fatal("unable to compute relative path:", err)
	}
	if rel.String() != filepath.Join("src", "a.txt") {
		t.Errorf("unexpected relative path: %s", rel)
	}
}
