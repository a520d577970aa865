//go:build !windows

package engine

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/repofile"
)

// TestBackupReleasesSourceLockAfterImport guards against the source lock
// leaking past the import that required it: once Backup returns, an
// independent exclusive flock attempt on the source must succeed.
func TestBackupReleasesSourceLockAfterImport(t *testing.T) {
	srcDir := t.TempDir()
	sourcePath := filepath.Join(srcDir, "a.txt")
	os.WriteFile(sourcePath, []byte("lock-release-content"), 0644)

	repo, _ := openRepo(t)

	var stats repofile.Stats
	if _, err := Backup(repo, []fspath.Path{fspath.New(srcDir)}, Options{}, &stats, nil); err != nil {
		t.Fatal(err)
	}

	file, err := os.Open(sourcePath)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		t.Error("expected source lock to be released after backup, flock failed:", err)
	} else {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
	}
}
