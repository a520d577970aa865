package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/repofile"
	"github.com/xlrth/backup/size"
	"github.com/xlrth/backup/snapshot"
	"github.com/xlrth/backup/timestamp"
)

func createSnapshot(t *testing.T, repoPath fspath.Path, at time.Time, hash string) {
	t.Helper()
	name := snapshot.NameForTime(at, "")
	s, err := snapshot.Create(repoPath.Join(name), nil)
	if err != nil {
		t.Fatal("unable to create snapshot:", err)
	}
	defer s.Close()

	candidate := repofile.Candidate(fspath.New("a.txt"), s.Path()).
		WithSourcePath(fspath.New("/source/a.txt")).
		WithSize(size.Of(1)).
		WithTime(timestamp.FromSystemTime(at)).
		WithHash(hash)

	if err := s.Index().Insert(candidate); err != nil {
		t.Fatal("unable to insert row:", err)
	}
	if err := s.ClearInProgress(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenDiscoversExistingSnapshots(t *testing.T) {
	repoPath := fspath.New(filepath.Join(t.TempDir(), "repo"))

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	createSnapshot(t, repoPath, older, "hash-old")
	createSnapshot(t, repoPath, newer, "hash-new")

	repo, err := Open(repoPath, false, nil)
	if err != nil {
		t.Fatal("unable to open repository:", err)
	}
	defer repo.Close()

	if len(repo.Snapshots()) != 2 {
		t.Fatalf("expected 2 discovered snapshots, got %d", len(repo.Snapshots()))
	}
	if repo.Snapshots()[0].Path().Base() != snapshot.NameForTime(older, "") {
		t.Errorf("expected oldest snapshot first, got %s", repo.Snapshots()[0].Path())
	}
	if repo.Snapshots()[1].Path().Base() != snapshot.NameForTime(newer, "") {
		t.Errorf("expected newest snapshot last, got %s", repo.Snapshots()[1].Path())
	}
}

func TestOpenRejectsConcurrentWriters(t *testing.T) {
	repoPath := fspath.New(filepath.Join(t.TempDir(), "repo"))

	first, err := Open(repoPath, true, nil)
	if err != nil {
		t.Fatal("unable to open repository:", err)
	}
	defer first.Close()

	if _, err := Open(repoPath, false, nil); err == nil {
		t.Error("expected second Open on a locked repository to fail")
	}
}

func TestOpenWithoutCreateRequiresExistingDirectory(t *testing.T) {
	repoPath := fspath.New(filepath.Join(t.TempDir(), "missing"))
	if _, err := Open(repoPath, false, nil); err == nil {
		t.Error("expected Open without create to fail on a missing directory")
	}
}

func TestAttachAndDetachSnapshot(t *testing.T) {
	repoPath := fspath.New(filepath.Join(t.TempDir(), "repo"))
	repo, err := Open(repoPath, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	name := snapshot.NameForTime(time.Now(), "")
	s, err := snapshot.Create(repoPath.Join(name), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := repo.AttachSnapshot(s); err != nil {
		t.Fatal("attach failed:", err)
	}
	if err := repo.AttachSnapshot(s); err == nil {
		t.Error("expected duplicate attach to fail")
	}

	detached, err := repo.DetachSnapshot(s.Path())
	if err != nil {
		t.Fatal("detach failed:", err)
	}
	if detached.Path() != s.Path() {
		t.Error("detached the wrong snapshot")
	}
	if len(repo.Snapshots()) != 0 {
		t.Errorf("expected no attached snapshots after detach, got %d", len(repo.Snapshots()))
	}
	detached.Close()
}

func TestAttachRejectsForeignPath(t *testing.T) {
	repoPath := fspath.New(filepath.Join(t.TempDir(), "repo"))
	repo, err := Open(repoPath, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	elsewhere := fspath.New(filepath.Join(t.TempDir(), "2026-01-01_00-00-00"))
	s, err := snapshot.Create(elsewhere, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := repo.AttachSnapshot(s); err == nil {
		t.Error("expected attach of a snapshot outside the repository to fail")
	}
}

func TestFindFileReturnsNewestMatchFirst(t *testing.T) {
	repoPath := fspath.New(filepath.Join(t.TempDir(), "repo"))

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	createSnapshot(t, repoPath, older, "shared-hash")
	createSnapshot(t, repoPath, newer, "shared-hash")

	repo, err := Open(repoPath, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	found, ok, err := repo.FindFile(repofile.Candidate("", "").WithHash("shared-hash"), false)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a match")
	}

	newestSnapshot := repo.Snapshots()[len(repo.Snapshots())-1]
	if found.ParentPath() != newestSnapshot.Path() {
		t.Errorf("expected match from newest snapshot %s, got %s", newestSnapshot.Path(), found.ParentPath())
	}
}

func TestFindFileNoMatch(t *testing.T) {
	repoPath := fspath.New(filepath.Join(t.TempDir(), "repo"))
	repo, err := Open(repoPath, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	_, ok, err := repo.FindFile(repofile.Candidate("", "").WithHash("nonexistent"), false)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no match in an empty repository")
	}
}

func TestCloseReleasesLock(t *testing.T) {
	repoPath := fspath.New(filepath.Join(t.TempDir(), "repo"))
	repo, err := Open(repoPath, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Close(); err != nil {
		t.Fatal("close failed:", err)
	}

	reopened, err := Open(repoPath, false, nil)
	if err != nil {
		t.Fatal("expected to reacquire the lock after close:", err)
	}
	reopened.Close()
}
