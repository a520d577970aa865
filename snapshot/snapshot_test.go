package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/repofile"
	"github.com/xlrth/backup/size"
	"github.com/xlrth/backup/timestamp"
)

func TestNameRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
	name := NameForTime(now, "")
	parsed, ok := ParseName(name)
	if !ok {
		t.Fatal("failed to parse generated name")
	}
	if !parsed.Equal(now) {
		t.Errorf("round trip mismatch: %v != %v", parsed, now)
	}
}

func TestNameWithSuffix(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
	name := NameForTime(now, "retry")
	if filepath.Ext(name) != "" {
		// sanity: suffix shouldn't look like a file extension
		t.Errorf("suffixed name looks like a file extension: %q", name)
	}
	if _, ok := ParseName(name); !ok {
		t.Fatal("failed to parse suffixed name")
	}
}

func TestParseNameRejectsGarbage(t *testing.T) {
	if _, ok := ParseName("not-a-timestamp"); ok {
		t.Error("garbage name unexpectedly parsed")
	}
}

func TestCreateSetsInProgress(t *testing.T) {
	path := fspath.New(filepath.Join(t.TempDir(), "2024-01-01_00-00-00"))
	s, err := Create(path, nil)
	if err != nil {
		t.Fatal("create failed:", err)
	}
	defer s.Close()

	if !s.IsInProgress() {
		t.Error("newly created snapshot is not marked in progress")
	}
}

func TestCreateRejectsExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	path := fspath.New(filepath.Join(dir, "2024-01-01_00-00-00"))
	os.MkdirAll(path.String(), 0755)

	if _, err := Create(path, nil); err == nil {
		t.Fatal("create unexpectedly succeeded for existing directory")
	}
}

func TestOpenRefusesInProgress(t *testing.T) {
	path := fspath.New(filepath.Join(t.TempDir(), "2024-01-01_00-00-00"))
	s, err := Create(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open(path, nil); err == nil {
		t.Fatal("open unexpectedly succeeded against an in-progress snapshot")
	}
}

func TestOpenAfterClear(t *testing.T) {
	path := fspath.New(filepath.Join(t.TempDir(), "2024-01-01_00-00-00"))
	s, err := Create(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.ClearInProgress(); err != nil {
		t.Fatal("clear failed:", err)
	}
	s.Close()

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatal("open failed after clearing IN_PROGRESS:", err)
	}
	defer reopened.Close()

	if reopened.IsInProgress() {
		t.Error("reopened snapshot unexpectedly in progress")
	}
}

func TestInsertFileAndFindFile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.txt")
	os.WriteFile(source, []byte("hello"), 0644)

	path := fspath.New(filepath.Join(dir, "2024-01-01_00-00-00"))
	s, err := Create(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	target := repofile.Candidate(fspath.New("a.txt"), s.Path()).
		WithSourcePath(fspath.New(source)).
		WithSize(size.Of(5)).
		WithTime(timestamp.FromSystemTime(time.Now())).
		WithHash("deadbeef")

	var stats repofile.Stats
	inserted, err := s.InsertFile(fspath.New(source), target, false, &stats)
	if err != nil {
		t.Fatal("insert failed:", err)
	}
	if !inserted.IsExisting() {
		t.Error("inserted file does not exist on disk")
	}

	found, ok, err := s.FindFile(repofile.Candidate("", s.Path()).WithHash("deadbeef"), false)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected to find inserted row")
	}
	if found.Hash() != "deadbeef" {
		t.Errorf("unexpected hash: %s", found.Hash())
	}
}

func TestDeleteFile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.txt")
	os.WriteFile(source, []byte("hello"), 0644)

	path := fspath.New(filepath.Join(dir, "2024-01-01_00-00-00"))
	s, err := Create(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	target := repofile.Candidate(fspath.New("a.txt"), s.Path()).
		WithSize(size.Of(5)).
		WithTime(timestamp.FromSystemTime(time.Now())).
		WithHash("deadbeef")

	var stats repofile.Stats
	inserted, err := s.InsertFile(fspath.New(source), target, false, &stats)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFile(inserted, &stats); err != nil {
		t.Fatal("delete failed:", err)
	}
	if inserted.IsExisting() {
		t.Error("deleted file still exists")
	}

	rows, err := s.FindAll(repofile.Candidate("", s.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows after delete, got %d", len(rows))
	}
}
