package repofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/size"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal("unable to write fixture file:", err)
	}
}

func TestReadSourceProperties(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "a.txt")
	writeFile(t, source, "hello")

	f := Candidate(fspath.New("a.txt"), fspath.New(dir)).WithSourcePath(fspath.New(source))
	if !f.ReadSourceProperties() {
		t.Fatal("ReadSourceProperties failed unexpectedly")
	}
	if f.Size() != size.Of(5) {
		t.Errorf("unexpected size: %v", f.Size())
	}
	if !f.Time().IsSpecified() {
		t.Error("time not filled in")
	}
}

func TestReadSourcePropertiesMissing(t *testing.T) {
	dir := t.TempDir()
	f := Candidate(fspath.New("missing.txt"), fspath.New(dir)).
		WithSourcePath(fspath.New(filepath.Join(dir, "missing.txt")))
	if f.ReadSourceProperties() {
		t.Fatal("ReadSourceProperties unexpectedly succeeded for missing source")
	}
}

func TestHashSource(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "a.txt")
	writeFile(t, source, "hello")

	f := Candidate(fspath.New("a.txt"), fspath.New(dir)).WithSourcePath(fspath.New(source))
	f.ReadSourceProperties()

	var stats Stats
	if err := f.HashSource(&stats); err != nil {
		t.Fatal("HashSource failed:", err)
	}
	defer f.UnlockSource()
	if !f.IsSourceLocked() {
		t.Error("expected source to remain locked after hashing")
	}
	const expected = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if f.Hash() != expected {
		t.Errorf("unexpected hash: %s", f.Hash())
	}
	if stats.FilesHashed != 1 {
		t.Errorf("unexpected hashed count: %d", stats.FilesHashed)
	}
}

func TestCopyAndLinkShareContent(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.bin")
	content := make([]byte, 2000)
	for i := range content {
		content[i] = byte(i)
	}
	if err := os.WriteFile(source, content, 0644); err != nil {
		t.Fatal(err)
	}

	snapshotDir := filepath.Join(dir, "snapshot")
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		t.Fatal(err)
	}

	copied := Candidate(fspath.New("copy.bin"), fspath.New(snapshotDir)).WithSize(size.Of(2000))
	var stats Stats
	if err := copied.Copy(fspath.New(source), &stats); err != nil {
		t.Fatal("copy failed:", err)
	}
	if stats.FilesCopied != 1 || stats.BytesCopied != 2000 {
		t.Errorf("unexpected copy stats: %+v", stats)
	}

	linked := Candidate(fspath.New("link.bin"), fspath.New(snapshotDir)).WithSize(size.Of(2000))
	if err := linked.Link(copied.FullPath(), &stats); err != nil {
		t.Fatal("link failed:", err)
	}
	if stats.FilesLinked != 1 || stats.BytesLinked != 2000 {
		t.Errorf("unexpected link stats: %+v", stats)
	}

	if linked.FileSystemIndex() != copied.FileSystemIndex() {
		t.Error("linked file does not share filesystem index with its source")
	}
}

// TestLinkSmallFileFollowsPlatformMinimum links a 2-byte file: it is copied
// where that is below hardLinkMinBytes (513 on Windows) and hard-linked
// where it is not (the POSIX minimum is 0).
func TestLinkSmallFileFollowsPlatformMinimum(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "tiny.txt")
	writeFile(t, source, "hi")

	snapshotDir := filepath.Join(dir, "snapshot")
	os.MkdirAll(snapshotDir, 0755)

	f := Candidate(fspath.New("tiny.txt"), fspath.New(snapshotDir)).WithSize(size.Of(2))
	var stats Stats
	if err := f.Link(fspath.New(source), &stats); err != nil {
		t.Fatal("link failed:", err)
	}
	if 2 < hardLinkMinBytes {
		if stats.FilesLinked != 0 || stats.FilesCopied != 1 {
			t.Errorf("expected fallback to copy, got stats: %+v", stats)
		}
	} else if stats.FilesLinked != 1 || stats.FilesCopied != 0 {
		t.Errorf("expected a hard link, got stats: %+v", stats)
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "hello")

	f := Candidate(fspath.New("a.txt"), fspath.New(dir)).WithSize(size.Of(5))
	var stats Stats
	if err := f.Delete(&stats); err != nil {
		t.Fatal("delete failed:", err)
	}
	if f.IsExisting() {
		t.Error("file still exists after delete")
	}
	if stats.FilesDeleted != 1 {
		t.Errorf("unexpected deleted count: %d", stats.FilesDeleted)
	}
}

func TestFileSystemIndexMissing(t *testing.T) {
	f := Candidate(fspath.New("missing"), fspath.New(t.TempDir()))
	if f.FileSystemIndex() != -1 {
		t.Error("expected -1 filesystem index for missing file")
	}
}

func TestStatsSummary(t *testing.T) {
	stats := Stats{FilesHashed: 1, BytesHashed: 100}
	if stats.Summary() == "" {
		t.Error("summary unexpectedly empty")
	}
}
