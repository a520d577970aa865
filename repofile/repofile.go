// Package repofile implements RepoFile, the immutable-after-construction
// descriptor for a single logical file inside a snapshot, along with the
// operations that realize it on disk: locked hashing of its source, copy
// and hard-link materialization, and deletion.
package repofile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/size"
	"github.com/xlrth/backup/timestamp"
)

// Stats accumulates the process-wide counters the reference engine keeps as
// globals (files/bytes hashed, copied, linked, deleted). It is passed by
// reference through the engine and maintenance protocols rather than kept
// as package state, so that concurrent commands in the same process (tests,
// in particular) don't share counters.
type Stats struct {
	FilesHashed, FilesCopied, FilesLinked, FilesDeleted int64
	BytesHashed, BytesCopied, BytesLinked, BytesDeleted int64

	Errors, Warnings int64
}

// Add merges other into s.
func (s *Stats) Add(other Stats) {
	s.FilesHashed += other.FilesHashed
	s.FilesCopied += other.FilesCopied
	s.FilesLinked += other.FilesLinked
	s.FilesDeleted += other.FilesDeleted
	s.BytesHashed += other.BytesHashed
	s.BytesCopied += other.BytesCopied
	s.BytesLinked += other.BytesLinked
	s.BytesDeleted += other.BytesDeleted
	s.Errors += other.Errors
	s.Warnings += other.Warnings
}

// Summary renders the counters in the fixed column layout the session
// summary at close prints, per spec.
func (s Stats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "hashed:  %11s files %19s bytes\n", humanize.Comma(s.FilesHashed), humanize.Comma(s.BytesHashed))
	fmt.Fprintf(&b, "copied:  %11s files %19s bytes\n", humanize.Comma(s.FilesCopied), humanize.Comma(s.BytesCopied))
	fmt.Fprintf(&b, "linked:  %11s files %19s bytes\n", humanize.Comma(s.FilesLinked), humanize.Comma(s.BytesLinked))
	fmt.Fprintf(&b, "deleted: %11s files %19s bytes\n", humanize.Comma(s.FilesDeleted), humanize.Comma(s.BytesDeleted))
	fmt.Fprintf(&b, "errors: %d warnings: %d", s.Errors, s.Warnings)
	return b.String()
}

// RepoFile is a value describing one logical file: where its bytes
// ultimately come from (SourcePath), its signature (Size, Time), its
// content hash, and where it lives inside a snapshot (ParentPath joined
// with RelativePath).
type RepoFile struct {
	sourcePath   fspath.Path
	size         size.Size
	time         timestamp.Time
	hash         string
	relativePath fspath.Path
	parentPath   fspath.Path

	lock *sourceLock
}

// New constructs a RepoFile from already-known fields, e.g. when
// reconstructing a row read back from the index.
func New(sourcePath fspath.Path, sz size.Size, t timestamp.Time, hash string, relativePath, parentPath fspath.Path) RepoFile {
	return RepoFile{
		sourcePath:   sourcePath,
		size:         sz,
		time:         t,
		hash:         hash,
		relativePath: relativePath,
		parentPath:   parentPath,
	}
}

// Candidate constructs a RepoFile representing a file about to be written
// into a snapshot, with only the target-side fields known.
func Candidate(relativePath, parentPath fspath.Path) RepoFile {
	return RepoFile{
		size:         size.Unspecified,
		time:         timestamp.Unspecified,
		relativePath: relativePath,
		parentPath:   parentPath,
	}
}

func (f RepoFile) SourcePath() fspath.Path   { return f.sourcePath }
func (f RepoFile) Size() size.Size           { return f.size }
func (f RepoFile) Time() timestamp.Time      { return f.time }
func (f RepoFile) Hash() string              { return f.hash }
func (f RepoFile) HasHash() bool             { return f.hash != "" }
func (f RepoFile) RelativePath() fspath.Path { return f.relativePath }
func (f RepoFile) ParentPath() fspath.Path   { return f.parentPath }

// FullPath is parentPath joined with relativePath, the location of this
// file's archive inside its snapshot.
func (f RepoFile) FullPath() fspath.Path {
	return f.parentPath.Join(f.relativePath.String())
}

func (f RepoFile) WithSourcePath(p fspath.Path) RepoFile   { f.sourcePath = p; return f }
func (f RepoFile) WithSize(s size.Size) RepoFile           { f.size = s; return f }
func (f RepoFile) WithTime(t timestamp.Time) RepoFile      { f.time = t; return f }
func (f RepoFile) WithHash(h string) RepoFile              { f.hash = h; return f }
func (f RepoFile) WithRelativePath(p fspath.Path) RepoFile { f.relativePath = p; return f }
func (f RepoFile) WithParentPath(p fspath.Path) RepoFile   { f.parentPath = p; return f }

// IsExisting reports whether this file's archive is present on disk.
func (f RepoFile) IsExisting() bool {
	_, err := os.Stat(f.FullPath().String())
	return err == nil
}

// ReadSourceProperties stats SourcePath and fills in Size and Time. It
// returns false (rather than an error) when the source is missing or
// unreadable, matching the reference implementation's "fails silently"
// contract — the caller logs and skips the file.
func (f *RepoFile) ReadSourceProperties() bool {
	info, err := os.Stat(f.sourcePath.String())
	if err != nil {
		return false
	}
	f.size = size.Of(info.Size())
	f.time = timestamp.FromFileInfo(info)
	return true
}

// ComputeHash streams the archive's full byte content (not the source)
// through SHA-256 and fills Hash, incrementing stats.
func (f *RepoFile) ComputeHash(stats *Stats) error {
	file, err := os.Open(f.FullPath().String())
	if err != nil {
		return errors.Wrap(err, "unable to open file for hashing")
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return errors.Wrap(err, "unable to read file for hashing")
	}
	f.hash = hex.EncodeToString(hash.Sum(nil))

	stats.FilesHashed++
	if f.size.IsSpecified() {
		stats.BytesHashed += int64(f.size.Uint64())
	}
	return nil
}

// LockSource acquires an advisory lock on SourcePath, idempotently. The
// lock must be held from here through the eventual import (Copy or Link)
// so that the archived bytes provably match the content that gets hashed
// under the lock; callers release it with UnlockSource once the file has
// been fully processed, not right after hashing.
func (f *RepoFile) LockSource() error {
	if f.lock != nil {
		return nil
	}
	lock, err := lockSource(f.sourcePath.String())
	if err != nil {
		return err
	}
	f.lock = lock
	return nil
}

// UnlockSource releases a lock acquired by LockSource, if any. It is safe
// to call on a file that was never locked.
func (f *RepoFile) UnlockSource() {
	if f.lock == nil {
		return
	}
	f.lock.release()
	f.lock = nil
}

// IsSourceLocked reports whether LockSource currently holds a lock.
func (f RepoFile) IsSourceLocked() bool {
	return f.lock != nil
}

// HashSource locks SourcePath (if not already locked) and streams it
// through SHA-256, filling Hash. The lock is left held on return; the
// caller is responsible for releasing it once import has completed.
func (f *RepoFile) HashSource(stats *Stats) error {
	if err := f.LockSource(); err != nil {
		return errors.Wrap(err, "unable to lock source")
	}

	hash := sha256.New()
	if _, err := io.Copy(hash, f.lock.reader()); err != nil {
		return errors.Wrap(err, "unable to read source for hashing")
	}
	f.hash = hex.EncodeToString(hash.Sum(nil))

	stats.FilesHashed++
	if f.size.IsSpecified() {
		stats.BytesHashed += int64(f.size.Uint64())
	}
	return nil
}

// Copy materializes this file's archive by copying from source into a
// uniquely named temporary file and renaming it into place, so that a
// crash mid-copy never leaves a partial file at the archive path. Parent
// directories are created as needed, and the archive's modification time is
// set to Time when Time is specified.
func (f RepoFile) Copy(source fspath.Path, stats *Stats) error {
	if err := os.MkdirAll(f.FullPath().Dir().String(), 0755); err != nil {
		return errors.Wrap(err, "unable to create parent directory")
	}

	in, err := os.Open(source.String())
	if err != nil {
		return errors.Wrap(err, "unable to open source for copy")
	}
	defer in.Close()

	temporaryPath := f.FullPath().String() + ".tmp-" + uuid.NewString()

	out, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrap(err, "unable to create target for copy")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(temporaryPath)
		return errors.Wrap(err, "unable to copy bytes")
	}
	if err := out.Close(); err != nil {
		os.Remove(temporaryPath)
		return errors.Wrap(err, "unable to close copied file")
	}

	if err := os.Rename(temporaryPath, f.FullPath().String()); err != nil {
		os.Remove(temporaryPath)
		return errors.Wrap(err, "unable to move copied file into place")
	}

	stats.FilesCopied++
	if f.size.IsSpecified() {
		stats.BytesCopied += int64(f.size.Uint64())
	}

	if f.time.IsSpecified() {
		modTime := f.time.ToSystemTime()
		if err := os.Chtimes(f.FullPath().String(), modTime, modTime); err != nil {
			return errors.Wrap(err, "unable to set modification time")
		}
	}

	return nil
}

// Link materializes this file's archive as a hard link to source. If Size
// is below the platform's hard-link minimum, it falls back to Copy, so such
// files are physically duplicated rather than linked. The minimum is 513
// bytes on Windows and 0 on POSIX, where every file is linked.
func (f RepoFile) Link(source fspath.Path, stats *Stats) error {
	if f.size.IsSpecified() && int64(f.size.Uint64()) < hardLinkMinBytes {
		return f.Copy(source, stats)
	}

	if err := os.MkdirAll(f.FullPath().Dir().String(), 0755); err != nil {
		return errors.Wrap(err, "unable to create parent directory")
	}

	if err := os.Link(source.String(), f.FullPath().String()); err != nil {
		return errors.Wrap(err, "unable to create hard link")
	}

	stats.FilesLinked++
	if f.size.IsSpecified() {
		stats.BytesLinked += int64(f.size.Uint64())
	}

	return nil
}

// Delete removes this file's archive, first ensuring it is writable (some
// platforms refuse to delete a read-only file).
func (f RepoFile) Delete(stats *Stats) error {
	path := f.FullPath().String()
	_ = os.Chmod(path, 0644)

	if err := os.Remove(path); err != nil {
		return errors.Wrap(err, "unable to delete file")
	}

	stats.FilesDeleted++
	if f.size.IsSpecified() {
		stats.BytesDeleted += int64(f.size.Uint64())
	}

	return nil
}

// IsLinkable reports whether a new hard link to this file's archive could
// still be created: small files are always linkable (they're copied
// instead, which has no ceiling), otherwise it depends on the current
// hard-link count being below the platform ceiling.
func (f RepoFile) IsLinkable() bool {
	if f.size.IsSpecified() && int64(f.size.Uint64()) < hardLinkMinBytes {
		return true
	}

	count, err := hardLinkCount(f.FullPath().String())
	if err != nil {
		return false
	}
	return count < maxHardLinkCount
}

// FileSystemIndex returns the identifier (inode number on POSIX, file
// index on Windows) that two hard links to the same content share. It
// returns -1 on error.
func (f RepoFile) FileSystemIndex() int64 {
	index, err := fileSystemIndex(f.FullPath().String())
	if err != nil {
		return -1
	}
	return index
}

// SourceToString renders the source-side view of this file for logging,
// in the fixed-width "size time path" layout the session log uses.
func (f RepoFile) SourceToString() string {
	return fmt.Sprintf("%15s %19s %s", f.size.String(), f.time.String(), f.sourcePath)
}

// String renders the archive-side view of this file for logging.
func (f RepoFile) String() string {
	return fmt.Sprintf("%15s %19s %s", f.size.String(), f.time.String(), f.FullPath())
}

// ToCSV renders this file as one row of the CSV file table --write_file_table
// emits, quoting embedded double quotes per RFC 4180.
func (f RepoFile) ToCSV() string {
	quote := func(s string) string {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return fmt.Sprintf("%12d,%s,%s,%s,%s",
		f.size.Uint64(), f.time.ToSystemTime().Format(time.RFC3339), f.hash,
		quote(f.FullPath().String()), quote(f.sourcePath.String()))
}
