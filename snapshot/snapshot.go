// Package snapshot implements Snapshot: one timestamped backup invocation's
// output directory, its metadata sub-directory, its index, and the
// IN_PROGRESS marker that gates whether the snapshot may be opened for
// reading by other commands.
package snapshot

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/index"
	"github.com/xlrth/backup/logging"
	"github.com/xlrth/backup/repofile"
)

// metadataDirName and indexFileName make up the fixed internal layout
// every snapshot carries, per spec.md §6.
const (
	metadataDirName  = ".backup"
	indexFileName    = "db.sqlite"
	inProgressMarker = "IN_PROGRESS"
	logFileName      = "log.txt"

	// NameFormat is the time.Format layout directory names encode, without
	// any optional suffix.
	NameFormat = "2006-01-02_15-04-05"
)

// Snapshot owns one timestamped backup directory.
type Snapshot struct {
	path         fspath.Path
	metadataPath fspath.Path
	index        *index.SnapshotIndex
	logger       *logging.Logger
}

// Path is the snapshot's own absolute directory.
func (s *Snapshot) Path() fspath.Path { return s.path }

// Index is the snapshot's relational store.
func (s *Snapshot) Index() *index.SnapshotIndex { return s.index }

// NameForTime renders a directory name for t, with an optional suffix
// appended as "_suffix" to tag it explicitly (--suffix).
func NameForTime(t time.Time, suffix string) string {
	name := t.Format(NameFormat)
	if suffix != "" {
		name += "_" + suffix
	}
	return name
}

// ParseName reports whether name parses as a valid snapshot directory
// name, tolerating an optional trailing "_suffix" of arbitrary content.
func ParseName(name string) (time.Time, bool) {
	if len(name) >= len(NameFormat) {
		if t, err := time.ParseInLocation(NameFormat, name[:len(NameFormat)], time.Local); err == nil {
			if len(name) == len(NameFormat) || name[len(NameFormat)] == '_' {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Open opens an existing snapshot at path. It refuses to open a snapshot
// that still has IN_PROGRESS set, per spec.md §4.4 — a poisoned snapshot
// must be cleaned up out of band.
func Open(path fspath.Path, logger *logging.Logger) (*Snapshot, error) {
	metadataPath := path.Join(metadataDirName)
	indexPath := metadataPath.Join(indexFileName)

	if _, err := os.Stat(indexPath.String()); err != nil {
		return nil, errors.Wrap(err, "index file missing")
	}

	if _, err := os.Stat(metadataPath.Join(inProgressMarker).String()); err == nil {
		return nil, errors.New("snapshot is marked IN_PROGRESS")
	}

	idx, err := index.Open(indexPath, logger)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open index")
	}

	return &Snapshot{path: path, metadataPath: metadataPath, index: idx, logger: logger}, nil
}

// Create creates a brand-new snapshot directory at path, which must not
// already exist, initializes its metadata directory and index, and sets
// IN_PROGRESS immediately so a crash before the first insert still poisons
// it correctly.
func Create(path fspath.Path, logger *logging.Logger) (*Snapshot, error) {
	if _, err := os.Stat(path.String()); err == nil {
		return nil, errors.New("snapshot directory already exists")
	}

	metadataPath := path.Join(metadataDirName)
	if err := os.MkdirAll(metadataPath.String(), 0755); err != nil {
		return nil, errors.Wrap(err, "unable to create metadata directory")
	}

	indexPath := metadataPath.Join(indexFileName)
	idx, err := index.Open(indexPath, logger)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create index")
	}

	s := &Snapshot{path: path, metadataPath: metadataPath, index: idx, logger: logger}
	if err := s.SetInProgress(); err != nil {
		idx.Close()
		return nil, err
	}

	return s, nil
}

// SetInProgress creates the IN_PROGRESS marker.
func (s *Snapshot) SetInProgress() error {
	file, err := os.Create(s.metadataPath.Join(inProgressMarker).String())
	if err != nil {
		return errors.Wrap(err, "unable to create IN_PROGRESS marker")
	}
	return file.Close()
}

// ClearInProgress removes the IN_PROGRESS marker, making the snapshot
// immutable to everything except the maintenance protocols.
func (s *Snapshot) ClearInProgress() error {
	if err := os.Remove(s.metadataPath.Join(inProgressMarker).String()); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to clear IN_PROGRESS marker")
	}
	return nil
}

// IsInProgress reports whether the marker is currently set.
func (s *Snapshot) IsInProgress() bool {
	_, err := os.Stat(s.metadataPath.Join(inProgressMarker).String())
	return err == nil
}

// Close closes the snapshot's index.
func (s *Snapshot) Close() error {
	return s.index.Close()
}

// FindAll materializes every row matching constraints.
func (s *Snapshot) FindAll(constraints repofile.RepoFile) ([]repofile.RepoFile, error) {
	return s.index.FindAll(constraints, s.path)
}

// FindFile scans rows matching constraints and returns the first one that
// satisfies preferLinkable, or — if none do — the last row seen, so the
// caller may fall back to copying from it. It reports false if there were
// no matches at all.
func (s *Snapshot) FindFile(constraints repofile.RepoFile, preferLinkable bool) (repofile.RepoFile, bool, error) {
	cursor, err := s.index.Select(constraints, s.path)
	if err != nil {
		return repofile.RepoFile{}, false, err
	}
	defer cursor.Close()

	var last repofile.RepoFile
	var found bool
	for {
		f, ok, err := cursor.Next()
		if err != nil {
			return repofile.RepoFile{}, false, err
		}
		if !ok {
			break
		}
		found = true
		last = f
		if !preferLinkable || f.IsLinkable() {
			return f, true, nil
		}
	}

	return last, found, nil
}

// InsertFile realizes target on disk — linking from source if preferLink,
// copying otherwise — and, on success, records its index row. A failed
// link is not automatically retried as a copy; per spec.md §4.4 that
// decision belongs to the engine's decision tree, not to InsertFile.
func (s *Snapshot) InsertFile(source fspath.Path, target repofile.RepoFile, preferLink bool, stats *repofile.Stats) (repofile.RepoFile, error) {
	var err error
	if preferLink {
		err = target.Link(source, stats)
	} else {
		err = target.Copy(source, stats)
	}
	if err != nil {
		return target, err
	}

	if err := s.index.Insert(target); err != nil {
		return target, errors.Wrap(err, "unable to record index row")
	}

	return target, nil
}

// DeleteFile removes f's archive from disk, then its index row.
func (s *Snapshot) DeleteFile(f repofile.RepoFile, stats *repofile.Stats) error {
	if err := f.Delete(stats); err != nil {
		return err
	}
	return s.index.Delete(f)
}

// LogPath is the session log file inside the metadata directory.
func (s *Snapshot) LogPath() fspath.Path {
	return s.metadataPath.Join(logFileName)
}
