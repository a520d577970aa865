// Package repository implements Repository: the ordered collection of
// Snapshots inside one repository directory, with repository-wide
// newest-first lookup across them.
package repository

import (
	"os"

	"github.com/pkg/errors"

	"github.com/xlrth/backup/filesystem"
	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/logging"
	"github.com/xlrth/backup/repofile"
	"github.com/xlrth/backup/snapshot"
)

const lockFileName = ".repository.lock"

// Repository owns the ordered list of snapshots discovered inside one
// directory, oldest first (which, since directory names are timestamps,
// equals chronological order).
type Repository struct {
	path      fspath.Path
	snapshots []*snapshot.Snapshot
	locker    *filesystem.Locker
	logger    *logging.Logger
}

// Path is the repository's own absolute directory.
func (r *Repository) Path() fspath.Path { return r.path }

// Snapshots returns the attached snapshots, oldest first.
func (r *Repository) Snapshots() []*snapshot.Snapshot { return r.snapshots }

// Open discovers and attaches every valid snapshot inside path. If create
// is true, the directory is created if missing. It takes an exclusive,
// non-blocking lock on the repository for the lifetime of the returned
// Repository, enforcing the "one writer at a time" assumption spec.md §5
// places on a repository directory.
func Open(path fspath.Path, create bool, logger *logging.Logger) (*Repository, error) {
	if create {
		if err := os.MkdirAll(path.String(), 0755); err != nil {
			return nil, errors.Wrap(err, "unable to create repository directory")
		}
	} else if _, err := os.Stat(path.String()); err != nil {
		return nil, errors.Wrap(err, "repository directory does not exist")
	}

	locker, err := filesystem.NewLocker(path.Join(lockFileName).String(), 0644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open repository lock")
	}
	if err := locker.Lock(false); err != nil {
		locker.Close()
		return nil, errors.Wrap(err, "repository is locked by another process")
	}

	r := &Repository{path: path, locker: locker, logger: logger}

	if err := r.discover(logger); err != nil {
		locker.Unlock()
		locker.Close()
		return nil, err
	}

	return r, nil
}

// discover enumerates immediate subdirectories whose name parses as a
// snapshot timestamp and that contain a valid index, opening and attaching
// each one in directory order (ascending, i.e. chronological).
func (r *Repository) discover(logger *logging.Logger) error {
	names, err := filesystem.DirectoryContents(r.path.String())
	if err != nil {
		return errors.Wrap(err, "unable to list repository directory")
	}

	for _, name := range names {
		if _, ok := snapshot.ParseName(name); !ok {
			continue
		}

		snapshotPath := r.path.Join(name)
		s, err := snapshot.Open(snapshotPath, logger.Sublogger(name))
		if err != nil {
			logger.Warn(errors.Wrapf(err, "skipping invalid snapshot %s", name))
			continue
		}

		r.snapshots = append(r.snapshots, s)
	}

	return nil
}

// AttachSnapshot appends a newly created snapshot to the repository. It
// rejects a snapshot whose path isn't a direct child of the repository, or
// one that shares a path with an already-attached snapshot.
func (r *Repository) AttachSnapshot(s *snapshot.Snapshot) error {
	if s.Path().Dir() != r.path {
		return errors.New("snapshot does not belong to this repository")
	}
	for _, existing := range r.snapshots {
		if existing.Path() == s.Path() {
			return errors.New("a snapshot at this path is already attached")
		}
	}
	r.snapshots = append(r.snapshots, s)
	return nil
}

// DetachSnapshot removes and returns the attached snapshot at path.
func (r *Repository) DetachSnapshot(path fspath.Path) (*snapshot.Snapshot, error) {
	for i, s := range r.snapshots {
		if s.Path() == path {
			r.snapshots = append(r.snapshots[:i], r.snapshots[i+1:]...)
			return s, nil
		}
	}
	return nil, errors.New("no attached snapshot at that path")
}

// FindFile searches every attached snapshot newest-first for a row
// matching constraints. The first linkable match (if preferLinkable) wins
// immediately; otherwise the search continues to older snapshots in case
// a linkable match exists there. If no linkable match exists anywhere, the
// last non-linkable match seen (i.e. the oldest) is returned, so the
// caller may fall back to copying from it.
func (r *Repository) FindFile(constraints repofile.RepoFile, preferLinkable bool) (repofile.RepoFile, bool, error) {
	var last repofile.RepoFile
	var found bool

	for i := len(r.snapshots) - 1; i >= 0; i-- {
		f, ok, err := r.snapshots[i].FindFile(constraints, preferLinkable)
		if err != nil {
			return repofile.RepoFile{}, false, err
		}
		if !ok {
			continue
		}
		if !preferLinkable || f.IsLinkable() {
			return f, true, nil
		}
		found = true
		last = f
	}

	return last, found, nil
}

// Close closes every attached snapshot and releases the repository lock.
func (r *Repository) Close() error {
	var firstErr error
	for _, s := range r.snapshots {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.locker.Unlock()
	r.locker.Close()
	return firstErr
}
