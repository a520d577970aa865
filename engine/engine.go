// Package engine implements the snapshot engine: the per-file dedup
// decision tree that is this system's centerpiece, plus the directory
// walk and bookkeeping around it.
package engine

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/logging"
	"github.com/xlrth/backup/repofile"
	"github.com/xlrth/backup/repository"
	"github.com/xlrth/backup/snapshot"
)

// Options controls one backup invocation, replacing the
// reference implementation's global Options object with a per-command
// value, per spec.md §9.
type Options struct {
	// AlwaysHash forces every file to be hashed, even when a matching
	// signature with a known hash already exists.
	AlwaysHash bool
	// Incremental skips inserting a row (and any filesystem entry) for
	// files whose signature already exists anywhere in the repository.
	Incremental bool
	// Suffix, if non-empty, is appended to the new snapshot's directory
	// name as "_suffix".
	Suffix string
	// Excludes are case-insensitive path-suffix patterns; a source path
	// matching one is skipped entirely. A pattern containing "**" is
	// matched as a doublestar glob instead of a plain suffix.
	Excludes []string
}

// isExcluded reports whether path matches one of the configured exclude
// patterns, per the case-insensitive suffix rule of spec.md §4.6, with an
// additive glob extension for patterns that look like doublestar patterns.
func isExcluded(path fspath.Path, excludes []string) bool {
	for _, pattern := range excludes {
		if strings.Contains(pattern, "**") {
			if matched, _ := doublestar.Match(strings.ToLower(pattern), strings.ToLower(path.String())); matched {
				return true
			}
			continue
		}
		if path.HasSuffix(pattern) {
			return true
		}
	}
	return false
}

// encodeSourcePath replaces path separators and a Windows drive-letter
// colon with '#', per the target-path formatting rule of spec.md §4.6.
func encodeSourcePath(path fspath.Path) string {
	s := path.String()
	s = strings.ReplaceAll(s, string(filepath.Separator), "#")
	s = strings.ReplaceAll(s, ":", "#")
	if filepath.Separator != '/' {
		s = strings.ReplaceAll(s, "/", "#")
	}
	return strings.TrimPrefix(s, "#")
}

// resolveCollision appends "_1".."_99" to relativePath if it already
// exists under the target snapshot, returning an error once the 100th
// collision is reached.
func resolveCollision(snapshotPath, relativePath fspath.Path) (fspath.Path, error) {
	candidate := relativePath
	for i := 0; i < 100; i++ {
		if i > 0 {
			candidate = fspath.New(relativePath.String() + "_" + itoa(i))
		}
		if _, err := os.Stat(snapshotPath.Join(candidate.String()).String()); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", errors.New("too many target path collisions")
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}

// validateSources checks spec.md §4.6's source preparation invariants:
// sources must exist, not be symlinks, and be pairwise non-overlapping,
// and none may contain or be contained in the repository.
func validateSources(sources []fspath.Path, repoPath fspath.Path) error {
	for i, s := range sources {
		info, err := os.Lstat(s.String())
		if err != nil {
			return errors.Wrapf(err, "source does not exist: %s", s)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.Errorf("source is a symbolic link: %s", s)
		}

		if within(s, repoPath) || within(repoPath, s) {
			return errors.Errorf("source overlaps the repository: %s", s)
		}

		for j, other := range sources {
			if i != j && (within(s, other) || within(other, s)) {
				return errors.Errorf("sources overlap: %s and %s", s, other)
			}
		}
	}
	return nil
}

// within reports whether a is the same as, or nested inside, b.
func within(a, b fspath.Path) bool {
	rel, err := filepath.Rel(b.String(), a.String())
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "")
}

// Backup walks every source in order, applying the per-file decision tree,
// and writes the results into a freshly created snapshot attached to repo.
func Backup(repo *repository.Repository, sources []fspath.Path, opts Options, stats *repofile.Stats, logger *logging.Logger) (*snapshot.Snapshot, error) {
	if err := validateSources(sources, repo.Path()); err != nil {
		return nil, errors.Wrap(err, "invalid source configuration")
	}

	// Snapshot names have one-second resolution. If a snapshot of this name
	// already exists (an earlier backup started within the same second),
	// wait for the clock to reach a free name.
	name := snapshot.NameForTime(time.Now(), opts.Suffix)
	for attempt := 0; attempt < 20; attempt++ {
		if _, err := os.Stat(repo.Path().Join(name).String()); os.IsNotExist(err) {
			break
		}
		time.Sleep(100 * time.Millisecond)
		name = snapshot.NameForTime(time.Now(), opts.Suffix)
	}
	target, err := snapshot.Create(repo.Path().Join(name), logger.Sublogger("snapshot"))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create snapshot")
	}

	if err := repo.AttachSnapshot(target); err != nil {
		target.Close()
		return nil, err
	}

	for _, source := range sources {
		walkSource(repo, target, source, opts, stats, logger)
	}

	if err := target.ClearInProgress(); err != nil {
		return target, errors.Wrap(err, "unable to clear in-progress marker")
	}

	return target, nil
}

// walkSource applies the per-file decision tree to every regular file
// under source, in filesystem traversal order. Per-file errors are logged
// and counted; they never abort the walk.
func walkSource(repo *repository.Repository, target *snapshot.Snapshot, source fspath.Path, opts Options, stats *repofile.Stats, logger *logging.Logger) {
	filepath.Walk(source.String(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			stats.Errors++
			logger.Error(errors.Wrapf(err, "unable to walk %s", path))
			return nil
		}
		if info.IsDir() {
			return nil
		}

		sourcePath := fspath.New(path)

		if isExcluded(sourcePath, opts.Excludes) {
			logger.Debug("excluded: %s", sourcePath)
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			logger.Debug("excluded (symlink): %s", sourcePath)
			return nil
		}
		if !info.Mode().IsRegular() {
			logger.Debug("excluded (not a regular file): %s", sourcePath)
			return nil
		}

		relFromSource, err := fspath.Rel(source, sourcePath)
		if err != nil {
			stats.Errors++
			logger.Error(errors.Wrapf(err, "unable to compute relative path for %s", sourcePath))
			return nil
		}
		relativePath := fspath.New(encodeSourcePath(source)).Join(relFromSource.String())

		resolved, err := resolveCollision(target.Path(), relativePath)
		if err != nil {
			stats.Errors++
			logger.Error(errors.Wrapf(err, "unable to resolve target path for %s", sourcePath))
			return nil
		}
		relativePath = resolved

		if target.Path().Join(relativePath.String()).ExceedsPlatformLimit() {
			stats.Errors++
			logger.Error(errors.Errorf("target path exceeds the platform length limit for %s", sourcePath))
			return nil
		}

		processFile(repo, target, sourcePath, relativePath, opts, stats, logger)
		return nil
	})
}

// processFile runs the dedup decision tree of spec.md §4.6 for one file.
func processFile(repo *repository.Repository, target *snapshot.Snapshot, sourcePath, relativePath fspath.Path, opts Options, stats *repofile.Stats, logger *logging.Logger) {
	candidate := repofile.Candidate(relativePath, target.Path()).WithSourcePath(sourcePath)
	if !candidate.ReadSourceProperties() {
		stats.Errors++
		logger.Error(errors.Errorf("unable to stat source: %s", sourcePath))
		return
	}
	// The lock, once acquired below, must outlive hashing: it is only
	// released once this file has been fully imported or linked, so that
	// the archived bytes provably match what was hashed under the lock.
	defer candidate.UnlockSource()

	// Step 1: signature lookup across all snapshots, newest-first.
	signatureConstraint := repofile.Candidate("", "").
		WithSourcePath(sourcePath).WithSize(candidate.Size()).WithTime(candidate.Time())
	existing, hasExisting, err := repo.FindFile(signatureConstraint, false)
	if err != nil {
		stats.Errors++
		logger.Error(errors.Wrap(err, "signature lookup failed"))
		return
	}

	// Step 2: hashing decision.
	if hasExisting && existing.HasHash() && !opts.AlwaysHash {
		candidate = candidate.WithHash(existing.Hash())
	} else {
		if err := candidate.LockSource(); err != nil {
			stats.Errors++
			logger.Error(errors.Wrapf(err, "unable to lock source: %s", sourcePath))
			return
		}

		// Re-read size/time under the lock: the file may have changed
		// between the initial stat and the lock being acquired. If it
		// did, repeat the signature search against the new properties
		// so Step 5's uniqueness check reflects the content actually
		// about to be hashed.
		preLockSize, preLockTime := candidate.Size(), candidate.Time()
		if !candidate.ReadSourceProperties() {
			stats.Errors++
			logger.Error(errors.Errorf("unable to stat locked source: %s", sourcePath))
			return
		}
		if candidate.Size() != preLockSize || candidate.Time() != preLockTime {
			signatureConstraint = repofile.Candidate("", "").
				WithSourcePath(sourcePath).WithSize(candidate.Size()).WithTime(candidate.Time())
			existing, hasExisting, err = repo.FindFile(signatureConstraint, false)
			if err != nil {
				stats.Errors++
				logger.Error(errors.Wrap(err, "signature lookup failed"))
				return
			}
		}

		if err := candidate.HashSource(stats); err != nil {
			stats.Errors++
			logger.Error(errors.Wrapf(err, "unable to hash source: %s", sourcePath))
			return
		}
		if hasExisting && existing.HasHash() && existing.Hash() != candidate.Hash() {
			stats.Errors++
			logger.Error(errors.Errorf("hash mismatch for %s", sourcePath))
			return
		}
	}

	// Step 3: incremental short-circuit.
	if hasExisting && existing.HasHash() && opts.Incremental {
		logger.Debug("skip (incremental): %s", sourcePath)
		return
	}

	// Step 4: broader relink search by hash.
	if !hasExisting || !existing.HasHash() || !existing.IsLinkable() {
		byHash := repofile.Candidate("", "").WithHash(candidate.Hash())
		if broader, ok, err := repo.FindFile(byHash, true); err != nil {
			stats.Errors++
			logger.Error(errors.Wrap(err, "relink search failed"))
			return
		} else if ok {
			existing, hasExisting = broader, true
		}
	}

	// Step 5: insert.
	var insertErr error
	if hasExisting && existing.HasHash() {
		_, insertErr = target.InsertFile(existing.FullPath(), candidate, existing.IsLinkable(), stats)
		if insertErr == nil {
			if existing.IsLinkable() {
				logger.Debug("duplicated: %s", sourcePath)
			} else {
				logger.Debug("duplicated (by copy): %s", sourcePath)
			}
		}
	} else {
		_, insertErr = target.InsertFile(sourcePath, candidate, false, stats)
		if insertErr == nil {
			logger.Debug("imported: %s", sourcePath)
		}
	}

	if insertErr != nil {
		stats.Errors++
		logger.Error(errors.Wrapf(insertErr, "unable to insert %s", sourcePath))
	}
}
