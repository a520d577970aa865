// Package maintenance implements the four protocols that operate on an
// existing repository without extending the core dedup engine: verify,
// distill, purge, and clone.
package maintenance

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/xlrth/backup/filesystem"
	"github.com/xlrth/backup/logging"
	"github.com/xlrth/backup/repofile"
	"github.com/xlrth/backup/repository"
	"github.com/xlrth/backup/snapshot"
)

// VerifyOptions controls Verify.
type VerifyOptions struct {
	// RehashFiles, when set, rehashes every file and compares it to its
	// stored hash (--verify_hash).
	RehashFiles bool
	// WriteFileTable, when set, emits a CSV file table to the working
	// directory (--write_file_table).
	WriteFileTable bool
}

// Verify runs the integrity and consistency checks of spec.md §4.7 against
// every snapshot attached to repo. Each problem found is logged and counted
// in stats.Errors; the returned error is non-nil only when a check cannot
// be run at all.
func Verify(repo *repository.Repository, opts VerifyOptions, stats *repofile.Stats, logger *logging.Logger) error {
	hashesByFilesystemIndex := make(map[int64]string)
	signatures := make(map[string]string)

	var csvRows []string

	for _, s := range repo.Snapshots() {
		ok, err := s.Index().CheckIntegrity()
		if err != nil {
			return errors.Wrap(err, "integrity check failed")
		}
		if !ok {
			stats.Errors++
			logger.Error(errors.Errorf("index integrity check failed for %s", s.Path()))
			continue
		}

		rows, err := s.FindAll(repofile.Candidate("", s.Path()))
		if err != nil {
			return errors.Wrap(err, "unable to list snapshot rows")
		}

		for _, row := range rows {
			if !row.IsExisting() {
				stats.Errors++
				logger.Error(errors.Errorf("missing file: %s", row))
				continue
			}

			index := row.FileSystemIndex()
			if index != -1 {
				if seenHash, ok := hashesByFilesystemIndex[index]; ok {
					if seenHash != row.Hash() {
						stats.Errors++
						logger.Error(errors.Errorf("inconsistent hash for shared content: %s", row))
					}
				} else {
					hashesByFilesystemIndex[index] = row.Hash()
				}
			}

			if opts.RehashFiles {
				rehashed := row
				if err := rehashed.ComputeHash(stats); err != nil {
					stats.Errors++
					logger.Error(errors.Wrapf(err, "unable to rehash %s", row))
				} else if rehashed.Hash() != row.Hash() {
					stats.Errors++
					logger.Error(errors.Errorf("hash mismatch on rehash: %s", row))
				}
			}

			signatureKey := row.SourcePath().String() + "|" + row.Size().String() + "|" + row.Time().String()
			if seenHash, ok := signatures[signatureKey]; ok {
				if seenHash != row.Hash() {
					stats.Errors++
					logger.Error(errors.Errorf("signature collision with differing hash: %s", row))
				}
			} else {
				signatures[signatureKey] = row.Hash()
			}

			if opts.WriteFileTable {
				csvRows = append(csvRows, row.ToCSV())
			}
		}
	}

	if opts.WriteFileTable {
		if err := writeFileTable(csvRows); err != nil {
			return errors.Wrap(err, "unable to write file table")
		}
	}

	return nil
}

func writeFileTable(rows []string) error {
	data := ""
	for _, row := range rows {
		data += row + "\n"
	}
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(filepath.Join(wd, "file_table.csv"), []byte(data), 0644)
}

// Distill sheds, from target, every file whose content also lives
// elsewhere in the repository. Empty directories left behind are removed.
func Distill(repo *repository.Repository, target *snapshot.Snapshot, stats *repofile.Stats, logger *logging.Logger) error {
	rows, err := target.FindAll(repofile.Candidate("", target.Path()))
	if err != nil {
		return errors.Wrap(err, "unable to list snapshot rows")
	}

	for _, row := range rows {
		duplicate, err := findElsewhere(repo, target, row.Hash())
		if err != nil {
			return err
		}
		if duplicate == nil {
			continue
		}

		if err := target.DeleteFile(row, stats); err != nil {
			stats.Errors++
			logger.Error(errors.Wrapf(err, "unable to distill %s", row))
			continue
		}
		logger.Debug("distilled: %s", row)
	}

	return removeEmptyDirs(target.Path().String())
}

// findElsewhere looks, across every snapshot except target, for an
// existing row with hash whose file is present.
func findElsewhere(repo *repository.Repository, target *snapshot.Snapshot, hash string) (*repofile.RepoFile, error) {
	for _, s := range repo.Snapshots() {
		if s.Path() == target.Path() {
			continue
		}
		rows, err := s.FindAll(repofile.Candidate("", s.Path()).WithHash(hash))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.IsExisting() {
				return &row, nil
			}
		}
	}
	return nil, nil
}

// removeEmptyDirs deletes every directory under root, deepest first, that
// contains no files.
func removeEmptyDirs(root string) error {
	var dirs []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() || path == root {
			return nil
		}
		if info.Name() == ".backup" {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})

	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i])
	}
	return nil
}

// Purge deletes, from every row in target, the ones whose file is missing.
func Purge(target *snapshot.Snapshot, stats *repofile.Stats, logger *logging.Logger) error {
	rows, err := target.FindAll(repofile.Candidate("", target.Path()))
	if err != nil {
		return errors.Wrap(err, "unable to list snapshot rows")
	}

	for _, row := range rows {
		if row.IsExisting() {
			continue
		}
		if err := target.Index().Delete(row); err != nil {
			stats.Errors++
			logger.Error(errors.Wrapf(err, "unable to purge row %s", row))
			continue
		}
		logger.Debug("purged: %s", row)
	}

	return nil
}

// Clone re-materializes every snapshot of source into target, in
// chronological order, deduplicating against what's already in target via
// the simplified decision rule of spec.md §4.7: look up by
// (source, size, time), then by hash, linking when possible and copying
// otherwise.
func Clone(source, target *repository.Repository, stats *repofile.Stats, logger *logging.Logger) error {
	for _, s := range source.Snapshots() {
		name := s.Path().Base()
		targetSnapshot, err := snapshot.Create(target.Path().Join(name), logger.Sublogger(name))
		if err != nil {
			return errors.Wrapf(err, "unable to create target snapshot %s", name)
		}
		if err := target.AttachSnapshot(targetSnapshot); err != nil {
			return err
		}

		rows, err := s.FindAll(repofile.Candidate("", s.Path()))
		if err != nil {
			return err
		}

		for _, row := range rows {
			if err := cloneFile(target, targetSnapshot, row, stats); err != nil {
				stats.Errors++
				logger.Error(errors.Wrapf(err, "unable to clone %s", row))
			}
		}

		if err := targetSnapshot.ClearInProgress(); err != nil {
			return err
		}
	}

	return nil
}

func cloneFile(target *repository.Repository, targetSnapshot *snapshot.Snapshot, row repofile.RepoFile, stats *repofile.Stats) error {
	candidate := repofile.Candidate(row.RelativePath(), targetSnapshot.Path()).
		WithSourcePath(row.SourcePath()).WithSize(row.Size()).WithTime(row.Time()).WithHash(row.Hash())

	bySignature := repofile.Candidate("", "").
		WithSourcePath(row.SourcePath()).WithSize(row.Size()).WithTime(row.Time())
	if existing, ok, err := target.FindFile(bySignature, true); err == nil && ok && existing.IsLinkable() {
		_, err := targetSnapshot.InsertFile(existing.FullPath(), candidate, true, stats)
		return err
	}

	byHash := repofile.Candidate("", "").WithHash(row.Hash())
	if existing, ok, err := target.FindFile(byHash, true); err == nil && ok {
		_, err := targetSnapshot.InsertFile(existing.FullPath(), candidate, existing.IsLinkable(), stats)
		return err
	}

	_, err := targetSnapshot.InsertFile(row.FullPath(), candidate, false, stats)
	return err
}
