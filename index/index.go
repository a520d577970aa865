// Package index implements SnapshotIndex, the per-snapshot relational
// store backing one FILES table: a unique composite key over
// (source, size, time, hash, file) plus a secondary index on hash, opened
// with pragmas tuned for single-writer throughput rather than durability
// across crashes (the snapshot's IN_PROGRESS marker, not the index file,
// is what signals an incomplete write).
package index

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/logging"
	"github.com/xlrth/backup/repofile"
	"github.com/xlrth/backup/size"
	"github.com/xlrth/backup/timestamp"
)

// schema is the fixed FILES table definition. Column order is normative
// per spec: it's the order every SELECT uses.
const schema = `
CREATE TABLE IF NOT EXISTS FILES (
	SOURCE TEXT,
	SIZE   INTEGER,
	TIME   INTEGER,
	HASH   TEXT,
	FILE   TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS FILES_UNIQUE ON FILES(SOURCE, SIZE, TIME, HASH, FILE);
CREATE INDEX IF NOT EXISTS FILES_HASH ON FILES(HASH);
`

// pragmas are applied on every open. Large cache and relaxed durability
// favor the throughput of one exclusive writer streaming thousands of
// inserts per snapshot; crash-safety of an in-progress snapshot is the
// IN_PROGRESS marker's job, not the database journal's.
var pragmas = []string{
	"PRAGMA cache_size = -65536",
	"PRAGMA synchronous = OFF",
	"PRAGMA journal_mode = OFF",
	"PRAGMA secure_delete = OFF",
	"PRAGMA locking_mode = EXCLUSIVE",
}

// SnapshotIndex is the relational store for one snapshot's file rows.
type SnapshotIndex struct {
	db     *sql.DB
	path   fspath.Path
	logger *logging.Logger
}

// Open opens (creating if necessary) the index file at path, applies the
// throughput pragmas, and ensures the schema exists. Before returning, it
// takes a timestamped backup copy of the file and makes the live file
// writable, matching the open-time contract of spec.md §4.3.
func Open(path fspath.Path, logger *logging.Logger) (*SnapshotIndex, error) {
	if err := os.Chmod(path.String(), 0644); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "unable to make index writable")
	}

	db, err := sql.Open("sqlite3", path.String())
	if err != nil {
		return nil, errors.Wrap(err, "unable to open index")
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "unable to apply pragma %q", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to create schema")
	}

	idx := &SnapshotIndex{db: db, path: path, logger: logger}

	if err := idx.backup(); err != nil {
		db.Close()
		return nil, err
	}

	return idx, nil
}

// backup copies the live index file to a sibling named with the current
// time, matching the "db_<ts>.sqlite" naming of the repository layout.
func (idx *SnapshotIndex) backup() error {
	data, err := os.ReadFile(idx.path.String())
	if err != nil {
		return errors.Wrap(err, "unable to read index for backup")
	}

	backupPath := fmt.Sprintf("%s_%s", strings.TrimSuffix(idx.path.String(), ".sqlite"), time.Now().Format("20060102_150405"))
	backupPath += ".sqlite"

	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return errors.Wrap(err, "unable to write index backup")
	}

	idx.logger.Debug("backed up index to %s", backupPath)
	return nil
}

// Close takes a final backup, marks the index file read-only, and releases
// the database handle.
func (idx *SnapshotIndex) Close() error {
	if err := idx.backup(); err != nil {
		idx.logger.Warn(err)
	}

	if err := idx.db.Close(); err != nil {
		return errors.Wrap(err, "unable to close index")
	}

	if err := os.Chmod(idx.path.String(), 0444); err != nil {
		return errors.Wrap(err, "unable to mark index read-only")
	}

	return nil
}

// constraint renders f's specified fields as a WHERE conjunction, paired
// with matching positional arguments.
func constraint(f repofile.RepoFile) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.SourcePath() != "" {
		clauses = append(clauses, "SOURCE = ?")
		args = append(args, f.SourcePath().String())
	}
	if f.Size().IsSpecified() {
		clauses = append(clauses, "SIZE = ?")
		args = append(args, int64(f.Size().Uint64()))
	}
	if f.Time().IsSpecified() {
		clauses = append(clauses, "TIME = ?")
		args = append(args, int64(f.Time()))
	}
	if f.HasHash() {
		clauses = append(clauses, "HASH = ?")
		args = append(args, f.Hash())
	}
	if f.RelativePath() != "" {
		clauses = append(clauses, "FILE = ?")
		args = append(args, f.RelativePath().String())
	}

	if len(clauses) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// Rows is a streaming cursor over a query's matching rows. Its lifetime is
// tied to the SnapshotIndex it was obtained from; it never materializes a
// full result set unless the caller drains it via FindAll.
type Rows struct {
	rows       *sql.Rows
	parentPath fspath.Path
}

// Next advances the cursor and returns the next matching row, reattaching
// parentPath so the returned RepoFile's FullPath is directly usable.
func (r *Rows) Next() (repofile.RepoFile, bool, error) {
	if !r.rows.Next() {
		return repofile.RepoFile{}, false, r.rows.Err()
	}

	var source, hash, file string
	var sz, t int64
	if err := r.rows.Scan(&source, &sz, &t, &hash, &file); err != nil {
		return repofile.RepoFile{}, false, errors.Wrap(err, "unable to scan row")
	}

	f := repofile.New(fspath.New(source), size.Size(sz), timestamp.Time(t), hash, fspath.New(file), r.parentPath)
	return f, true, nil
}

// Close releases the cursor's underlying statement resources.
func (r *Rows) Close() error {
	return r.rows.Close()
}

// Select runs constraints against FILES and returns a streaming cursor,
// with parentPath reattached to every yielded row.
func (idx *SnapshotIndex) Select(constraints repofile.RepoFile, parentPath fspath.Path) (*Rows, error) {
	where, args := constraint(constraints)
	query := "SELECT SOURCE, SIZE, TIME, HASH, FILE FROM FILES WHERE " + where

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query index")
	}

	return &Rows{rows: rows, parentPath: parentPath}, nil
}

// FindAll drains Select into a slice.
func (idx *SnapshotIndex) FindAll(constraints repofile.RepoFile, parentPath fspath.Path) ([]repofile.RepoFile, error) {
	cursor, err := idx.Select(constraints, parentPath)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var results []repofile.RepoFile
	for {
		f, ok, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return results, nil
		}
		results = append(results, f)
	}
}

// Insert adds a row for f. Every field of f must be specified.
func (idx *SnapshotIndex) Insert(f repofile.RepoFile) error {
	if !f.Size().IsSpecified() || !f.Time().IsSpecified() || !f.HasHash() || f.RelativePath() == "" {
		return errors.New("cannot insert a row with unspecified fields")
	}

	_, err := idx.db.Exec(
		"INSERT INTO FILES (SOURCE, SIZE, TIME, HASH, FILE) VALUES (?, ?, ?, ?, ?)",
		f.SourcePath().String(), int64(f.Size().Uint64()), int64(f.Time()), f.Hash(), f.RelativePath().String(),
	)
	if err != nil {
		return errors.Wrap(err, "unable to insert row")
	}
	return nil
}

// Delete removes every row matching constraints.
func (idx *SnapshotIndex) Delete(constraints repofile.RepoFile) error {
	where, args := constraint(constraints)
	if _, err := idx.db.Exec("DELETE FROM FILES WHERE "+where, args...); err != nil {
		return errors.Wrap(err, "unable to delete rows")
	}
	return nil
}

// CheckIntegrity runs SQLite's own integrity check and reports whether it
// returned "ok".
func (idx *SnapshotIndex) CheckIntegrity() (bool, error) {
	var result string
	if err := idx.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return false, errors.Wrap(err, "unable to run integrity check")
	}
	return result == "ok", nil
}

// Compact rewrites the store to reclaim space and defragment it.
func (idx *SnapshotIndex) Compact() error {
	if _, err := idx.db.Exec("VACUUM"); err != nil {
		return errors.Wrap(err, "unable to compact index")
	}
	return nil
}
