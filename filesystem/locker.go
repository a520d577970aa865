package filesystem

import (
	"os"

	"github.com/pkg/errors"
)

// Locker wraps a file used purely as an exclusive-lock token. The
// repository package uses one to enforce the "one writer at a time"
// assumption spec.md §5 places on a repository directory: repository.Open
// takes this lock for the lifetime of every Repository it returns, so two
// concurrent invocations fail fast instead of racing.
type Locker struct {
	file *os.File
}

// NewLocker opens (creating if necessary) the lock file at path.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE | os.O_APPEND
	file, err := os.OpenFile(path, mode, permissions)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	}
	return &Locker{file: file}, nil
}

// Close releases the underlying file handle, implicitly releasing any lock
// still held.
func (l *Locker) Close() error {
	return l.file.Close()
}
