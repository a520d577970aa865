//go:build !windows

package repofile

import (
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// hardLinkMinBytes and maxHardLinkCount are POSIX's dedup thresholds: the
// minimum is 0, so no file is too small to be hard-linked, and the link
// ceiling is normalized to 65000 rather than following any specific
// filesystem's exact limit.
const (
	hardLinkMinBytes = 0
	maxHardLinkCount = 65000
)

// sourceLock holds a shared (read) lock on a source file while it is hashed
// and imported.
type sourceLock struct {
	file *os.File
}

// lockSource opens path and acquires a shared flock, retrying up to 10
// times at 10ms intervals per spec. It returns an error if the file cannot
// be locked within that window.
func lockSource(path string) (*sourceLock, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var lockErr error
	for attempt := 0; attempt < 10; attempt++ {
		lockErr = unix.Flock(int(file.Fd()), unix.LOCK_SH|unix.LOCK_NB)
		if lockErr == nil {
			return &sourceLock{file: file}, nil
		}
		time.Sleep(10 * time.Millisecond)
	}

	file.Close()
	return nil, lockErr
}

func (l *sourceLock) reader() io.Reader {
	return l.file
}

func (l *sourceLock) release() {
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
}

// hardLinkCount reports the current number of directory entries (hard
// links) referring to path's inode.
func hardLinkCount(path string) (int64, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Nlink), nil
}

// fileSystemIndex returns path's inode number.
func fileSystemIndex(path string) (int64, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Ino), nil
}
