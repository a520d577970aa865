package filesystem

import (
	"golang.org/x/sys/windows"
)

// Lock acquires an exclusive lock on the underlying file via LockFileEx.
// If block is false, the non-blocking flag is set and the call returns
// immediately if the lock is already held.
func (l *Locker) Lock(block bool) error {
	var flags uint32 = windows.LOCKFILE_EXCLUSIVE_LOCK
	if !block {
		flags |= windows.LOCKFILE_FAIL_IMMEDIATELY
	}

	overlapped := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(l.file.Fd()), flags, 0, 1, 0, overlapped)
}

// Unlock releases the lock.
func (l *Locker) Unlock() error {
	overlapped := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, overlapped)
}
