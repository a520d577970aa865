//go:build !windows && !plan9

// TODO: figure out a Plan 9 equivalent. It has no FcntlFlock; os.O_EXCL
// would work but wouldn't release the lock automatically if a process dies.

package filesystem

import (
	"os"
	"syscall"
)

// Lock acquires an exclusive write lock on the underlying file. If block is
// false and the lock is already held elsewhere, it returns immediately
// with an error instead of waiting.
func (l *Locker) Lock(block bool) error {
	lockSpec := syscall.Flock_t{
		Type:   syscall.F_WRLCK,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	operation := syscall.F_SETLK
	if block {
		operation = syscall.F_SETLKW
	}
	return syscall.FcntlFlock(l.file.Fd(), operation, &lockSpec)
}

// Unlock releases the lock.
func (l *Locker) Unlock() error {
	unlockSpec := syscall.Flock_t{
		Type:   syscall.F_UNLCK,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	return syscall.FcntlFlock(l.file.Fd(), syscall.F_SETLK, &unlockSpec)
}
