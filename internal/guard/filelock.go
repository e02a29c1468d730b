package guard

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileLock is an advisory flock(2) on a sidecar lock file. It serializes the
// read-modify-write cycle of a file store across processes. Callers take the
// in-process Guard first so at most one goroutine per process waits in flock.
type FileLock struct {
	path string
}

// NewFileLock returns a lock backed by path. The file is created on first use.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}

// Lock takes the exclusive lock, blocking until it is available.
func (l *FileLock) Lock() (unlock func(), err error) {
	return l.lock(unix.LOCK_EX)
}

// RLock takes the shared lock, blocking until it is available.
func (l *FileLock) RLock() (unlock func(), err error) {
	return l.lock(unix.LOCK_SH)
}

func (l *FileLock) lock(how int) (func(), error) {
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", l.path, err)
	}
	for {
		err = unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", l.path, err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
