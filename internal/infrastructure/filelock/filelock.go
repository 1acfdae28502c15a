// Package filelock provides an advisory exclusive lock on a sidecar file.
package filelock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"reliaudit/internal/errs"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("file is locked")

const pollInterval = 25 * time.Millisecond

// Lock is a held advisory lock. Release it exactly once.
type Lock struct {
	file *os.File
}

// PathFor returns the sidecar lock path guarding target.
func PathFor(target string) string {
	return target + ".lock"
}

// TryLock takes the lock on path without waiting.
func TryLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.IO(err, "create lock dir for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.IO(err, "open lock file %s", path)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{file: f}, nil
}

// Acquire waits for the lock on path until ctx is done.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		lock, err := TryLock(path)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLocked) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, errs.Wrapf(ctx.Err(), "wait for lock %s", path)
		case <-ticker.C:
		}
	}
}

// Release drops the lock. The sidecar file is left in place.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return errs.IO(unlockErr, "unlock")
	}
	if closeErr != nil {
		return errs.IO(closeErr, "close lock file")
	}
	return nil
}
