// Package lock provides cross-process locks that keep two workers from
// processing the same site at once.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// retryDelay is the polling interval of Acquire.
const retryDelay = 100 * time.Millisecond

// FileLock is an exclusive lock backed by a file.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock at <dir>/<name>.lock.
func New(dir, name string) *FileLock {
	path := filepath.Join(dir, name+".lock")
	return &FileLock{path: path, flock: flock.New(path)}
}

// ForSite creates the lock guarding runs of one root site.
func ForSite(dir string, rootPageID int) *FileLock {
	return New(dir, fmt.Sprintf("site-%d", rootPageID))
}

// TryLock acquires the lock without blocking. It reports false when another
// process holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := l.ensureDir(); err != nil {
		return false, err
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, serrors.New(serrors.ErrCodeLockFailed, "acquire lock", err).WithDetail("path", l.path)
	}
	l.locked = acquired
	return acquired, nil
}

// Acquire waits for the lock until ctx is done.
func (l *FileLock) Acquire(ctx context.Context) error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	acquired, err := l.flock.TryLockContext(ctx, retryDelay)
	if err != nil {
		return serrors.New(serrors.ErrCodeLockFailed, "acquire lock", err).WithDetail("path", l.path)
	}
	if !acquired {
		return serrors.New(serrors.ErrCodeLockFailed, "lock not acquired", ctx.Err()).WithDetail("path", l.path)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// IsLocked reports whether this handle holds the lock.
func (l *FileLock) IsLocked() bool { return l.locked }

func (l *FileLock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	return nil
}
