// Package filelock coordinates cross-process access to plan files and writes
// them atomically so readers never observe a partially written plan.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Lock is an advisory file lock guarding a single path.
type Lock struct {
	flock *flock.Flock
	path  string
}

// New creates a lock for the given path. The lock file itself is created
// lazily on first acquisition.
func New(path string) *Lock {
	return &Lock{
		flock: flock.New(path),
		path:  path,
	}
}

// ensureDir creates the lock file's directory. The lock is taken before the
// first write ever happens, so in a fresh workspace nothing else has created
// the plans directory yet.
func (l *Lock) ensureDir() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// Acquire blocks until the exclusive lock is held.
func (l *Lock) Acquire() error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", l.path, err)
	}
	return nil
}

// AcquireTimeout tries to take the lock, polling until the timeout elapses.
// A non-positive timeout blocks indefinitely.
func (l *Lock) AcquireTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return l.Acquire()
	}
	if err := l.ensureDir(); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		acquired, err := l.flock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock on %s: %w", l.path, err)
		}
		if acquired {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("acquire lock on %s: timed out after %s", l.path, timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Release gives the lock back.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock on %s: %w", l.path, err)
	}
	return nil
}

// WriteAtomic writes data to path via a temp file in the same directory
// followed by a rename. On any failure the original file is left untouched.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	// Rename within the same filesystem is atomic.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	tmp = nil
	return nil
}

// WriteLocked takes the sibling ".lock" file, writes atomically, and releases.
// Writing to "plan.md" locks "plan.md.lock".
func WriteLocked(path string, data []byte) error {
	lock := New(path + ".lock")
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	return WriteAtomic(path, data)
}

// WriteLockedTimeout is WriteLocked with a bounded wait on the lock.
func WriteLockedTimeout(path string, data []byte, timeout time.Duration) error {
	lock := New(path + ".lock")
	if err := lock.AcquireTimeout(timeout); err != nil {
		return err
	}
	defer lock.Release()

	return WriteAtomic(path, data)
}
