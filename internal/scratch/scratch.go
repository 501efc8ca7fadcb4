// Package scratch manages a worker's local working directories. Each worker
// owns one directory under a shared base, held by a file lock so that other
// workers can tell live directories from ones left behind by a crash.
package scratch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const lockSuffix = ".lock"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Root is a worker-owned scratch directory
type Root struct {
	base string
	dir  string
	lock *flock.Flock
}

// Open creates and locks a fresh worker directory under base
func Open(base string) (*Root, error) {
	if base == "" {
		return nil, errors.New("scratch base directory is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch base: %w", err)
	}

	name := "worker-" + uuid.NewString()
	lock := flock.New(filepath.Join(base, name+lockSuffix))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire scratch lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("scratch lock %s is held", lock.Path())
	}

	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	return &Root{base: base, dir: dir, lock: lock}, nil
}

// Path returns the worker directory
func (r *Root) Path() string {
	return r.dir
}

// JobDir creates an empty directory for one job
func (r *Root) JobDir(jobID string) (string, error) {
	name := unsafeChars.ReplaceAllString(jobID, "_")
	name = strings.Trim(name, ".")
	if name == "" {
		name = "job"
	}

	dir := filepath.Join(r.dir, "job-"+name)
	// a leftover from an earlier attempt of the same job is discarded
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Remove deletes a job directory. Paths outside the worker directory are
// refused.
func (r *Root) Remove(dir string) error {
	rel, err := filepath.Rel(r.dir, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %s outside %s", dir, r.dir)
	}
	return os.RemoveAll(dir)
}

// Sweep removes directories under base whose owning worker no longer holds
// its lock. It returns the number of directories removed.
func (r *Root) Sweep() (int, error) {
	entries, err := os.ReadDir(r.base)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "worker-") {
			continue
		}
		dir := filepath.Join(r.base, entry.Name())
		if dir == r.dir {
			continue
		}

		lock := flock.New(dir + lockSuffix)
		ok, err := lock.TryLock()
		if err != nil {
			slog.Warn("Failed to probe scratch lock", "dir", dir, "error", err)
			continue
		}
		if !ok {
			continue
		}

		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("Failed to remove stale scratch directory", "dir", dir, "error", err)
		} else {
			removed++
			slog.Info("Removed stale scratch directory", "dir", dir)
		}
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}

	return removed, nil
}

// Close removes the worker directory and releases its lock
func (r *Root) Close() error {
	err := os.RemoveAll(r.dir)
	if unlockErr := r.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	_ = os.Remove(r.lock.Path())
	return err
}
