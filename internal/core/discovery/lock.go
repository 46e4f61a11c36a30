package discovery

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var ErrLockHeld = errors.New("discovery lock held by another process")

// FileLock keeps two discovery processes on one host from interleaving their
// delete and write phases.
type FileLock struct {
	path string
	f    *os.File
}

// AcquireFileLock creates path exclusively. A lock file older than staleAfter
// is assumed to belong to a crashed run and is taken over.
func AcquireFileLock(path string, staleAfter time.Duration) (*FileLock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			return &FileLock{path: path, f: f}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file %s: %w", path, err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil || staleAfter <= 0 || time.Since(info.ModTime()) < staleAfter {
			break
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLockHeld, path)
}

func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = l.f.Close()
	l.f = nil
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file %s: %w", l.path, err)
	}
	return nil
}
