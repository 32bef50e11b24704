package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLocker is an advisory flock(2) lock on a local file. It serialises
// runs between processes sharing a host or volume.
type FileLocker struct {
	path string
}

var _ Locker = (*FileLocker)(nil)

// NewFileLocker returns a locker on path. The file is created on demand.
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{path: path}
}

// TryAcquire implements Locker.
func (l *FileLocker) TryAcquire(context.Context) (Lease, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(l.path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return &fileLease{fl: fl}, nil
}

type fileLease struct {
	fl *flock.Flock
}

func (l *fileLease) Release(context.Context) error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.fl.Path(), err)
	}
	return nil
}
