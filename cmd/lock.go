package cmd

import (
	"fmt"
	"hash/fnv"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/relaypull/fetchd/internal/config"
)

// InstanceLock guards against two fetchd processes racing on the same
// -o output directory — scoped per output path rather than
// process-wide, since independent -o directories don't conflict with
// each other.
type InstanceLock struct {
	flock *flock.Flock
}

// AcquireLock tries to take the lock for outputPath. locked is false,
// err nil, when some other process already holds it.
func AcquireLock(outputPath string) (lock *InstanceLock, locked bool, err error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, false, fmt.Errorf("lock: %w", err)
	}

	abs, err := filepath.Abs(outputPath)
	if err != nil {
		return nil, false, fmt.Errorf("lock: %w", err)
	}
	lockPath := filepath.Join(config.GetStateDir(), lockFileName(abs))
	fileLock := flock.New(lockPath)

	ok, err := fileLock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &InstanceLock{flock: fileLock}, true, nil
}

// Release releases the lock.
func (l *InstanceLock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}

// lockFileName derives a filesystem-safe lock file name from the
// absolute output path, so distinct -o directories never contend with
// each other's lock.
func lockFileName(absOutputPath string) string {
	h := fnv.New32a()
	h.Write([]byte(absOutputPath))
	return fmt.Sprintf("fetchd-%08x.lock", h.Sum32())
}
