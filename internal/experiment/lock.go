package experiment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gofrs/flock"

	"hcnn/internal/faults"
)

// A writer keeps trying for lockGrace so that a status check holding the lock
// for an instant does not turn into ErrBusy.
const (
	lockGrace = 250 * time.Millisecond
	lockRetry = 10 * time.Millisecond
)

// Lock is an exclusive advisory lock on an experiment directory.
type Lock struct {
	lock *flock.Flock
}

// Lock acquires the experiment lock. It fails with ErrBusy when another
// process still holds it after a short grace period.
func (l Layout) Lock() (*Lock, error) {
	return acquire(l.LockPath())
}

// Unlock releases the lock.
func (k *Lock) Unlock() error {
	if k == nil || k.lock == nil {
		return nil
	}
	return k.lock.Unlock()
}

// Held reports whether another process currently holds the experiment lock.
// The check takes a shared lock for an instant, so concurrent checks do not
// conflict with each other.
func (l Layout) Held() (bool, error) {
	if _, err := os.Stat(l.LockPath()); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	fl := flock.New(l.LockPath())
	ok, err := fl.TryRLock()
	if err != nil {
		return false, faults.Wrap(faults.ErrIO, "experiment", "check lock", l.LockPath(), err)
	}
	if !ok {
		return true, nil
	}
	return false, fl.Unlock()
}

// LockPath acquires an exclusive lock on an arbitrary lock file, failing
// with ErrBusy when held elsewhere.
func LockPath(path string) (*Lock, error) {
	return acquire(path)
}

func acquire(path string) (*Lock, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockGrace)
	defer cancel()

	fl := flock.New(path)
	ok, err := fl.TryLockContext(ctx, lockRetry)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (err == nil && !ok):
		return nil, fmt.Errorf("%w: %s", ErrBusy, path)
	case err != nil:
		return nil, faults.Wrap(faults.ErrIO, "experiment", "acquire lock", path, err)
	}
	return &Lock{lock: fl}, nil
}
