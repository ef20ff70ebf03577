package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when a lock could not be acquired after all
// retries. Callers may retry the whole higher-level operation.
var ErrLockTimeout = errors.New("could not acquire file lock")

// Lock acquisition policy. The delay doubles per attempt, so the default
// worst case is 10ms * (2^8 - 1) ≈ 2.5s before giving up.
const (
	defaultLockRetries = 8
	defaultLockBackoff = 10 * time.Millisecond
)

// WithLock executes fn while holding an exclusive advisory lock associated
// with path. The lock lives in a sibling <path>.lock file so the data file
// itself can be atomically renamed over while locked.
//
// On contention the acquisition retries with exponential backoff; after the
// retry budget is exhausted the call fails with ErrLockTimeout. fn's error
// (or panic) propagates after the lock is released.
func WithLock(path string, fn func() error) error {
	return withLockPolicy(path, defaultLockRetries, defaultLockBackoff, fn)
}

func withLockPolicy(path string, retries int, backoff time.Duration, fn func() error) error {
	fl := flock.New(path + ".lock")

	delay := backoff
	acquired := false
	for attempt := 0; attempt < retries; attempt++ {
		locked, err := fl.TryLock()
		if err != nil {
			return fmt.Errorf("lock %s: %w", path, err)
		}
		if locked {
			acquired = true
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	if !acquired {
		return fmt.Errorf("%w: %s after %d attempts", ErrLockTimeout, path, retries)
	}

	defer fl.Unlock()
	return fn()
}
