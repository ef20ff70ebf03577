package storage

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLock_MutualExclusion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.jsonl")

	var mu sync.Mutex
	inCritical := 0
	maxConcurrent := 0

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(path, func() error {
				mu.Lock()
				inCritical++
				if inCritical > maxConcurrent {
					maxConcurrent = inCritical
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inCritical--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxConcurrent, "two operations held the lock at once")
}

func TestWithLock_PropagatesOperationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.jsonl")
	wantErr := errors.New("operation failed")

	err := WithLock(path, func() error { return wantErr })
	assert.ErrorIs(t, err, wantErr)

	// Lock must have been released: a second acquisition succeeds immediately.
	err = WithLock(path, func() error { return nil })
	assert.NoError(t, err)
}

func TestWithLock_TimesOutOnContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.jsonl")

	// Hold the underlying lock from outside so acquisition can never succeed.
	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer holder.Unlock()

	err = withLockPolicy(path, 3, time.Millisecond, func() error {
		t.Fatal("operation ran despite lock being held elsewhere")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
}
