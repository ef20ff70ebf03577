package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsChangedSession(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	w, err := NewWatcher(root)
	require.NoError(t, err)
	defer w.Close()

	_, err = store.AppendQuestion("sess-1", QuestionInput{Question: "anyone there?"})
	require.NoError(t, err)

	select {
	case id := <-w.Changes():
		require.Equal(t, "sess-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event within 2s of appending to the session log")
	}
}

func TestWatcher_IgnoresNonSessionFiles(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	w, err := NewWatcher(root)
	require.NoError(t, err)
	defer w.Close()

	// Lock files are created next to session logs; they must not wake pollers.
	err = WithLock(store.SessionPath("sess-1"), func() error { return nil })
	require.NoError(t, err)

	select {
	case id := <-w.Changes():
		t.Fatalf("unexpected change event for %q", id)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
