package kv

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Keys come straight from user IDs, so separators and dot segments must
// be rejected before they reach the filesystem.
func TestFileRejectsPathlikeKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFile(dir)
	require.NoError(t, err)
	defer s.Close()

	for _, key := range []string{"", ".", "..", "../escape", "a/b", `a\b`} {
		_, err := s.Get(key)
		require.ErrorIs(t, err, ErrInvalidKey, "Get %q", key)
		require.ErrorIs(t, s.Set(key, []byte(`{}`)), ErrInvalidKey, "Set %q", key)
		require.ErrorIs(t, s.Delete(key), ErrInvalidKey, "Delete %q", key)
		err = s.Update(key, func(current []byte) ([]byte, error) {
			return []byte(`{}`), nil
		})
		require.ErrorIs(t, err, ErrInvalidKey, "Update %q", key)
	}

	// Nothing escaped the store directory.
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.json"))
	require.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// A write through one handle must be observable by a subscriber on a
// different handle over the same directory, the way another browser tab
// observes a storage event.
func TestFileSubscribeAcrossHandles(t *testing.T) {
	dir := t.TempDir()
	writer, err := OpenFile(dir)
	require.NoError(t, err)
	defer writer.Close()
	observer, err := OpenFile(dir)
	require.NoError(t, err)
	defer observer.Close()

	var mu sync.Mutex
	seen := map[string]int{}
	cancel, err := observer.Subscribe(func(key string) {
		mu.Lock()
		seen[key]++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, writer.Set("proj_workflows", []byte(`{}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["proj_workflows"] > 0
	}, 3*time.Second, 10*time.Millisecond)

	// Lock files and temp files never surface as keys.
	mu.Lock()
	for key := range seen {
		require.Equal(t, "proj_workflows", key)
	}
	mu.Unlock()
}
