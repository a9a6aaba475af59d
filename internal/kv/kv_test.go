package kv

import (
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func openBindings(t *testing.T) map[string]Store {
	t.Helper()
	file, err := OpenFile(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": sqlite,
	}
}

func TestRoundTrip(t *testing.T) {
	for name, s := range openBindings(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Get("missing")
			require.NoError(t, err)
			require.Nil(t, got)

			require.NoError(t, s.Set("k", []byte(`{"a":1}`)))
			got, err = s.Get("k")
			require.NoError(t, err)
			require.Equal(t, []byte(`{"a":1}`), got)

			require.NoError(t, s.Delete("k"))
			got, err = s.Get("k")
			require.NoError(t, err)
			require.Nil(t, got)

			// Deleting an absent key is a no-op.
			require.NoError(t, s.Delete("k"))
		})
	}
}

func TestUpdate(t *testing.T) {
	for name, s := range openBindings(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Update("n", func(current []byte) ([]byte, error) {
				require.Nil(t, current)
				return []byte("1"), nil
			})
			require.NoError(t, err)

			err = s.Update("n", func(current []byte) ([]byte, error) {
				require.Equal(t, []byte("1"), current)
				return []byte("2"), nil
			})
			require.NoError(t, err)

			got, err := s.Get("n")
			require.NoError(t, err)
			require.Equal(t, []byte("2"), got)

			// Returning nil deletes.
			err = s.Update("n", func(current []byte) ([]byte, error) {
				return nil, nil
			})
			require.NoError(t, err)
			got, err = s.Get("n")
			require.NoError(t, err)
			require.Nil(t, got)
		})
	}
}

func TestUpdateErrorWritesNothing(t *testing.T) {
	for name, s := range openBindings(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("k", []byte("before")))
			err := s.Update("k", func(current []byte) ([]byte, error) {
				return nil, fmt.Errorf("boom")
			})
			require.Error(t, err)

			got, err := s.Get("k")
			require.NoError(t, err)
			require.Equal(t, []byte("before"), got)
		})
	}
}

// TestConcurrentUpdatesNotLost simulates two tabs incrementing the same
// counter. Every read-modify-write must see the latest committed value,
// so no increment may be lost.
func TestConcurrentUpdatesNotLost(t *testing.T) {
	for name, s := range openBindings(t) {
		t.Run(name, func(t *testing.T) {
			const perTab = 20

			var wg sync.WaitGroup
			for tab := 0; tab < 2; tab++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < perTab; i++ {
						err := s.Update("counter", func(current []byte) ([]byte, error) {
							n := 0
							if current != nil {
								var err error
								n, err = strconv.Atoi(string(current))
								if err != nil {
									return nil, err
								}
							}
							return []byte(strconv.Itoa(n + 1)), nil
						})
						if err != nil {
							t.Error(err)
							return
						}
					}
				}()
			}
			wg.Wait()

			got, err := s.Get("counter")
			require.NoError(t, err)
			require.Equal(t, strconv.Itoa(2*perTab), string(got))
		})
	}
}

// TestFileTwoHandles covers the cross-process shape: two independent
// store handles over the same directory contend on the same flock.
func TestFileTwoHandles(t *testing.T) {
	dir := t.TempDir()
	a, err := OpenFile(dir)
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenFile(dir)
	require.NoError(t, err)
	defer b.Close()

	const perHandle = 20
	var wg sync.WaitGroup
	for _, s := range []Store{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perHandle; i++ {
				err := s.Update("counter", func(current []byte) ([]byte, error) {
					n := 0
					if current != nil {
						var err error
						n, err = strconv.Atoi(string(current))
						if err != nil {
							return nil, err
						}
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := a.Get("counter")
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(2*perHandle), string(got))
}

// An updater that scribbles on its argument and then errors must not
// leak those mutations into committed state.
func TestUpdateErrorAfterMutatingCurrent(t *testing.T) {
	for name, s := range openBindings(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("k", []byte("before")))
			err := s.Update("k", func(current []byte) ([]byte, error) {
				for i := range current {
					current[i] = 'X'
				}
				return nil, fmt.Errorf("boom")
			})
			require.Error(t, err)

			got, err := s.Get("k")
			require.NoError(t, err)
			require.Equal(t, []byte("before"), got)
		})
	}
}

func TestMemorySubscribe(t *testing.T) {
	s := NewMemory()

	var mu sync.Mutex
	var seen []string
	cancel, err := s.Subscribe(func(key string) {
		mu.Lock()
		seen = append(seen, key)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, s.Set("a", []byte("1")))
	require.NoError(t, s.Update("b", func([]byte) ([]byte, error) { return []byte("2"), nil }))
	require.NoError(t, s.Delete("a"))
	// Absent key: no notification.
	require.NoError(t, s.Delete("ghost"))

	mu.Lock()
	require.Equal(t, []string{"a", "b", "a"}, seen)
	mu.Unlock()

	cancel()
	require.NoError(t, s.Set("c", []byte("3")))
	mu.Lock()
	require.Len(t, seen, 3)
	mu.Unlock()
}
