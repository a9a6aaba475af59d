package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
)

// ErrInvalidKey is returned for keys that cannot be mapped to a file
// inside the data directory. Keys embed caller-supplied values (the
// user id), so anything that could traverse out of the directory is
// rejected rather than interpolated into a path.
var ErrInvalidKey = errors.New("invalid key")

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}

// File is the default durable Store binding: one JSON document per key
// in a data directory. Writes go through a temp file and rename, so a
// failed write (full disk, kill mid-write) never corrupts the previous
// value. Read-modify-write cycles hold a per-key flock, which
// serializes concurrent updates across processes. Changes are observed
// by other processes through a directory watch.
type File struct {
	dir string

	watchOnce sync.Once
	watchErr  error
	watcher   *fsnotify.Watcher

	subMu sync.Mutex
	subs  map[int]func(key string)
	nextS int
}

const tmpPrefix = ".tmp-"

// OpenFile opens (creating if needed) a file-backed store rooted at dir.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &File{
		dir:  dir,
		subs: make(map[int]func(key string)),
	}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *File) lock(key string) *flock.Flock {
	return flock.New(filepath.Join(f.dir, key+".lock"))
}

func (f *File) Get(key string) ([]byte, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (f *File) Set(key string, value []byte) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	fl := f.lock(key)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	defer fl.Unlock()

	return f.writeAtomic(key, value)
}

func (f *File) Delete(key string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	fl := f.lock(key)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	defer fl.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Update holds the key's lock for the whole read-modify-write cycle, so
// the value passed to fn is always the latest committed one even when
// another process wrote between the caller's earlier reads and now.
func (f *File) Update(key string, fn UpdateFunc) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	fl := f.lock(key)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	defer fl.Unlock()

	current, err := os.ReadFile(f.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		current = nil
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", key, err)
		}
		return nil
	}
	return f.writeAtomic(key, next)
}

// writeAtomic writes value to a temp file in the same directory and
// renames it over the target, so readers never see a partial document.
func (f *File) writeAtomic(key string, value []byte) error {
	tmp, err := os.CreateTemp(f.dir, tmpPrefix+key+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}

func (f *File) Subscribe(fn func(key string)) (func(), error) {
	f.watchOnce.Do(f.startWatcher)
	if f.watchErr != nil {
		return nil, f.watchErr
	}

	f.subMu.Lock()
	id := f.nextS
	f.nextS++
	f.subs[id] = fn
	f.subMu.Unlock()

	return func() {
		f.subMu.Lock()
		delete(f.subs, id)
		f.subMu.Unlock()
	}, nil
}

func (f *File) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.watchErr = fmt.Errorf("failed to create watcher: %w", err)
		return
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		f.watchErr = fmt.Errorf("failed to watch %s: %w", f.dir, err)
		return
	}
	f.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				key, ok := keyForEvent(ev)
				if !ok {
					continue
				}
				f.notify(key)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// keyForEvent maps a directory event back to a store key, skipping lock
// files and in-flight temp files.
func keyForEvent(ev fsnotify.Event) (string, bool) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return "", false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, tmpPrefix) || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	return strings.TrimSuffix(name, ".json"), true
}

func (f *File) notify(key string) {
	f.subMu.Lock()
	fns := make([]func(string), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.subMu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

func (f *File) Close() error {
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}
