package kv

import (
	"database/sql"
	"embed"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite is the alternative durable Store binding: a single kv table in
// an embedded database. WAL mode plus immediate transactions serialize
// read-modify-write cycles across processes. SQLite cannot signal other
// processes on its own, so every write also bumps a sidecar signal file
// next to the database; observers watch that file and re-read.
type SQLite struct {
	db         *sql.DB
	signalPath string

	watchOnce sync.Once
	watchErr  error
	watcher   *fsnotify.Watcher

	subMu sync.Mutex
	subs  map[int]func(key string)
	nextS int
}

// OpenSQLite opens a database connection and runs migrations.
func OpenSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Immediate transactions take the write lock up front, so an
	// Update cycle cannot read stale state while another process
	// commits.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLite{
		db:         db,
		signalPath: dbPath + ".events",
		subs:       make(map[int]func(key string)),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations using embedded SQL files
func (s *SQLite) migrate() error {
	// Silence goose logging
	goose.SetLogger(log.New(io.Discard, "", 0))
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *SQLite) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) Set(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	s.signal(key)
	return nil
}

func (s *SQLite) Delete(key string) error {
	res, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.signal(key)
	}
	return nil
}

// Update runs the whole read-modify-write cycle inside one immediate
// transaction.
func (s *SQLite) Update(key string, fn UpdateFunc) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var current []byte
	err = tx.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		tx.Rollback()
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	next, err := fn(current)
	if err != nil {
		tx.Rollback()
		return err
	}

	if next == nil {
		_, err = tx.Exec(`DELETE FROM kv WHERE key = ?`, key)
	} else {
		_, err = tx.Exec(`
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, next)
	}
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	s.signal(key)
	return nil
}

// signal bumps the sidecar file so watchers in other processes notice
// the change. The file carries the last changed key as a hint only;
// observers re-read the store regardless.
func (s *SQLite) signal(key string) {
	_ = os.WriteFile(s.signalPath, []byte(key), 0644)
}

func (s *SQLite) Subscribe(fn func(key string)) (func(), error) {
	s.watchOnce.Do(s.startWatcher)
	if s.watchErr != nil {
		return nil, s.watchErr
	}

	s.subMu.Lock()
	id := s.nextS
	s.nextS++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}, nil
}

func (s *SQLite) startWatcher() {
	// Touch the signal file so there is something to watch.
	if _, err := os.Stat(s.signalPath); os.IsNotExist(err) {
		if err := os.WriteFile(s.signalPath, nil, 0644); err != nil {
			s.watchErr = fmt.Errorf("failed to create signal file: %w", err)
			return
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.watchErr = fmt.Errorf("failed to create watcher: %w", err)
		return
	}
	if err := watcher.Add(filepath.Dir(s.signalPath)); err != nil {
		watcher.Close()
		s.watchErr = fmt.Errorf("failed to watch signal file: %w", err)
		return
	}
	s.watcher = watcher

	base := filepath.Base(s.signalPath)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				hint, _ := os.ReadFile(s.signalPath)
				s.notify(strings.TrimSpace(string(hint)))
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

func (s *SQLite) notify(key string) {
	s.subMu.Lock()
	fns := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

func (s *SQLite) Close() error {
	if s.watcher != nil {
		s.watcher.Close()
	}
	return s.db.Close()
}
