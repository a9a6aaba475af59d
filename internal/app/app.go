// Package app wires the storage binding, stores, editor, and workflow
// controller together for one authenticated user session ("tab").
// Several sessions may run concurrently against the same data
// directory; writes are serialized at the storage layer.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dori/handoff/internal/editor"
	"github.com/dori/handoff/internal/kv"
	"github.com/dori/handoff/internal/store"
	"github.com/dori/handoff/internal/workflow"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds application configuration
type Config struct {
	DataDir string
	Backend string // file or sqlite
	UserID  string
	Logger  *slog.Logger
}

// DefaultDataDir returns the default data directory path
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".handoff"
	}
	return filepath.Join(home, ".local", "share", "handoff")
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Backend: BackendFile,
	}
}

// App holds the application state and dependencies
type App struct {
	KV         kv.Store
	Tasks      *store.TaskStore
	Workflows  *store.WorkflowStore
	Controller *workflow.Controller
	Editor     *editor.Editor
	DataDir    string
}

// New creates a new application instance for the configured user.
func New(cfg *Config) (*App, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		kvs kv.Store
		err error
	)
	switch cfg.Backend {
	case BackendSQLite:
		kvs, err = kv.OpenSQLite(filepath.Join(cfg.DataDir, "handoff.db"))
	case BackendFile, "":
		kvs, err = kv.OpenFile(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	tasks := store.NewTaskStore(kvs, cfg.UserID, logger)
	workflows := store.NewWorkflowStore(kvs, logger)
	controller := workflow.New(tasks, workflows, logger)
	ed := editor.New(tasks, controller.EffectiveStatus, logger)

	return &App{
		KV:         kvs,
		Tasks:      tasks,
		Workflows:  workflows,
		Controller: controller,
		Editor:     ed,
		DataDir:    cfg.DataDir,
	}, nil
}

// Close cleans up application resources
func (a *App) Close() error {
	if a.KV != nil {
		return a.KV.Close()
	}
	return nil
}
