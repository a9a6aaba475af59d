// Package store holds the durable task and workflow state on top of the
// kv abstraction. The task store is scoped to one authenticated user;
// the workflow store is shared by every user of the same browser
// context, so any user may observe or advance hand-off state for a
// project they can view.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dori/handoff/internal/kv"
	"github.com/dori/handoff/internal/model"
)

// TaskStore is the per-user mapping from project id to that user's task
// list. Corrupt persisted payloads are dropped in favor of an empty map
// rather than surfaced as errors.
type TaskStore struct {
	kv     kv.Store
	userID string
	logger *slog.Logger
}

// NewTaskStore creates a task store for one authenticated user.
func NewTaskStore(store kv.Store, userID string, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{kv: store, userID: userID, logger: logger}
}

func (s *TaskStore) key() string {
	return "proj_tasks_" + s.userID
}

// Load returns the full project→tasks map for this user. A missing or
// unreadable payload yields an empty map, never an error.
func (s *TaskStore) Load() (map[string][]model.Task, error) {
	data, err := s.kv.Get(s.key())
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	return s.decode(data), nil
}

// Tasks returns the task list for one project, empty when absent.
// Records written before the completed flag existed decode with
// Completed false.
func (s *TaskStore) Tasks(projectID string) ([]model.Task, error) {
	m, err := s.Load()
	if err != nil {
		return nil, err
	}
	return m[projectID], nil
}

// Upsert applies fn to the current task list for projectID and persists
// the result. An empty result removes the project key entirely. The
// whole cycle runs against freshly read state, so rapid mutations from
// different callers apply as a strict sequence.
func (s *TaskStore) Upsert(projectID string, fn func(current []model.Task) []model.Task) error {
	return s.kv.Update(s.key(), func(current []byte) ([]byte, error) {
		m := s.decode(current)
		next := fn(m[projectID])
		if len(next) == 0 {
			delete(m, projectID)
		} else {
			m[projectID] = next
		}
		out, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tasks: %w", err)
		}
		return out, nil
	})
}

func (s *TaskStore) decode(data []byte) map[string][]model.Task {
	if len(data) == 0 {
		return map[string][]model.Task{}
	}
	var m map[string][]model.Task
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("discarding unreadable task payload", "user", s.userID, "error", err)
		return map[string][]model.Task{}
	}
	if m == nil {
		return map[string][]model.Task{}
	}
	return m
}
