package store

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dori/handoff/internal/kv"
	"github.com/dori/handoff/internal/model"
)

// WorkflowKey is the single shared storage key holding every project's
// hand-off entry. Unlike task state it is not scoped per user.
const WorkflowKey = "proj_workflows"

// WorkflowStore is the process-wide mapping from project id to its
// hand-off entry. An absent entry means the project is still active.
type WorkflowStore struct {
	kv     kv.Store
	logger *slog.Logger
}

// NewWorkflowStore creates a workflow store over the given binding.
func NewWorkflowStore(store kv.Store, logger *slog.Logger) *WorkflowStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowStore{kv: store, logger: logger}
}

// All returns the full project→entry map. A missing or unreadable
// payload yields an empty map, never an error.
func (s *WorkflowStore) All() (map[string]model.WorkflowEntry, error) {
	data, err := s.kv.Get(WorkflowKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}
	return s.decode(data), nil
}

// Entry returns the hand-off entry for one project, or nil when the
// project has none.
func (s *WorkflowStore) Entry(projectID string) (*model.WorkflowEntry, error) {
	m, err := s.All()
	if err != nil {
		return nil, err
	}
	entry, ok := m[projectID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Update applies fn to the current entry for projectID (nil when
// absent) and persists the result; fn returning nil deletes the entry.
// The entry passed to fn is re-read inside the write cycle, so a write
// from another tab between the caller's earlier reads and now is never
// silently overwritten.
func (s *WorkflowStore) Update(projectID string, fn func(current *model.WorkflowEntry) (*model.WorkflowEntry, error)) error {
	return s.kv.Update(WorkflowKey, func(current []byte) ([]byte, error) {
		m := s.decode(current)

		var cur *model.WorkflowEntry
		if entry, ok := m[projectID]; ok {
			cur = &entry
		}

		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		if next == nil {
			delete(m, projectID)
		} else {
			m[projectID] = *next
		}

		out, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("failed to encode workflows: %w", err)
		}
		return out, nil
	})
}

// Watch registers fn to run whenever the workflow key changes, in this
// or another process. The callback carries no payload; consumers call
// All to pick up the new state.
func (s *WorkflowStore) Watch(fn func()) (cancel func(), err error) {
	return s.kv.Subscribe(func(key string) {
		if key == WorkflowKey {
			fn()
		}
	})
}

func (s *WorkflowStore) decode(data []byte) map[string]model.WorkflowEntry {
	if len(data) == 0 {
		return map[string]model.WorkflowEntry{}
	}
	var m map[string]model.WorkflowEntry
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("discarding unreadable workflow payload", "error", err)
		return map[string]model.WorkflowEntry{}
	}
	if m == nil {
		return map[string]model.WorkflowEntry{}
	}
	return m
}
