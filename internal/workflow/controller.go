// Package workflow enforces the project hand-off lifecycle:
// active → submitted → approved, or submitted → rejected → submitted
// again. Approval and rejection are written by the reviewer side and
// only consumed here.
package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dori/handoff/internal/model"
	"github.com/dori/handoff/internal/store"
)

// ErrGuardViolation is returned when a transition is attempted without
// satisfying its guard: an incomplete or empty task list, or a project
// that is not in a submittable state. In normal operation the UI checks
// CanSubmit first, so hitting this indicates stale caller state. No
// entry is written when it fires.
var ErrGuardViolation = errors.New("hand-off guard violated")

// SubmitGuard reports whether a task list permits hand-off: it must be
// non-empty and every task completed.
func SubmitGuard(tasks []model.Task) bool {
	return len(tasks) > 0 && model.CompletedCount(tasks) == len(tasks)
}

// Controller drives hand-off transitions for projects, gated on task
// completion.
type Controller struct {
	tasks     *store.TaskStore
	workflows *store.WorkflowStore
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a controller over the given stores.
func New(tasks *store.TaskStore, workflows *store.WorkflowStore, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		tasks:     tasks,
		workflows: workflows,
		logger:    logger,
		now:       time.Now,
	}
}

// EffectiveStatus returns the project's hand-off status, Active when no
// entry exists.
func (c *Controller) EffectiveStatus(projectID string) (model.WorkflowStatus, error) {
	entry, err := c.workflows.Entry(projectID)
	if err != nil {
		return "", err
	}
	return model.DeriveStatus(entry), nil
}

// Progress returns the completed and total task counts for a project,
// computed fresh from the task store. The snapshot inside a workflow
// entry is an audit copy and is never used here.
func (c *Controller) Progress(projectID string) (completed, total int, err error) {
	tasks, err := c.tasks.Tasks(projectID)
	if err != nil {
		return 0, 0, err
	}
	return model.CompletedCount(tasks), len(tasks), nil
}

// CanSubmit reports whether the submit (or resubmit) action should be
// offered for a project. Callers must still expect Submit to re-check:
// task or workflow state may move between the two calls.
func (c *Controller) CanSubmit(projectID string) (bool, error) {
	status, err := c.EffectiveStatus(projectID)
	if err != nil {
		return false, err
	}
	if status != model.WorkflowActive && status != model.WorkflowRejected {
		return false, nil
	}
	tasks, err := c.tasks.Tasks(projectID)
	if err != nil {
		return false, err
	}
	return SubmitGuard(tasks), nil
}

// Submit hands the project off for review. From Active it creates the
// entry; from Rejected it refreshes it, keeping the reviewer's note
// until the reviewer overwrites it. Any other state, or an unsatisfied
// task guard, fails with ErrGuardViolation and writes nothing. The
// workflow entry's state is re-read inside the write cycle, so a
// near-simultaneous submit from another tab cannot be overwritten
// blindly.
func (c *Controller) Submit(projectID, userID string, project model.ProjectMeta) (model.WorkflowEntry, error) {
	tasks, err := c.tasks.Tasks(projectID)
	if err != nil {
		return model.WorkflowEntry{}, err
	}
	if !SubmitGuard(tasks) {
		c.logger.Warn("hand-off submit refused, tasks incomplete",
			"project", projectID,
			"completed", model.CompletedCount(tasks),
			"total", len(tasks))
		return model.WorkflowEntry{}, fmt.Errorf("%w: %d/%d tasks completed",
			ErrGuardViolation, model.CompletedCount(tasks), len(tasks))
	}

	var result model.WorkflowEntry
	err = c.workflows.Update(projectID, func(current *model.WorkflowEntry) (*model.WorkflowEntry, error) {
		switch status := model.DeriveStatus(current); status {
		case model.WorkflowActive:
			result = model.WorkflowEntry{
				Status:             model.WorkflowSubmitted,
				SubmittedAt:        c.now(),
				SubmittedBy:        userID,
				ProjectID:          projectID,
				ProjectName:        project.Name,
				ProjectCode:        project.Code,
				ProjectDescription: project.Description,
				TasksSnapshot:      snapshot(tasks),
			}
		case model.WorkflowRejected:
			result = *current
			result.Status = model.WorkflowSubmitted
			result.SubmittedAt = c.now()
			result.SubmittedBy = userID
			result.ProjectName = project.Name
			result.ProjectCode = project.Code
			result.ProjectDescription = project.Description
			result.TasksSnapshot = snapshot(tasks)
			// ReviewNote carries over until the reviewer replaces it.
		default:
			return nil, fmt.Errorf("%w: project is %s", ErrGuardViolation, status)
		}
		return &result, nil
	})
	if err != nil {
		if errors.Is(err, ErrGuardViolation) {
			c.logger.Warn("hand-off submit refused", "project", projectID, "error", err)
		}
		return model.WorkflowEntry{}, err
	}
	return result, nil
}

// Resubmit re-runs the hand-off after a rejection. It is the same
// transition as Submit with the same guard.
func (c *Controller) Resubmit(projectID, userID string, project model.ProjectMeta) (model.WorkflowEntry, error) {
	return c.Submit(projectID, userID, project)
}

// snapshot copies the task list for the audit trail embedded in the
// entry.
func snapshot(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	copy(out, tasks)
	return out
}
