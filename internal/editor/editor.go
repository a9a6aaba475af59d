// Package editor builds and validates task drafts before they are
// committed to the task store.
package editor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dori/handoff/internal/model"
	"github.com/dori/handoff/internal/store"
)

var (
	// ErrTitleRequired is returned when a draft is submitted without a
	// title.
	ErrTitleRequired = errors.New("task title is required")

	// ErrAttachmentRead is returned when any file in an ingestion batch
	// could not be read. The whole batch is discarded.
	ErrAttachmentRead = errors.New("could not read attachment")

	// ErrProjectClosed is returned when a task is submitted for a
	// project whose hand-off has been approved.
	ErrProjectClosed = errors.New("project hand-off is approved; tasks are closed")
)

// Draft is the in-progress task being assembled from user input.
type Draft struct {
	Title       string
	Description string
	DueDate     *time.Time
	Status      model.Status
	Color       string
	Attachments []model.Attachment
}

// Source supplies one file to ingest as an attachment.
type Source struct {
	Name string
	Type string // MIME type; inferred from the name when empty
	Open func() (io.ReadCloser, error)
}

// FileSource builds a Source reading from a path on disk.
func FileSource(path string) Source {
	return Source{
		Name: filepath.Base(path),
		Type: mime.TypeByExtension(filepath.Ext(path)),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// StatusFunc reports the current hand-off status of a project.
type StatusFunc func(projectID string) (model.WorkflowStatus, error)

// Editor validates and constructs tasks. It holds one draft at a time;
// Submit commits the draft to the task store and resets it.
type Editor struct {
	tasks  *store.TaskStore
	status StatusFunc
	logger *slog.Logger
	draft  Draft
}

// New creates an editor over the given task store. status may be nil
// when no hand-off gating is wanted.
func New(tasks *store.TaskStore, status StatusFunc, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Editor{tasks: tasks, status: status, logger: logger}
	e.Reset()
	return e
}

// Reset discards the draft and starts a fresh one with defaults.
func (e *Editor) Reset() {
	e.draft = Draft{
		Status: model.StatusTodo,
		Color:  model.DefaultColor(),
	}
}

// Draft returns a copy of the current draft.
func (e *Editor) Draft() Draft {
	d := e.draft
	d.Attachments = append([]model.Attachment(nil), e.draft.Attachments...)
	return d
}

func (e *Editor) SetTitle(title string)      { e.draft.Title = title }
func (e *Editor) SetDescription(desc string) { e.draft.Description = desc }
func (e *Editor) SetDueDate(due *time.Time)  { e.draft.DueDate = due }
func (e *Editor) SetColor(color string)      { e.draft.Color = color }

// SetStatus sets the draft substatus, ignoring unknown values.
func (e *Editor) SetStatus(status model.Status) {
	if model.ValidStatus(status) {
		e.draft.Status = status
	}
}

// AddAttachments ingests every source concurrently into a data URI and
// appends the batch to the draft. The draft changes atomically per
// call: if any read fails the whole batch is discarded and attachments
// from prior calls are untouched. A canceled context likewise leaves
// the draft as it was.
func (e *Editor) AddAttachments(ctx context.Context, sources ...Source) error {
	if len(sources) == 0 {
		return nil
	}

	converted := make([]model.Attachment, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			att, err := ingest(src)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrAttachmentRead, src.Name, err)
			}
			converted[i] = att
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Warn("attachment batch discarded", "count", len(sources), "error", err)
		return err
	}
	// A caller torn down mid-read discards the batch instead of
	// applying it to stale state.
	if err := ctx.Err(); err != nil {
		return err
	}

	e.draft.Attachments = append(e.draft.Attachments, converted...)
	return nil
}

// RemoveAttachment drops the attachment with the given id from the
// draft. Removing an unknown id is a no-op.
func (e *Editor) RemoveAttachment(id string) {
	kept := e.draft.Attachments[:0]
	for _, a := range e.draft.Attachments {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	e.draft.Attachments = kept
}

// Submit validates the draft, builds a task, and prepends it to the
// project's list (most recent first). On success the draft is reset.
// No state changes when validation fails.
func (e *Editor) Submit(projectID string) (model.Task, error) {
	title := strings.TrimSpace(e.draft.Title)
	if title == "" {
		return model.Task{}, ErrTitleRequired
	}

	if e.status != nil {
		status, err := e.status(projectID)
		if err != nil {
			return model.Task{}, fmt.Errorf("failed to check hand-off status: %w", err)
		}
		if status.Terminal() {
			return model.Task{}, ErrProjectClosed
		}
	}

	now := time.Now()
	task := model.Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: strings.TrimSpace(e.draft.Description),
		DueDate:     e.draft.DueDate,
		Status:      e.draft.Status,
		Completed:   false,
		Color:       model.NormalizeColor(e.draft.Color),
		Attachments: append([]model.Attachment(nil), e.draft.Attachments...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := e.tasks.Upsert(projectID, func(current []model.Task) []model.Task {
		return append([]model.Task{task}, current...)
	})
	if err != nil {
		return model.Task{}, err
	}

	e.Reset()
	return task, nil
}

// SetTaskStatus changes the informational substatus of a stored task.
// Unknown statuses and unknown task ids are ignored.
func (e *Editor) SetTaskStatus(projectID, taskID string, status model.Status) error {
	if !model.ValidStatus(status) {
		return nil
	}
	return e.tasks.Upsert(projectID, func(current []model.Task) []model.Task {
		for i := range current {
			if current[i].ID == taskID {
				current[i].Status = status
				current[i].UpdatedAt = time.Now()
			}
		}
		return current
	})
}

// ToggleCompleted flips the completion flag that gates hand-off.
func (e *Editor) ToggleCompleted(projectID, taskID string) error {
	return e.tasks.Upsert(projectID, func(current []model.Task) []model.Task {
		for i := range current {
			if current[i].ID == taskID {
				current[i].Completed = !current[i].Completed
				current[i].UpdatedAt = time.Now()
			}
		}
		return current
	})
}

// DeleteTask removes a stored task. When the last task of a project is
// deleted the project's key disappears from storage entirely.
func (e *Editor) DeleteTask(projectID, taskID string) error {
	return e.tasks.Upsert(projectID, func(current []model.Task) []model.Task {
		kept := current[:0]
		for _, t := range current {
			if t.ID != taskID {
				kept = append(kept, t)
			}
		}
		return kept
	})
}

func ingest(src Source) (model.Attachment, error) {
	r, err := src.Open()
	if err != nil {
		return model.Attachment{}, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return model.Attachment{}, err
	}

	mimeType := src.Type
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return model.Attachment{
		ID:      uuid.New().String(),
		Name:    src.Name,
		Size:    int64(len(data)),
		Type:    mimeType,
		DataURL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}
