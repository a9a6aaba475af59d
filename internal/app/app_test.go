package app

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dori/handoff/internal/model"
	"github.com/dori/handoff/internal/workflow"
)

func openTestApp(t *testing.T, dir, backend, user string) *App {
	t.Helper()
	a, err := New(&Config{
		DataDir: dir,
		Backend: backend,
		UserID:  user,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// Full pass over the file backend: create tasks, complete them, hand
// the project off, then reopen the directory as a second session and
// observe the same state.
func TestFileBackendEndToEnd(t *testing.T) {
	dir := t.TempDir()
	a := openTestApp(t, dir, BackendFile, "u1")

	a.Editor.SetTitle("Collect receipts")
	first, err := a.Editor.Submit("p1")
	require.NoError(t, err)
	a.Editor.SetTitle("Reconcile budget")
	second, err := a.Editor.Submit("p1")
	require.NoError(t, err)

	ok, err := a.Controller.CanSubmit("p1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, a.Editor.ToggleCompleted("p1", first.ID))
	require.NoError(t, a.Editor.ToggleCompleted("p1", second.ID))

	ok, err = a.Controller.CanSubmit("p1")
	require.NoError(t, err)
	require.True(t, ok)

	entry, err := a.Controller.Submit("p1", "u1", model.ProjectMeta{ID: "p1", Name: "Refit"})
	require.NoError(t, err)
	require.Len(t, entry.TasksSnapshot, 2)

	// Second session over the same data directory.
	b := openTestApp(t, dir, BackendFile, "u1")

	status, err := b.Controller.EffectiveStatus("p1")
	require.NoError(t, err)
	require.Equal(t, model.WorkflowSubmitted, status)

	tasks, err := b.Tasks.Tasks("p1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	_, err = b.Controller.Submit("p1", "u1", model.ProjectMeta{ID: "p1"})
	require.ErrorIs(t, err, workflow.ErrGuardViolation)
}

func TestSQLiteBackendEndToEnd(t *testing.T) {
	dir := t.TempDir()
	a := openTestApp(t, dir, BackendSQLite, "u1")

	a.Editor.SetTitle("Single task")
	task, err := a.Editor.Submit("p1")
	require.NoError(t, err)
	require.NoError(t, a.Editor.ToggleCompleted("p1", task.ID))

	entry, err := a.Controller.Submit("p1", "u1", model.ProjectMeta{ID: "p1"})
	require.NoError(t, err)
	require.Equal(t, model.WorkflowSubmitted, entry.Status)

	b := openTestApp(t, dir, BackendSQLite, "u1")
	status, err := b.Controller.EffectiveStatus("p1")
	require.NoError(t, err)
	require.Equal(t, model.WorkflowSubmitted, status)
}

func TestUnknownBackend(t *testing.T) {
	_, err := New(&Config{DataDir: t.TempDir(), Backend: "redis"})
	require.Error(t, err)
}
