package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	require.Equal(t, WorkflowActive, DeriveStatus(nil))
	require.Equal(t, WorkflowSubmitted, DeriveStatus(&WorkflowEntry{Status: WorkflowSubmitted}))
	require.Equal(t, WorkflowRejected, DeriveStatus(&WorkflowEntry{Status: WorkflowRejected}))
}

func TestTerminal(t *testing.T) {
	require.True(t, WorkflowApproved.Terminal())
	require.False(t, WorkflowActive.Terminal())
	require.False(t, WorkflowSubmitted.Terminal())
	require.False(t, WorkflowRejected.Terminal())
}

func TestCompletedCount(t *testing.T) {
	require.Equal(t, 0, CompletedCount(nil))
	tasks := []Task{{Completed: true}, {}, {Completed: true}}
	require.Equal(t, 2, CompletedCount(tasks))
	require.LessOrEqual(t, CompletedCount(tasks), len(tasks))
}

func TestNormalizeColor(t *testing.T) {
	require.Equal(t, DefaultColor(), NormalizeColor(""))
	require.Equal(t, DefaultColor(), NormalizeColor("#000000"))
	for _, c := range Palette {
		require.Equal(t, c.Value, NormalizeColor(c.Value))
	}
}

func TestIsOverdue(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	require.False(t, (&Task{}).IsOverdue())
	require.True(t, (&Task{DueDate: &past}).IsOverdue())
	require.False(t, (&Task{DueDate: &past, Completed: true}).IsOverdue())
	require.False(t, (&Task{DueDate: &future}).IsOverdue())
}

func TestValidStatus(t *testing.T) {
	require.True(t, ValidStatus(StatusTodo))
	require.True(t, ValidStatus(StatusInProgress))
	require.True(t, ValidStatus(StatusDone))
	require.False(t, ValidStatus("archived"))
}
