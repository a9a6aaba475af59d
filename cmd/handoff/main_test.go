package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dori/handoff/internal/model"
)

func TestTaskLineShowsColorName(t *testing.T) {
	line := taskLine(model.Task{
		Title:  "Collect receipts",
		Status: model.StatusTodo,
		Color:  model.Palette[0].Value,
	})

	require.Contains(t, line, "[ ]")
	require.Contains(t, line, "Collect receipts")
	require.Contains(t, line, "To do")
	require.Contains(t, line, "Lavender")
}

func TestTaskLineCompleted(t *testing.T) {
	due := time.Now().Add(48 * time.Hour)
	line := taskLine(model.Task{
		Title:     "File report",
		Status:    model.StatusDone,
		Completed: true,
		DueDate:   &due,
	})

	require.Contains(t, line, "[x]")
	require.Contains(t, line, "File report")
	require.Contains(t, line, "due ")
}

func TestDueReminders(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	today := time.Now().Add(time.Minute)
	nextWeek := time.Now().AddDate(0, 0, 7)

	byProject := map[string][]model.Task{
		"p1": {
			{ID: "overdue", Title: "Overdue", DueDate: &past},
			{ID: "done", Title: "Done anyway", DueDate: &past, Completed: true},
			{ID: "later", Title: "Later", DueDate: &nextWeek},
			{ID: "undated", Title: "No due date"},
		},
		"p2": {
			{ID: "today", Title: "Today", DueDate: &today},
		},
	}

	due := dueReminders(byProject)
	ids := make([]string, len(due))
	for i, task := range due {
		ids[i] = task.ID
	}
	require.ElementsMatch(t, []string{"overdue", "today"}, ids)
}

func TestDueRemindersEmpty(t *testing.T) {
	require.Empty(t, dueReminders(nil))
	require.Empty(t, dueReminders(map[string][]model.Task{"p1": {}}))
}
