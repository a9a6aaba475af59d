package main

import (
	"strings"
	"time"

	"github.com/dori/handoff/internal/model"
)

type quickAddTask struct {
	title       string
	status      model.Status
	color       string
	dueDate     *time.Time
	attachments []string
}

// parseQuickAdd splits a task line into title text and inline tokens:
// !status, #color, due:date, and +path attachments.
func parseQuickAdd(text string) quickAddTask {
	task := quickAddTask{
		status: model.StatusTodo,
		color:  model.DefaultColor(),
	}

	words := strings.Fields(text)
	var titleParts []string

	for _, word := range words {
		switch {
		// Status (!todo, !progress, !done)
		case strings.HasPrefix(word, "!"):
			switch strings.ToLower(strings.TrimPrefix(word, "!")) {
			case "todo", "t":
				task.status = model.StatusTodo
			case "progress", "inprogress", "p":
				task.status = model.StatusInProgress
			case "done", "d":
				task.status = model.StatusDone
			default:
				titleParts = append(titleParts, word)
			}

		// Color tag (#lavender, #mint, ...)
		case strings.HasPrefix(word, "#"):
			name := strings.ToLower(strings.TrimPrefix(word, "#"))
			matched := false
			for _, c := range model.Palette {
				if strings.ToLower(c.Name) == name {
					task.color = c.Value
					matched = true
					break
				}
			}
			if !matched {
				titleParts = append(titleParts, word)
			}

		// Due date (due:tomorrow, due:friday, due:2026-01-15)
		case strings.HasPrefix(strings.ToLower(word), "due:"):
			dateStr := strings.TrimPrefix(strings.ToLower(word), "due:")
			if parsed := parseNaturalDate(dateStr); parsed != nil {
				task.dueDate = parsed
			} else {
				titleParts = append(titleParts, word)
			}

		// Attachment path (+scan.pdf)
		case strings.HasPrefix(word, "+") && len(word) > 1:
			task.attachments = append(task.attachments, strings.TrimPrefix(word, "+"))

		default:
			titleParts = append(titleParts, word)
		}
	}

	task.title = strings.Join(titleParts, " ")
	return task
}

func parseNaturalDate(s string) *time.Time {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())

	switch strings.ToLower(s) {
	case "today":
		return &today
	case "tomorrow", "tom":
		t := today.AddDate(0, 0, 1)
		return &t
	case "monday", "mon":
		return nextWeekday(time.Monday)
	case "tuesday", "tue":
		return nextWeekday(time.Tuesday)
	case "wednesday", "wed":
		return nextWeekday(time.Wednesday)
	case "thursday", "thu":
		return nextWeekday(time.Thursday)
	case "friday", "fri":
		return nextWeekday(time.Friday)
	case "saturday", "sat":
		return nextWeekday(time.Saturday)
	case "sunday", "sun":
		return nextWeekday(time.Sunday)
	case "nextweek":
		t := today.AddDate(0, 0, 7)
		return &t
	}

	// Try parsing as date
	formats := []string{
		"2006-01-02",
		"01/02/2006",
		"01-02-2006",
		"Jan 2",
		"Jan 2, 2006",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			// If no year, use current year
			if t.Year() == 0 {
				t = time.Date(now.Year(), t.Month(), t.Day(), 23, 59, 59, 0, now.Location())
			}
			return &t
		}
	}

	return nil
}

func nextWeekday(day time.Weekday) *time.Time {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())

	daysUntil := int(day - now.Weekday())
	if daysUntil <= 0 {
		daysUntil += 7
	}

	t := today.AddDate(0, 0, daysUntil)
	return &t
}

func formatDueDate(t time.Time) string {
	now := time.Now()

	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today"
	}

	tomorrow := now.AddDate(0, 0, 1)
	if t.Year() == tomorrow.Year() && t.YearDay() == tomorrow.YearDay() {
		return "tomorrow"
	}

	if t.Year() == now.Year() {
		return t.Format("Mon, Jan 2")
	}

	return t.Format("Jan 2, 2006")
}
