package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dori/handoff/internal/app"
	"github.com/dori/handoff/internal/editor"
	"github.com/dori/handoff/internal/model"
	"github.com/dori/handoff/internal/notify"
)

var (
	version = "0.1.0"
)

var (
	badgeActive    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	badgeSubmitted = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	badgeApproved  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	badgeRejected  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	doneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		return
	}

	var err error
	switch os.Args[1] {
	case "add":
		err = handleAdd(os.Args[2:])
	case "tasks":
		err = handleTasks(os.Args[2:])
	case "done":
		err = handleDone(os.Args[2:])
	case "mark":
		err = handleMark(os.Args[2:])
	case "rm":
		err = handleRemove(os.Args[2:])
	case "status":
		err = handleStatus(os.Args[2:])
	case "submit":
		err = handleSubmit(os.Args[2:])
	case "watch":
		err = handleWatch(os.Args[2:])
	case "version":
		fmt.Printf("handoff v%s\n", version)
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	help := `handoff - project task tracking and hand-off workflow

Usage:
  handoff add <project-id> <task text>    Add a task to a project
  handoff tasks <project-id>              List a project's tasks
  handoff done <project-id> <task-id>     Toggle a task's completion
  handoff mark <project-id> <task-id> <todo|in_progress|done>
                                          Change a task's substatus
  handoff rm <project-id> <task-id>       Delete a task
  handoff status [project-id]             Show hand-off status and progress
  handoff submit <project-id>             Hand the project off for review
  handoff watch                           Watch for hand-off changes
  handoff version                         Show version

Quick Add Syntax:
  handoff add proj-7 "Collect receipts due:friday !progress #mint +scan.pdf"

  Status:     !todo !progress !done
  Due date:   due:tomorrow due:friday due:2026-01-15
  Color:      #lavender #mint #peach #rose #sky
  Attachment: +path/to/file

Common flags (before positional arguments):
  -data-dir <dir>   Data directory (default ~/.local/share/handoff)
  -store <name>     Storage backend: file or sqlite (default file)
  -user <id>        Acting user id (default $HANDOFF_USER or "local")

Submit flags:
  -name, -code, -desc   Project metadata recorded in the hand-off entry`

	fmt.Println(help)
}

type commonFlags struct {
	dataDir string
	backend string
	user    string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	user := os.Getenv("HANDOFF_USER")
	if user == "" {
		user = "local"
	}
	cf := &commonFlags{}
	fs.StringVar(&cf.dataDir, "data-dir", app.DefaultDataDir(), "data directory")
	fs.StringVar(&cf.backend, "store", app.BackendFile, "storage backend (file or sqlite)")
	fs.StringVar(&cf.user, "user", user, "acting user id")
	return cf
}

func openApp(cf *commonFlags) (*app.App, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return app.New(&app.Config{
		DataDir: cf.dataDir,
		Backend: cf.backend,
		UserID:  cf.user,
		Logger:  logger,
	})
}

func handleAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("usage: handoff add <project-id> <task text>")
	}
	projectID := rest[0]

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	parsed := parseQuickAdd(strings.Join(rest[1:], " "))
	a.Editor.SetTitle(parsed.title)
	a.Editor.SetStatus(parsed.status)
	a.Editor.SetColor(parsed.color)
	a.Editor.SetDueDate(parsed.dueDate)

	if len(parsed.attachments) > 0 {
		sources := make([]editor.Source, len(parsed.attachments))
		for i, path := range parsed.attachments {
			sources[i] = editor.FileSource(path)
		}
		if err := a.Editor.AddAttachments(context.Background(), sources...); err != nil {
			return err
		}
	}

	task, err := a.Editor.Submit(projectID)
	if err != nil {
		return err
	}

	fmt.Printf("Created: %s\n", task.Title)
	if task.DueDate != nil {
		fmt.Printf("Due: %s\n", formatDueDate(*task.DueDate))
	}
	if task.Status != model.StatusTodo {
		fmt.Printf("Status: %s\n", task.Status.Label())
	}
	if len(task.Attachments) > 0 {
		names := make([]string, len(task.Attachments))
		for i, att := range task.Attachments {
			names[i] = fmt.Sprintf("%s (%s)", att.Name, formatBytes(att.Size))
		}
		fmt.Printf("Attachments: %s\n", strings.Join(names, ", "))
	}
	return nil
}

func handleTasks(args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: handoff tasks <project-id>")
	}
	projectID := fs.Arg(0)

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.Tasks.Tasks(projectID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks yet.")
		return nil
	}

	for _, t := range tasks {
		fmt.Println(taskLine(t))
		fmt.Println(dimStyle.Render("    id: " + t.ID))
	}
	completed := model.CompletedCount(tasks)
	fmt.Printf("\n%d/%d complete\n", completed, len(tasks))
	return nil
}

func handleDone(args []string) error {
	fs := flag.NewFlagSet("done", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: handoff done <project-id> <task-id>")
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Editor.ToggleCompleted(fs.Arg(0), fs.Arg(1))
}

func handleMark(args []string) error {
	fs := flag.NewFlagSet("mark", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 3 {
		return fmt.Errorf("usage: handoff mark <project-id> <task-id> <todo|in_progress|done>")
	}
	status := model.Status(fs.Arg(2))
	if !model.ValidStatus(status) {
		return fmt.Errorf("unknown status %q", fs.Arg(2))
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Editor.SetTaskStatus(fs.Arg(0), fs.Arg(1), status)
}

func handleRemove(args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: handoff rm <project-id> <task-id>")
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Editor.DeleteTask(fs.Arg(0), fs.Arg(1))
}

func handleStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	if fs.NArg() > 0 {
		return printProjectStatus(a, fs.Arg(0))
	}

	entries, err := a.Workflows.All()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No projects handed off yet.")
		return nil
	}
	for id := range entries {
		if err := printProjectStatus(a, id); err != nil {
			return err
		}
	}
	return nil
}

func printProjectStatus(a *app.App, projectID string) error {
	status, err := a.Controller.EffectiveStatus(projectID)
	if err != nil {
		return err
	}
	completed, total, err := a.Controller.Progress(projectID)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("%s  %s  %d/%d tasks complete",
		projectID, renderStatus(status), completed, total)

	entry, err := a.Workflows.Entry(projectID)
	if err != nil {
		return err
	}
	if entry != nil {
		line += dimStyle.Render("  submitted " + entry.SubmittedAt.Format("Jan 2 15:04") + " by " + entry.SubmittedBy)
		if entry.ReviewNote != "" {
			line += "\n    review note: " + entry.ReviewNote
		}
	}
	fmt.Println(line)
	return nil
}

func handleSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	cf := addCommonFlags(fs)
	name := fs.String("name", "", "project name")
	code := fs.String("code", "", "project code")
	desc := fs.String("desc", "", "project description")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: handoff submit <project-id>")
	}
	projectID := fs.Arg(0)

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.Controller.CanSubmit(projectID)
	if err != nil {
		return err
	}
	if !ok {
		status, _ := a.Controller.EffectiveStatus(projectID)
		completed, total, _ := a.Controller.Progress(projectID)
		return fmt.Errorf("project is not submittable (%s, %d/%d tasks complete)",
			status.Label(), completed, total)
	}

	entry, err := a.Controller.Submit(projectID, cf.user, model.ProjectMeta{
		ID:          projectID,
		Name:        *name,
		Code:        *code,
		Description: *desc,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Submitted %s for review (%d tasks)\n", projectID, len(entry.TasksSnapshot))
	return nil
}

func handleWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cf := addCommonFlags(fs)
	desktop := fs.Bool("notify", false, "send desktop notifications")
	fs.Parse(args)

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	notifier := notify.NewNotifier()
	notifier.SetEnabled(*desktop)

	// Nag once on startup about the user's own tasks that are due.
	byProject, err := a.Tasks.Load()
	if err != nil {
		return err
	}
	for _, t := range dueReminders(byProject) {
		fmt.Printf("due: %s (%s)\n", t.Title, formatDueDate(*t.DueDate))
		notifier.SendTaskDue(t.Title, time.Until(*t.DueDate))
	}

	last := map[string]model.WorkflowStatus{}
	entries, err := a.Workflows.All()
	if err != nil {
		return err
	}
	for id, entry := range entries {
		last[id] = entry.Status
	}

	changes := make(chan struct{}, 1)
	cancel, err := a.Workflows.Watch(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer cancel()

	fmt.Println("Watching for hand-off changes. Ctrl-C to stop.")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigs:
			return nil
		case <-changes:
			// The notification only says something changed; re-read
			// the store for current state.
			entries, err := a.Workflows.All()
			if err != nil {
				return err
			}
			for id, entry := range entries {
				if last[id] == entry.Status {
					continue
				}
				last[id] = entry.Status
				name := entry.ProjectName
				if name == "" {
					name = id
				}
				fmt.Printf("%s  %s → %s\n", time.Now().Format("15:04:05"), name, renderStatus(entry.Status))
				notifier.SendWorkflowChange(name, entry.Status)
			}
			for id := range last {
				if _, ok := entries[id]; !ok {
					delete(last, id)
					fmt.Printf("%s  %s → %s\n", time.Now().Format("15:04:05"), id, renderStatus(model.WorkflowActive))
					notifier.SendSimple(id, "Hand-off entry cleared; project is active again")
				}
			}
		}
	}
}

func taskLine(t model.Task) string {
	box := "[ ]"
	title := t.Title
	if t.Completed {
		box = doneStyle.Render("[x]")
		title = dimStyle.Render(title)
	}
	line := fmt.Sprintf("%s %s  %s", box, title, dimStyle.Render(t.Status.Label()))
	if t.Color != "" {
		line += dimStyle.Render("  " + model.ColorName(t.Color))
	}
	if t.DueDate != nil {
		line += dimStyle.Render("  due " + formatDueDate(*t.DueDate))
	}
	return line
}

// dueReminders returns the incomplete tasks worth nagging about:
// overdue or due today.
func dueReminders(byProject map[string][]model.Task) []model.Task {
	var due []model.Task
	for _, tasks := range byProject {
		for _, t := range tasks {
			if t.Completed {
				continue
			}
			if t.IsOverdue() || t.IsDueToday() {
				due = append(due, t)
			}
		}
	}
	return due
}

func renderStatus(status model.WorkflowStatus) string {
	switch status {
	case model.WorkflowSubmitted:
		return badgeSubmitted.Render(status.Label())
	case model.WorkflowApproved:
		return badgeApproved.Render(status.Label())
	case model.WorkflowRejected:
		return badgeRejected.Render(status.Label())
	default:
		return badgeActive.Render(status.Label())
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
