package model

import (
	"time"
)

// WorkflowStatus represents the hand-off state of a project. The set of
// valid statuses is closed: a project with no workflow entry is Active.
type WorkflowStatus string

const (
	WorkflowActive    WorkflowStatus = "active"
	WorkflowSubmitted WorkflowStatus = "submitted"
	WorkflowApproved  WorkflowStatus = "approved"
	WorkflowRejected  WorkflowStatus = "rejected"
)

// Label returns the human-readable name for a workflow status.
func (s WorkflowStatus) Label() string {
	switch s {
	case WorkflowActive:
		return "Active"
	case WorkflowSubmitted:
		return "Submitted"
	case WorkflowApproved:
		return "Approved"
	case WorkflowRejected:
		return "Rejected"
	default:
		return string(s)
	}
}

// Terminal reports whether no further hand-off transition is available.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowApproved
}

// ProjectMeta is the slice of project data supplied by the external
// project provider. It is displayed and snapshotted, never mutated here.
type ProjectMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"is_active"`
}

// WorkflowEntry is the hand-off status record for one project. Entry
// existence and status are the sole source of truth for hand-off state;
// TasksSnapshot is an audit copy taken at submission and is never read
// back as live state.
type WorkflowEntry struct {
	Status             WorkflowStatus `json:"status"`
	SubmittedAt        time.Time      `json:"submittedAt"`
	SubmittedBy        string         `json:"submittedBy"`
	ProjectID          string         `json:"projectId"`
	ProjectName        string         `json:"projectName,omitempty"`
	ProjectCode        string         `json:"projectCode,omitempty"`
	ProjectDescription string         `json:"projectDescription,omitempty"`
	TasksSnapshot      []Task         `json:"tasksSnapshot,omitempty"`
	ReviewNote         string         `json:"reviewNote,omitempty"`
}

// DeriveStatus returns the effective hand-off status for a possibly
// absent workflow entry. Absence means the project is still active.
func DeriveStatus(entry *WorkflowEntry) WorkflowStatus {
	if entry == nil {
		return WorkflowActive
	}
	return entry.Status
}
