package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	e "github.com/gartstein/eagle/internal/taskmgr/errors"
)

// Status is the progress state of a task. Any status may follow any other.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Statuses lists the recognized statuses in display order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

// Priority ranks a task.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Priorities lists the recognized priorities from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// IsValidStatus reports whether s is one of the recognized statuses.
func IsValidStatus(s string) bool {
	for _, st := range Statuses {
		if string(st) == s {
			return true
		}
	}
	return false
}

// IsValidPriority reports whether p is one of the recognized priorities.
func IsValidPriority(p string) bool {
	for _, pr := range Priorities {
		if string(pr) == p {
			return true
		}
	}
	return false
}

// ParseStatus converts s into a Status when it is recognized.
func ParseStatus(s string) (Status, bool) {
	if !IsValidStatus(s) {
		return "", false
	}
	return Status(s), true
}

// ParsePriority converts p into a Priority when it is recognized.
func ParsePriority(p string) (Priority, bool) {
	if !IsValidPriority(p) {
		return "", false
	}
	return Priority(p), true
}

// Task defines the domain model for a unit of assigned work.
type Task struct {
	// ID is the unique identifier for the task.
	ID int64 `json:"id"`
	// Title is the non-empty task title.
	Title string `json:"title"`
	// Description is optional free text.
	Description string `json:"description"`
	// AssignedTo references the assignee. Zero means unassigned.
	AssignedTo int64 `json:"assigned_to"`
	// AssignedToName is the assignee's username, joined at read time.
	AssignedToName string `json:"assigned_to_name,omitempty"`
	// CompanyID references the owning company.
	CompanyID int64 `json:"company_id"`
	// Status defaults to Pending.
	Status Status `json:"status"`
	// Priority defaults to Medium.
	Priority Priority `json:"priority"`
	// CreatedAt is set at creation and never changes.
	CreatedAt time.Time `json:"created_at"`
	// Deadline is optional and read-only here.
	Deadline *time.Time `json:"deadline"`
}

// TaskInput carries the fields accepted when creating a task.
type TaskInput struct {
	Title       string
	Description string
	AssignedTo  int64
	CompanyID   int64
	Priority    Priority
	Deadline    *time.Time
}

// Validate checks the required fields and fills in the default priority.
func (in *TaskInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", e.ErrValidation)
	}
	if in.AssignedTo <= 0 {
		return fmt.Errorf("%w: assignee is required", e.ErrValidation)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !IsValidPriority(string(in.Priority)) {
		return fmt.Errorf("%w: unknown priority %q", e.ErrValidation, in.Priority)
	}
	return nil
}

// TaskStats summarizes a task set by status and priority.
type TaskStats struct {
	Total      int              `json:"total"`
	Pending    int              `json:"pending"`
	InProgress int              `json:"in_progress"`
	Completed  int              `json:"completed"`
	ByPriority map[Priority]int `json:"by_priority"`
}

type taskStatsJSON struct {
	Total      int            `json:"total"`
	Pending    int            `json:"pending"`
	InProgress int            `json:"in_progress"`
	Completed  int            `json:"completed"`
	ByPriority map[string]int `json:"by_priority"`
}

// MarshalJSON writes by_priority with lowercase keys ("low", "critical").
func (s TaskStats) MarshalJSON() ([]byte, error) {
	out := taskStatsJSON{
		Total:      s.Total,
		Pending:    s.Pending,
		InProgress: s.InProgress,
		Completed:  s.Completed,
		ByPriority: make(map[string]int, len(s.ByPriority)),
	}
	for p, n := range s.ByPriority {
		out.ByPriority[strings.ToLower(string(p))] = n
	}
	return json.Marshal(out)
}

// UnmarshalJSON maps by_priority keys back to Priority values in any case.
func (s *TaskStats) UnmarshalJSON(data []byte) error {
	var in taskStatsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = TaskStats{
		Total:      in.Total,
		Pending:    in.Pending,
		InProgress: in.InProgress,
		Completed:  in.Completed,
		ByPriority: make(map[Priority]int, len(in.ByPriority)),
	}
	for key, n := range in.ByPriority {
		s.ByPriority[canonicalPriority(key)] = n
	}
	return nil
}

func canonicalPriority(key string) Priority {
	for _, p := range Priorities {
		if strings.EqualFold(string(p), key) {
			return p
		}
	}
	return Priority(key)
}
