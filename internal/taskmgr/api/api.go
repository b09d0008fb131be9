// Package api defines the JSON bodies exchanged between the task server
// and its clients.
package api

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/models"
)

const (
	PathLogin        = "/login"
	PathLogout       = "/logout"
	PathCompanies    = "/api/companies"
	PathUsers        = "/api/users"
	PathTasks        = "/api/tasks"
	PathCreateTask   = "/api/create_task"
	PathUpdateStatus = "/api/update_task_status"
	PathTaskStats    = "/api/task_stats"
)

// MessageInvalidCredentials is the login failure message.
const MessageInvalidCredentials = "Invalid credentials"

// ID is a numeric identifier in a request body. Browsers post form
// values, so both 7 and "7" are accepted.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if string(raw) == "null" {
		return nil
	}
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = bytes.TrimSpace(raw[1 : len(raw)-1])
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid id %s", e.ErrValidation, data)
	}
	*id = ID(n)
	return nil
}

type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	CompanyID ID     `json:"company_id"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	User    *User  `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CompanyID int64  `json:"company_id"`
}

func UserFromModel(u models.User) User {
	return User{ID: u.ID, Username: u.Username, Role: string(u.Role), CompanyID: u.CompanyID}
}

func (u User) Model() models.User {
	return models.User{ID: u.ID, Username: u.Username, Role: models.Role(u.Role), CompanyID: u.CompanyID}
}

// Task is the task payload. It carries no assignee name; clients join it
// from the user list.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssignedTo  int64      `json:"assigned_to"`
	CompanyID   int64      `json:"company_id"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	Deadline    *time.Time `json:"deadline"`
}

func TaskFromModel(t models.Task) Task {
	return Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		AssignedTo:  t.AssignedTo,
		CompanyID:   t.CompanyID,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatedAt:   t.CreatedAt,
		Deadline:    t.Deadline,
	}
}

func (t Task) Model() models.Task {
	return models.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		AssignedTo:  t.AssignedTo,
		CompanyID:   t.CompanyID,
		Status:      models.Status(t.Status),
		Priority:    models.Priority(t.Priority),
		CreatedAt:   t.CreatedAt,
		Deadline:    t.Deadline,
	}
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  ID     `json:"assigned_to"`
	Priority    string `json:"priority"`
	// Deadline is RFC 3339 or a plain YYYY-MM-DD date.
	Deadline string `json:"deadline,omitempty"`
}

// Input converts the request into a creation form.
func (r CreateTaskRequest) Input() (models.TaskInput, error) {
	in := models.TaskInput{
		Title:       r.Title,
		Description: r.Description,
		AssignedTo:  int64(r.AssignedTo),
		Priority:    models.Priority(r.Priority),
	}
	if r.Deadline != "" {
		d, err := ParseDeadline(r.Deadline)
		if err != nil {
			return in, err
		}
		in.Deadline = &d
	}
	return in, nil
}

// FormatDeadline renders d the way ParseDeadline reads it.
func FormatDeadline(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.UTC().Format(time.RFC3339)
}

func ParseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid deadline %q", e.ErrValidation, s)
}

type CreateTaskResponse struct {
	Success bool   `json:"success"`
	TaskID  int64  `json:"task_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type UpdateStatusRequest struct {
	TaskID ID     `json:"task_id"`
	Status string `json:"status"`
}

// Result is the generic success or error body.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
