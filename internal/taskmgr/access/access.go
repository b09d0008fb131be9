// Package access holds the role-based rules deciding what a user may see
// and do. Every store implementation and the HTTP service delegate here so
// the visibility policy exists exactly once.
package access

import (
	"sort"

	"github.com/gartstein/eagle/internal/taskmgr/models"
)

// VisibleTasks filters tasks down to what user may see, newest first.
// Admins see every task of their company; other roles see only the tasks
// assigned to them within their company. Tasks sharing a creation time keep
// their input order. The input slice is not modified.
func VisibleTasks(tasks []models.Task, user models.User) []models.Task {
	visible := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.CompanyID != user.CompanyID {
			continue
		}
		if !user.IsAdmin() && t.AssignedTo != user.ID {
			continue
		}
		visible = append(visible, t)
	}

	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedAt.After(visible[j].CreatedAt)
	})
	return visible
}

// CanCreateTask reports whether user may create tasks.
func CanCreateTask(user models.User) bool {
	return user.Role == models.RoleAdmin
}

// CanChangeStatus reports whether user may change the status of task.
// Any authenticated user qualifies, including users the task is not
// assigned to.
func CanChangeStatus(user models.User, _ models.Task) bool {
	return user.ID != 0
}
