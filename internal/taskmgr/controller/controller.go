// Package controller implements the client-side task workflow: it loads the
// data a signed-in user works with, runs creation and status changes
// through the access rules, and reloads from the store after every
// mutation.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/access"
	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds every store call when no timeout is given.
const DefaultRequestTimeout = 10 * time.Second

// Store is the persistence contract shared by the embedded and the remote
// store.
type Store interface {
	ListCompanies(ctx context.Context) ([]models.Company, error)
	ListUsersByCompany(ctx context.Context, companyID int64) ([]models.User, error)
	Authenticate(ctx context.Context, username, password string, companyID int64) (*models.User, error)
	ListTasksFor(ctx context.Context, user models.User) ([]models.Task, error)
	CreateTask(ctx context.Context, input models.TaskInput) (int64, error)
	UpdateTaskStatus(ctx context.Context, taskID int64, status models.Status) error
}

type State int

const (
	StateUninitialized State = iota
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	default:
		return "uninitialized"
	}
}

// Workflow holds the loaded view of the store. All methods are safe for
// concurrent use; operations are serialized.
type Workflow struct {
	mu      sync.Mutex
	store   Store
	logger  *zap.Logger
	timeout time.Duration

	state     State
	companies []models.Company
	users     []models.User
	tasks     []models.Task
}

func NewWorkflow(store Store, logger *zap.Logger, timeout time.Duration) *Workflow {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Workflow{
		store:   store,
		logger:  logger.Named("workflow"),
		timeout: timeout,
	}
}

// Initialize loads the companies and, when user is non-nil, the tasks the
// user may see and the users of their company. It may be called again at
// any time to refresh.
func (w *Workflow) Initialize(ctx context.Context, user *models.User) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load(ctx, user)
}

// load replaces the in-memory view only when every read succeeded.
func (w *Workflow) load(ctx context.Context, user *models.User) error {
	var companies []models.Company
	err := w.call(ctx, func(ctx context.Context) (err error) {
		companies, err = w.store.ListCompanies(ctx)
		return err
	})
	if err != nil {
		w.logger.Warn("failed to load companies", zap.Error(err))
		return err
	}

	var (
		tasks []models.Task
		users []models.User
	)
	if user != nil {
		err = w.call(ctx, func(ctx context.Context) (err error) {
			tasks, err = w.store.ListTasksFor(ctx, *user)
			return err
		})
		if err != nil {
			w.logger.Warn("failed to load tasks", zap.Int64("user_id", user.ID), zap.Error(err))
			return err
		}

		err = w.call(ctx, func(ctx context.Context) (err error) {
			users, err = w.store.ListUsersByCompany(ctx, user.CompanyID)
			return err
		})
		if err != nil {
			w.logger.Warn("failed to load users", zap.Int64("company_id", user.CompanyID), zap.Error(err))
			return err
		}
	}

	w.companies = companies
	w.tasks = tasks
	w.users = users
	w.state = StateLoaded
	w.logger.Debug("workflow loaded",
		zap.Int("companies", len(companies)),
		zap.Int("tasks", len(tasks)),
		zap.Int("users", len(users)),
	)
	return nil
}

// Create adds a task on behalf of user and reloads. The task belongs to the
// user's company regardless of input.CompanyID.
func (w *Workflow) Create(ctx context.Context, input models.TaskInput, user models.User) (int64, error) {
	if !access.CanCreateTask(user) {
		return 0, fmt.Errorf("%w: role %s cannot create tasks", e.ErrValidation, user.Role)
	}
	input.CompanyID = user.CompanyID
	if err := input.Validate(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var id int64
	err := w.call(ctx, func(ctx context.Context) (err error) {
		id, err = w.store.CreateTask(ctx, input)
		return err
	})
	if err != nil {
		w.logger.Warn("failed to create task", zap.String("title", input.Title), zap.Error(err))
		return 0, err
	}
	w.logger.Info("task created",
		zap.Int64("task_id", id),
		zap.Int64("assigned_to", input.AssignedTo),
		zap.String("priority", string(input.Priority)),
	)

	if err := w.load(ctx, &user); err != nil {
		return id, fmt.Errorf("task %d created but reload failed: %w", id, err)
	}
	return id, nil
}

// SetStatus changes the status of a task and reloads.
func (w *Workflow) SetStatus(ctx context.Context, taskID int64, status models.Status, user models.User) error {
	if !models.IsValidStatus(string(status)) {
		return fmt.Errorf("%w: unknown status %q", e.ErrValidation, status)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	task := models.Task{ID: taskID}
	for _, t := range w.tasks {
		if t.ID == taskID {
			task = t
			break
		}
	}
	if !access.CanChangeStatus(user, task) {
		return e.ErrUnauthorized
	}

	err := w.call(ctx, func(ctx context.Context) error {
		return w.store.UpdateTaskStatus(ctx, taskID, status)
	})
	if err != nil {
		w.logger.Warn("failed to update task status", zap.Int64("task_id", taskID), zap.Error(err))
		return err
	}
	w.logger.Info("task status changed", zap.Int64("task_id", taskID), zap.String("status", string(status)))

	if err := w.load(ctx, &user); err != nil {
		return fmt.Errorf("status of task %d changed but reload failed: %w", taskID, err)
	}
	return nil
}

func (w *Workflow) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return fn(ctx)
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Tasks returns the loaded task list, newest first.
func (w *Workflow) Tasks() []models.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Task(nil), w.tasks...)
}

func (w *Workflow) Companies() []models.Company {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Company(nil), w.companies...)
}

// Users returns the users of the signed-in user's company, the candidates
// for task assignment.
func (w *Workflow) Users() []models.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.User(nil), w.users...)
}

func (w *Workflow) Stats() models.TaskStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return access.Stats(w.tasks)
}
