// Package service implements the server-side business logic behind the
// HTTP API: every request runs as the signed-in caller, through the access
// rules, and task changes are announced as events.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gartstein/eagle/internal/taskmgr/access"
	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/events"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"go.uber.org/zap"
)

type EventProducer interface {
	Produce(event events.Event)
}

// Repository defines the storage the service runs on.
type Repository interface {
	ListCompanies(ctx context.Context) ([]models.Company, error)
	ListUsersByCompany(ctx context.Context, companyID int64) ([]models.User, error)
	Authenticate(ctx context.Context, username, password string, companyID int64) (*models.User, error)
	ListTasksFor(ctx context.Context, user models.User) ([]models.Task, error)
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	CreateTask(ctx context.Context, input models.TaskInput) (int64, error)
	UpdateTaskStatus(ctx context.Context, taskID int64, status models.Status) error
}

type TaskService struct {
	repo     Repository
	producer EventProducer
	logger   *zap.Logger
}

func NewTaskService(repo Repository, producer EventProducer, logger *zap.Logger) *TaskService {
	return &TaskService{
		repo:     repo,
		producer: producer,
		logger:   logger.Named("task_service"),
	}
}

func (s *TaskService) Login(ctx context.Context, username, password string, companyID int64) (*models.User, error) {
	user, err := s.repo.Authenticate(ctx, username, password, companyID)
	if err != nil {
		if errors.Is(err, e.ErrAuthFailure) {
			s.logger.Info("login rejected", zap.String("username", username), zap.Int64("company_id", companyID))
			return nil, err
		}
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	s.logger.Info("login accepted", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

func (s *TaskService) Companies(ctx context.Context) ([]models.Company, error) {
	return s.repo.ListCompanies(ctx)
}

// Users lists the caller's colleagues.
func (s *TaskService) Users(ctx context.Context, caller models.User) ([]models.User, error) {
	return s.repo.ListUsersByCompany(ctx, caller.CompanyID)
}

// Tasks lists what the caller may see, newest first.
func (s *TaskService) Tasks(ctx context.Context, caller models.User) ([]models.Task, error) {
	return s.repo.ListTasksFor(ctx, caller)
}

func (s *TaskService) Stats(ctx context.Context, caller models.User) (models.TaskStats, error) {
	tasks, err := s.repo.ListTasksFor(ctx, caller)
	if err != nil {
		return models.TaskStats{}, err
	}
	return access.Stats(tasks), nil
}

// CreateTask adds a task to the caller's company and notifies the assignee.
func (s *TaskService) CreateTask(ctx context.Context, caller models.User, input models.TaskInput) (int64, error) {
	if !access.CanCreateTask(caller) {
		return 0, fmt.Errorf("%w: only administrators can create tasks", e.ErrValidation)
	}
	input.CompanyID = caller.CompanyID
	if err := input.Validate(); err != nil {
		return 0, err
	}

	id, err := s.repo.CreateTask(ctx, input)
	if err != nil {
		return 0, err
	}

	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get task for event",
			zap.Error(err),
			zap.Int64("task_id", id),
		)
		return id, nil
	}
	go func() {
		s.producer.Produce(events.NewEvent(events.TaskAssigned, *task, task.AssignedTo,
			"New task assigned: "+task.Title))
	}()
	return id, nil
}

// UpdateTaskStatus changes the status of a task. The assignee is notified
// when someone else made the change.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, caller models.User, taskID int64, status models.Status) error {
	if !models.IsValidStatus(string(status)) {
		return fmt.Errorf("%w: unknown status %q", e.ErrValidation, status)
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !access.CanChangeStatus(caller, *task) {
		return e.ErrUnauthorized
	}
	// tasks of other companies are invisible
	if task.CompanyID != caller.CompanyID {
		return fmt.Errorf("%w: task %d", e.ErrNotFound, taskID)
	}

	if err := s.repo.UpdateTaskStatus(ctx, taskID, status); err != nil {
		return err
	}
	s.logger.Info("task status changed",
		zap.Int64("task_id", taskID),
		zap.Int64("by", caller.ID),
		zap.String("from", string(task.Status)),
		zap.String("to", string(status)),
	)

	if task.AssignedTo != 0 && task.AssignedTo != caller.ID {
		task.Status = status
		updated := *task
		go func() {
			s.producer.Produce(events.NewEvent(events.TaskStatusChanged, updated, updated.AssignedTo,
				fmt.Sprintf("Task %q is now %s", updated.Title, updated.Status)))
		}()
	}
	return nil
}
