// Package db implements the embedded store: a GORM repository over SQLite
// (or PostgreSQL for server deployments) satisfying the persistence
// contract used by the workflow controller and the HTTP service.
package db

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/eagle/internal/taskmgr/access"
	dbmodels "github.com/gartstein/eagle/internal/taskmgr/db/models"
	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	MemoryPath     = ":memory:"
)

// PasswordMatcher compares a stored credential with a candidate password.
type PasswordMatcher func(stored, candidate string) bool

// PlaintextMatcher is an exact, constant-time string comparison.
func PlaintextMatcher(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

type Repository struct {
	db            *gorm.DB
	matchPassword PasswordMatcher
	hashPassword  func(string) (string, error)
	now           func() time.Time
}

type Config struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// MaxRetries bounds OpenWithRetry.
	MaxRetries uint64
	// Verbose enables GORM's SQL logging.
	Verbose bool
}

// Option customizes a Repository.
type Option func(*Repository)

// WithPasswordMatcher replaces the credential comparison.
func WithPasswordMatcher(m PasswordMatcher) Option {
	return func(r *Repository) { r.matchPassword = m }
}

// WithClock replaces the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func NewRepository(cfg *Config, opts ...Option) (*Repository, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.Verbose {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == DriverSQLite && cfg.Path == MemoryPath {
		// every new connection to :memory: is a separate, empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(dbmodels.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return newRepository(db, opts...), nil
}

func newRepository(db *gorm.DB, opts ...Option) *Repository {
	r := &Repository{
		db:            db,
		matchPassword: PlaintextMatcher,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenWithRetry calls NewRepository until it succeeds or cfg.MaxRetries
// attempts with exponential backoff are exhausted.
func OpenWithRetry(cfg *Config, log *zap.Logger, opts ...Option) (*Repository, error) {
	var repo *Repository
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.MaxRetries)

	err := backoff.RetryNotify(func() error {
		var err error
		repo, err = NewRepository(cfg, opts...)
		return err
	}, policy, func(err error, wait time.Duration) {
		log.Warn("database not ready, retrying",
			zap.String("driver", cfg.Driver),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func dialectorFor(cfg *Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		cfg.Driver = DriverSQLite
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite path required")
		}
		if cfg.Path != MemoryPath && !strings.HasPrefix(cfg.Path, "file:") {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(cfg.Path), nil
	case DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", e.ErrStoreUnavailable, op, err)
}

func (r *Repository) ListCompanies(ctx context.Context) ([]models.Company, error) {
	var rows []dbmodels.Company
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, storeErr("list companies", err)
	}

	companies := make([]models.Company, 0, len(rows))
	for _, row := range rows {
		companies = append(companies, models.Company{ID: row.ID, Name: row.Name})
	}
	return companies, nil
}

func (r *Repository) ListUsersByCompany(ctx context.Context, companyID int64) ([]models.User, error) {
	var rows []dbmodels.User
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("list users", err)
	}

	users := make([]models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, userToModel(row, false))
	}
	return users, nil
}

// Authenticate returns the user matching all three fields exactly, or
// ErrAuthFailure.
func (r *Repository) Authenticate(ctx context.Context, username, password string, companyID int64) (*models.User, error) {
	if username == "" || password == "" || companyID <= 0 {
		return nil, e.ErrAuthFailure
	}

	var row dbmodels.User
	err := r.db.WithContext(ctx).
		Where("username = ? AND company_id = ?", username, companyID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, e.ErrAuthFailure
		}
		return nil, storeErr("authenticate", err)
	}

	if !r.matchPassword(row.Password, password) {
		return nil, e.ErrAuthFailure
	}

	user := userToModel(row, false)
	return &user, nil
}

type taskRow struct {
	dbmodels.Task
	AssignedToName string
}

func (r *Repository) companyTasks(ctx context.Context, companyID int64) ([]models.Task, error) {
	var rows []taskRow
	err := r.db.WithContext(ctx).Model(&dbmodels.Task{}).
		Select("tasks.*, COALESCE(users.username, '') AS assigned_to_name").
		Joins("LEFT JOIN users ON users.id = tasks.assigned_to").
		Where("tasks.company_id = ?", companyID).
		Order("tasks.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storeErr("list tasks", err)
	}

	tasks := make([]models.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, taskToModel(row.Task, row.AssignedToName))
	}
	return tasks, nil
}

// ListTasksFor returns the tasks user may see, newest first, with the
// assignee's username joined in.
func (r *Repository) ListTasksFor(ctx context.Context, user models.User) ([]models.Task, error) {
	tasks, err := r.companyTasks(ctx, user.CompanyID)
	if err != nil {
		return nil, err
	}
	return access.VisibleTasks(tasks, user), nil
}

func (r *Repository) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	var row taskRow
	result := r.db.WithContext(ctx).Model(&dbmodels.Task{}).
		Select("tasks.*, COALESCE(users.username, '') AS assigned_to_name").
		Joins("LEFT JOIN users ON users.id = tasks.assigned_to").
		Where("tasks.id = ?", id).
		Limit(1).
		Scan(&row)
	if result.Error != nil {
		return nil, storeErr("get task", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, e.ErrNotFound
	}

	task := taskToModel(row.Task, row.AssignedToName)
	return &task, nil
}

// CreateTask persists a new Pending task and returns its id.
func (r *Repository) CreateTask(ctx context.Context, input models.TaskInput) (int64, error) {
	if err := input.Validate(); err != nil {
		return 0, err
	}
	if input.CompanyID <= 0 {
		return 0, fmt.Errorf("%w: company is required", e.ErrValidation)
	}

	var id int64
	err := r.WithTransaction(ctx, func(tx *Repository) error {
		var err error
		id, err = tx.insertTask(ctx, input)
		return err
	})
	return id, err
}

// insertTask checks the assignee and inserts the row. Run it inside a
// transaction so the membership check and the insert see the same snapshot.
func (r *Repository) insertTask(ctx context.Context, input models.TaskInput) (int64, error) {
	var assignees int64
	err := r.db.WithContext(ctx).Model(&dbmodels.User{}).
		Where("id = ? AND company_id = ?", input.AssignedTo, input.CompanyID).
		Count(&assignees).Error
	if err != nil {
		return 0, storeErr("check assignee", err)
	}
	if assignees == 0 {
		return 0, fmt.Errorf("%w: assignee %d is not a member of company %d",
			e.ErrValidation, input.AssignedTo, input.CompanyID)
	}

	now := r.now().UTC()
	assignedTo := input.AssignedTo
	row := dbmodels.Task{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		AssignedTo:  &assignedTo,
		CompanyID:   input.CompanyID,
		Status:      string(models.StatusPending),
		Priority:    string(input.Priority),
		CreatedAt:   now,
		UpdatedAt:   now,
		Deadline:    input.Deadline,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, storeErr("create task", err)
	}
	return row.ID, nil
}

// UpdateTaskStatus sets the status of an existing task.
func (r *Repository) UpdateTaskStatus(ctx context.Context, taskID int64, status models.Status) error {
	if !models.IsValidStatus(string(status)) {
		return fmt.Errorf("%w: unknown status %q", e.ErrValidation, status)
	}

	result := r.db.WithContext(ctx).Model(&dbmodels.Task{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": r.now().UTC(),
		})
	if result.Error != nil {
		return storeErr("update task status", result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// WithTransaction runs fn against a repository bound to one transaction.
// The transaction repository keeps every option of r.
func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := *r
		txRepo.db = tx
		return fn(&txRepo)
	})
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return storeErr("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func userToModel(row dbmodels.User, withPassword bool) models.User {
	u := models.User{
		ID:        row.ID,
		Username:  row.Username,
		Role:      models.Role(row.Role),
		CompanyID: row.CompanyID,
	}
	if withPassword {
		u.Password = row.Password
	}
	return u
}

func taskToModel(row dbmodels.Task, assigneeName string) models.Task {
	t := models.Task{
		ID:             row.ID,
		Title:          row.Title,
		Description:    row.Description,
		AssignedToName: assigneeName,
		CompanyID:      row.CompanyID,
		Status:         models.Status(row.Status),
		Priority:       models.Priority(row.Priority),
		CreatedAt:      row.CreatedAt,
		Deadline:       row.Deadline,
	}
	if row.AssignedTo != nil {
		t.AssignedTo = *row.AssignedTo
	}
	return t
}
