package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/api"
	"github.com/gartstein/eagle/internal/taskmgr/auth"
	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

// TaskController defines the business logic interface the HTTP handlers
// invoke.
type TaskController interface {
	Login(ctx context.Context, username, password string, companyID int64) (*models.User, error)
	Companies(ctx context.Context) ([]models.Company, error)
	Users(ctx context.Context, caller models.User) ([]models.User, error)
	Tasks(ctx context.Context, caller models.User) ([]models.Task, error)
	Stats(ctx context.Context, caller models.User) (models.TaskStats, error)
	CreateTask(ctx context.Context, caller models.User, input models.TaskInput) (int64, error)
	UpdateTaskStatus(ctx context.Context, caller models.User, taskID int64, status models.Status) error
}

// TaskHandler serves the task API over HTTP.
type TaskHandler struct {
	service   TaskController
	revoker   auth.Revoker
	jwtSecret string
	tokenTTL  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

type HandlerConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	RequestTimeout time.Duration
}

func NewTaskHandler(service TaskController, revoker auth.Revoker, cfg HandlerConfig, logger *zap.Logger) *TaskHandler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &TaskHandler{
		service:   service,
		revoker:   revoker,
		jwtSecret: cfg.JWTSecret,
		tokenTTL:  cfg.TokenTTL,
		timeout:   cfg.RequestTimeout,
		logger:    logger.Named("task_handler"),
	}
}

// Register adds every route of the API to mux.
func (h *TaskHandler) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method string
		path   string
		fn     runtime.HandlerFunc
	}{
		{http.MethodGet, api.PathCompanies, h.ListCompanies},
		{http.MethodPost, api.PathLogin, h.Login},
		{http.MethodPost, api.PathLogout, h.Logout},
		{http.MethodGet, api.PathUsers, h.ListUsers},
		{http.MethodGet, api.PathTasks, h.ListTasks},
		{http.MethodPost, api.PathCreateTask, h.CreateTask},
		{http.MethodPost, api.PathUpdateStatus, h.UpdateTaskStatus},
		{http.MethodGet, api.PathTaskStats, h.TaskStats},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, r.fn); err != nil {
			return err
		}
	}
	return nil
}

func (h *TaskHandler) ListCompanies(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	companies, err := h.service.Companies(ctx)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if companies == nil {
		companies = []models.Company{}
	}
	h.writeJSON(w, http.StatusOK, companies)
}

func (h *TaskHandler) Login(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.LoginResponse{Message: "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, err := h.service.Login(ctx, req.Username, req.Password, int64(req.CompanyID))
	if err != nil {
		if errors.Is(err, e.ErrAuthFailure) {
			h.writeJSON(w, http.StatusOK, api.LoginResponse{Message: api.MessageInvalidCredentials})
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	token, claims, err := auth.GenerateToken(*user, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		h.writeServiceError(w, r, err)
		return
	}

	http.SetCookie(w, auth.SessionCookie(token, claims.ExpiresAt.Time))
	payload := api.UserFromModel(*user)
	h.writeJSON(w, http.StatusOK, api.LoginResponse{Success: true, User: &payload})
}

func (h *TaskHandler) Logout(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeServiceError(w, r, e.ErrUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		h.logger.Error("failed to revoke session", zap.String("jti", claims.ID), zap.Error(err))
		h.writeServiceError(w, r, e.ErrStoreUnavailable)
		return
	}

	http.SetCookie(w, auth.ClearedCookie())
	h.writeJSON(w, http.StatusOK, api.Result{Success: true})
}

func (h *TaskHandler) ListUsers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	users, err := h.service.Users(ctx, caller)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]api.User, 0, len(users))
	for _, u := range users {
		out = append(out, api.UserFromModel(u))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tasks, err := h.service.Tasks(ctx, caller)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]api.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, api.TaskFromModel(t))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.CreateTaskResponse{Message: "invalid request body"})
		return
	}
	input, err := req.Input()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := h.service.CreateTask(ctx, caller, input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.CreateTaskResponse{Success: true, TaskID: id})
}

func (h *TaskHandler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.Result{Message: "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.service.UpdateTaskStatus(ctx, caller, int64(req.TaskID), models.Status(req.Status)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.Result{Success: true})
}

func (h *TaskHandler) TaskStats(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.service.Stats(ctx, caller)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// caller resolves the signed-in user from the claims set by the auth
// middleware.
func (h *TaskHandler) caller(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeServiceError(w, r, e.ErrUnauthorized)
		return models.User{}, false
	}
	user, err := claims.User()
	if err != nil {
		h.writeServiceError(w, r, e.ErrUnauthorized)
		return models.User{}, false
	}
	return user, true
}

func (h *TaskHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	h.writeJSON(w, status, api.Result{Message: message})
}

func (h *TaskHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// mapServiceError converts a service error to an HTTP status and a message
// safe to show to the client.
func mapServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, e.ErrAuthFailure):
		return http.StatusUnauthorized, api.MessageInvalidCredentials
	case errors.Is(err, e.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, e.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, e.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
