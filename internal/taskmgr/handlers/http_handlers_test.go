package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/api"
	"github.com/gartstein/eagle/internal/taskmgr/auth"
	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "secret"

var (
	admin    = models.User{ID: 1, Username: "admin", Role: models.RoleAdmin, CompanyID: 1}
	employee = models.User{ID: 3, Username: "employee", Role: models.RoleEmployee, CompanyID: 1}
)

// MockController implements TaskController for testing.
type MockController struct {
	login            func(context.Context, string, string, int64) (*models.User, error)
	companies        func(context.Context) ([]models.Company, error)
	users            func(context.Context, models.User) ([]models.User, error)
	tasks            func(context.Context, models.User) ([]models.Task, error)
	stats            func(context.Context, models.User) (models.TaskStats, error)
	createTask       func(context.Context, models.User, models.TaskInput) (int64, error)
	updateTaskStatus func(context.Context, models.User, int64, models.Status) error
}

func (m *MockController) Login(ctx context.Context, username, password string, companyID int64) (*models.User, error) {
	return m.login(ctx, username, password, companyID)
}

func (m *MockController) Companies(ctx context.Context) ([]models.Company, error) {
	return m.companies(ctx)
}

func (m *MockController) Users(ctx context.Context, caller models.User) ([]models.User, error) {
	return m.users(ctx, caller)
}

func (m *MockController) Tasks(ctx context.Context, caller models.User) ([]models.Task, error) {
	return m.tasks(ctx, caller)
}

func (m *MockController) Stats(ctx context.Context, caller models.User) (models.TaskStats, error) {
	return m.stats(ctx, caller)
}

func (m *MockController) CreateTask(ctx context.Context, caller models.User, input models.TaskInput) (int64, error) {
	return m.createTask(ctx, caller, input)
}

func (m *MockController) UpdateTaskStatus(ctx context.Context, caller models.User, taskID int64, status models.Status) error {
	return m.updateTaskStatus(ctx, caller, taskID, status)
}

func newTestAPI(t *testing.T, ctrl *MockController) http.Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	revoker := auth.NewMemoryRevoker()
	h := NewTaskHandler(ctrl, revoker, HandlerConfig{JWTSecret: testSecret, TokenTTL: time.Hour}, logger)

	mux := runtime.NewServeMux()
	require.NoError(t, h.Register(mux))
	return requestLogger(logger)(auth.HTTPMiddleware(mux, testSecret, revoker, logger))
}

func sessionCookie(t *testing.T, user models.User) *http.Cookie {
	t.Helper()
	token, _, err := auth.GenerateToken(user, testSecret, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListCompanies_Public(t *testing.T) {
	h := newTestAPI(t, &MockController{
		companies: func(context.Context) ([]models.Company, error) {
			return []models.Company{{ID: 1, Name: "TechCorp"}}, nil
		},
	})

	rec := do(t, h, http.MethodGet, api.PathCompanies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1,"name":"TechCorp"}]`, rec.Body.String())
}

func TestLogin(t *testing.T) {
	ctrl := &MockController{
		login: func(_ context.Context, username, password string, companyID int64) (*models.User, error) {
			if username == "admin" && password == "admin123" && companyID == 1 {
				u := admin
				return &u, nil
			}
			return nil, e.ErrAuthFailure
		},
	}
	h := newTestAPI(t, ctrl)

	t.Run("success", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, api.PathLogin, api.LoginRequest{Username: "admin", Password: "admin123", CompanyID: 1})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp api.LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		require.NotNil(t, resp.User)
		assert.Equal(t, "Admin", resp.User.Role)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.CookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, api.PathLogin, api.LoginRequest{Username: "admin", Password: "x", CompanyID: 1})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":false,"message":"Invalid credentials"}`, rec.Body.String())
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("bad body", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, api.PathLogin, "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := newTestAPI(t, &MockController{})

	for _, path := range []string{api.PathUsers, api.PathTasks, api.PathTaskStats} {
		rec := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := do(t, h, http.MethodPost, api.PathCreateTask, api.CreateTaskRequest{Title: "t", AssignedTo: 3})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListTasks(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var seenCaller models.User
	h := newTestAPI(t, &MockController{
		tasks: func(_ context.Context, caller models.User) ([]models.Task, error) {
			seenCaller = caller
			return []models.Task{{
				ID: 1, Title: "Audit", AssignedTo: 3, AssignedToName: "employee", CompanyID: 1,
				Status: models.StatusPending, Priority: models.PriorityHigh, CreatedAt: created,
			}}, nil
		},
	})

	rec := do(t, h, http.MethodGet, api.PathTasks, nil, sessionCookie(t, employee))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, employee, seenCaller, "caller comes from the session token")

	assert.NotContains(t, rec.Body.String(), "assigned_to_name")
	var tasks []api.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "High", tasks[0].Priority)
	assert.Nil(t, tasks[0].Deadline)
}

func TestCreateTask(t *testing.T) {
	var got models.TaskInput
	h := newTestAPI(t, &MockController{
		createTask: func(_ context.Context, caller models.User, in models.TaskInput) (int64, error) {
			if !caller.IsAdmin() {
				return 0, fmt.Errorf("%w: only administrators can create tasks", e.ErrValidation)
			}
			got = in
			return 9, nil
		},
	})

	rec := do(t, h, http.MethodPost, api.PathCreateTask,
		api.CreateTaskRequest{Title: "Audit", AssignedTo: 3, Priority: "Low", Deadline: "2024-06-30"},
		sessionCookie(t, admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"task_id":9}`, rec.Body.String())
	assert.Equal(t, models.PriorityLow, got.Priority)
	require.NotNil(t, got.Deadline)

	rec = do(t, h, http.MethodPost, api.PathCreateTask, api.CreateTaskRequest{Title: "Audit", AssignedTo: 3}, sessionCookie(t, employee))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, api.PathCreateTask,
		api.CreateTaskRequest{Title: "Audit", AssignedTo: 3, Deadline: "someday"}, sessionCookie(t, admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTaskStatus_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ok", nil, http.StatusOK},
		{"validation", e.ErrValidation, http.StatusBadRequest},
		{"not found", e.ErrNotFound, http.StatusNotFound},
		{"store down", fmt.Errorf("%w: db closed", e.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAPI(t, &MockController{
				updateTaskStatus: func(context.Context, models.User, int64, models.Status) error {
					return tt.err
				},
			})
			rec := do(t, h, http.MethodPost, api.PathUpdateStatus,
				api.UpdateStatusRequest{TaskID: 1, Status: "Completed"}, sessionCookie(t, employee))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestStringIDsInRequestBodies(t *testing.T) {
	var (
		gotCompany  int64
		gotAssignee int64
		gotTask     int64
	)
	h := newTestAPI(t, &MockController{
		login: func(_ context.Context, _, _ string, companyID int64) (*models.User, error) {
			gotCompany = companyID
			u := admin
			return &u, nil
		},
		createTask: func(_ context.Context, _ models.User, in models.TaskInput) (int64, error) {
			gotAssignee = in.AssignedTo
			return 4, nil
		},
		updateTaskStatus: func(_ context.Context, _ models.User, taskID int64, _ models.Status) error {
			gotTask = taskID
			return nil
		},
	})

	rec := do(t, h, http.MethodPost, api.PathLogin, `{"username":"admin","password":"admin123","company_id":"1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gotCompany)

	rec = do(t, h, http.MethodPost, api.PathCreateTask,
		`{"title":"Audit","description":"","assigned_to":"2","priority":"Low"}`, sessionCookie(t, admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"task_id":4}`, rec.Body.String())
	assert.Equal(t, int64(2), gotAssignee)

	rec = do(t, h, http.MethodPost, api.PathUpdateStatus, `{"task_id":"1","status":"Completed"}`, sessionCookie(t, employee))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gotTask)

	rec = do(t, h, http.MethodPost, api.PathCreateTask, `{"title":"Audit","assigned_to":"abc"}`, sessionCookie(t, admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskStats(t *testing.T) {
	h := newTestAPI(t, &MockController{
		stats: func(context.Context, models.User) (models.TaskStats, error) {
			return models.TaskStats{Total: 2, Pending: 2, ByPriority: map[models.Priority]int{models.PriorityLow: 2}}, nil
		},
	})

	rec := do(t, h, http.MethodGet, api.PathTaskStats, nil, sessionCookie(t, admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":2,"pending":2,"in_progress":0,"completed":0,"by_priority":{"low":2}}`, rec.Body.String())
}

func TestLogout_RevokesSession(t *testing.T) {
	h := newTestAPI(t, &MockController{
		users: func(context.Context, models.User) ([]models.User, error) {
			return []models.User{admin, employee}, nil
		},
	})
	cookie := sessionCookie(t, admin)

	rec := do(t, h, http.MethodGet, api.PathUsers, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(t, h, http.MethodPost, api.PathLogout, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Negative(t, cleared[0].MaxAge)

	rec = do(t, h, http.MethodGet, api.PathUsers, nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "revoked token is rejected")
}

func TestMapServiceError(t *testing.T) {
	status, msg := mapServiceError(e.ErrAuthFailure)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", msg)

	status, _ = mapServiceError(context.DeadlineExceeded)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, msg = mapServiceError(fmt.Errorf("%w: title is required", e.ErrValidation))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, msg, "title is required")
}
