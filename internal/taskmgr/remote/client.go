// Package remote implements the task store over the HTTP API of an Eagle
// server. The session cookie issued at login is kept in a cookie jar and
// can be exported to survive client restarts.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/access"
	"github.com/gartstein/eagle/internal/taskmgr/api"
	"github.com/gartstein/eagle/internal/taskmgr/auth"
	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 10 * time.Second

type Client struct {
	baseURL *url.URL
	http    *http.Client
	jar     http.CookieJar
	timeout time.Duration
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: u,
		http:    &http.Client{Jar: jar},
		jar:     jar,
		timeout: timeout,
		logger:  logger.Named("remote"),
	}, nil
}

func (c *Client) ListCompanies(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	if err := c.do(ctx, http.MethodGet, api.PathCompanies, nil, &companies); err != nil {
		return nil, err
	}
	if companies == nil {
		companies = []models.Company{}
	}
	return companies, nil
}

// ListUsersByCompany lists users of companyID. The server only exposes the
// signed-in user's company, so other companies yield an empty list.
func (c *Client) ListUsersByCompany(ctx context.Context, companyID int64) ([]models.User, error) {
	var payload []api.User
	if err := c.do(ctx, http.MethodGet, api.PathUsers, nil, &payload); err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(payload))
	for _, u := range payload {
		if u.CompanyID == companyID {
			users = append(users, u.Model())
		}
	}
	return users, nil
}

// Authenticate signs in on the server. The session cookie is kept for
// subsequent calls.
func (c *Client) Authenticate(ctx context.Context, username, password string, companyID int64) (*models.User, error) {
	req := api.LoginRequest{Username: username, Password: password, CompanyID: api.ID(companyID)}
	var resp api.LoginResponse
	if err := c.do(ctx, http.MethodPost, api.PathLogin, req, &resp); err != nil {
		if errors.Is(err, e.ErrUnauthorized) {
			return nil, e.ErrAuthFailure
		}
		return nil, err
	}
	if !resp.Success || resp.User == nil {
		return nil, e.ErrAuthFailure
	}

	user := resp.User.Model()
	return &user, nil
}

// ListTasksFor fetches the visible tasks and joins the assignee names from
// the user list.
func (c *Client) ListTasksFor(ctx context.Context, user models.User) ([]models.Task, error) {
	var payload []api.Task
	if err := c.do(ctx, http.MethodGet, api.PathTasks, nil, &payload); err != nil {
		return nil, err
	}

	users, err := c.ListUsersByCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}

	tasks := make([]models.Task, 0, len(payload))
	for _, p := range payload {
		t := p.Model()
		t.AssignedToName = names[t.AssignedTo]
		tasks = append(tasks, t)
	}
	return access.VisibleTasks(tasks, user), nil
}

func (c *Client) CreateTask(ctx context.Context, input models.TaskInput) (int64, error) {
	if err := input.Validate(); err != nil {
		return 0, err
	}
	req := api.CreateTaskRequest{
		Title:       input.Title,
		Description: input.Description,
		AssignedTo:  api.ID(input.AssignedTo),
		Priority:    string(input.Priority),
		Deadline:    api.FormatDeadline(input.Deadline),
	}

	var resp api.CreateTaskResponse
	if err := c.do(ctx, http.MethodPost, api.PathCreateTask, req, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, fmt.Errorf("%w: %s", e.ErrValidation, resp.Message)
	}
	return resp.TaskID, nil
}

func (c *Client) UpdateTaskStatus(ctx context.Context, taskID int64, status models.Status) error {
	if !models.IsValidStatus(string(status)) {
		return fmt.Errorf("%w: unknown status %q", e.ErrValidation, status)
	}

	req := api.UpdateStatusRequest{TaskID: api.ID(taskID), Status: string(status)}
	var resp api.Result
	if err := c.do(ctx, http.MethodPost, api.PathUpdateStatus, req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", e.ErrValidation, resp.Message)
	}
	return nil
}

// Stats asks the server for the counts of the visible tasks.
func (c *Client) Stats(ctx context.Context) (models.TaskStats, error) {
	var stats models.TaskStats
	err := c.do(ctx, http.MethodGet, api.PathTaskStats, nil, &stats)
	return stats, err
}

// Logout ends the server session and forgets the cookie.
func (c *Client) Logout(ctx context.Context) error {
	if c.SessionToken() == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, api.PathLogout, nil, nil)
	c.ResumeSession("")
	return err
}

// SessionToken returns the current session token, or "" when signed out.
func (c *Client) SessionToken() string {
	for _, cookie := range c.jar.Cookies(c.baseURL) {
		if cookie.Name == auth.CookieName {
			return cookie.Value
		}
	}
	return ""
}

// ResumeSession installs a token saved from an earlier SessionToken call.
// An empty token clears the session.
func (c *Client) ResumeSession(token string) {
	cookie := &http.Cookie{Name: auth.CookieName, Value: token, Path: "/"}
	if token == "" {
		cookie.MaxAge = -1
	}
	c.jar.SetCookies(c.baseURL, []*http.Cookie{cookie})
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %s %s: %v", e.ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", e.ErrStoreUnavailable, err)
	}

	if err := statusError(resp.StatusCode, raw); err != nil {
		c.logger.Debug("request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return err
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", e.ErrStoreUnavailable, err)
	}
	return nil
}

// statusError maps a non-2xx response to a store error.
func statusError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}

	message := strings.TrimSpace(string(body))
	var result api.Result
	if json.Unmarshal(body, &result) == nil && result.Message != "" {
		message = result.Message
	}

	switch {
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", e.ErrUnauthorized, message)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", e.ErrNotFound, message)
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", e.ErrValidation, message)
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: server returned %d: %s", e.ErrStoreUnavailable, code, message)
	default:
		return fmt.Errorf("unexpected status %d: %s", code, message)
	}
}
