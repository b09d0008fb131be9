// Package session tracks the signed-in user of a client process and
// persists it so a restart resumes where the user left off.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"go.uber.org/zap"
)

// StorageKey is the single key under which the session record is kept.
const StorageKey = "user"

// Authenticator verifies credentials. Both store variants implement it.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string, companyID int64) (*models.User, error)
}

// Storage is durable key/value storage that survives process restarts.
type Storage interface {
	GetSetting(ctx context.Context, key string) ([]byte, bool, error)
	PutSetting(ctx context.Context, key string, value []byte) error
	DeleteSetting(ctx context.Context, key string) error
}

// TokenCarrier is implemented by authenticators that hold a server-issued
// session token which has to survive restarts along with the user.
type TokenCarrier interface {
	SessionToken() string
	ResumeSession(token string)
}

// remoteLogout is implemented by authenticators with server-side sessions.
type remoteLogout interface {
	Logout(ctx context.Context) error
}

type record struct {
	User  models.User `json:"user"`
	Token string      `json:"token,omitempty"`
}

type Manager struct {
	mu      sync.Mutex
	auth    Authenticator
	storage Storage
	logger  *zap.Logger
	current *models.User
}

func NewManager(auth Authenticator, storage Storage, logger *zap.Logger) *Manager {
	return &Manager{
		auth:    auth,
		storage: storage,
		logger:  logger.Named("session"),
	}
}

// Login authenticates and, on success, persists and activates the user.
// ErrAuthFailure is returned unchanged and nothing is persisted.
func (m *Manager) Login(ctx context.Context, username, password string, companyID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, err := m.auth.Authenticate(ctx, username, password, companyID)
	if err != nil {
		return nil, err
	}

	rec := record{User: *user}
	if tc, ok := m.auth.(TokenCarrier); ok {
		rec.Token = tc.SessionToken()
	}
	rec.User.Password = ""

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.storage.PutSetting(ctx, StorageKey, data); err != nil {
		return nil, err
	}

	m.current = &rec.User
	m.logger.Info("signed in",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)
	return copyUser(m.current), nil
}

// Restore activates the persisted user, if any. The record is trusted as
// stored; a malformed record is logged and treated as no session.
func (m *Manager) Restore(ctx context.Context) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok, err := m.storage.GetSetting(ctx, StorageKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.current = nil
		return nil, nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		m.logger.Warn("ignoring unreadable session record", zap.Error(err))
		m.current = nil
		return nil, nil
	}
	if !wellFormed(rec.User) {
		m.logger.Warn("ignoring malformed session record", zap.Int64("user_id", rec.User.ID))
		m.current = nil
		return nil, nil
	}

	if tc, ok := m.auth.(TokenCarrier); ok && rec.Token != "" {
		tc.ResumeSession(rec.Token)
	}

	m.current = &rec.User
	m.logger.Debug("session restored", zap.String("username", rec.User.Username))
	return copyUser(m.current), nil
}

// Logout clears the persisted and in-memory session. Calling it without an
// active session is not an error.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rl, ok := m.auth.(remoteLogout); ok {
		if err := rl.Logout(ctx); err != nil && !isExpected(err) {
			m.logger.Warn("server logout failed", zap.Error(err))
		}
	}

	if err := m.storage.DeleteSetting(ctx, StorageKey); err != nil {
		return err
	}
	if m.current != nil {
		m.logger.Info("signed out", zap.String("username", m.current.Username))
	}
	m.current = nil
	return nil
}

// Current returns the active user or nil.
func (m *Manager) Current() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyUser(m.current)
}

func wellFormed(u models.User) bool {
	return u.ID > 0 && u.CompanyID > 0 && u.Username != "" && models.IsValidRole(string(u.Role))
}

func isExpected(err error) bool {
	return errors.Is(err, e.ErrUnauthorized)
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
