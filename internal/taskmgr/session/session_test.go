package session

import (
	"context"
	"testing"

	"github.com/gartstein/eagle/internal/taskmgr/db"
	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func setupStore(t *testing.T) *db.Repository {
	repo, err := db.NewRepository(&db.Config{Driver: db.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	require.NoError(t, repo.Seed(context.Background()))
	return repo
}

// MockCarrier is an Authenticator holding a server session token.
type MockCarrier struct {
	AuthenticateFunc func(ctx context.Context, username, password string, companyID int64) (*models.User, error)
	token            string
	resumed          string
	loggedOut        bool
}

func (m *MockCarrier) Authenticate(ctx context.Context, username, password string, companyID int64) (*models.User, error) {
	return m.AuthenticateFunc(ctx, username, password, companyID)
}

func (m *MockCarrier) SessionToken() string       { return m.token }
func (m *MockCarrier) ResumeSession(token string) { m.resumed = token }

func (m *MockCarrier) Logout(ctx context.Context) error {
	m.loggedOut = true
	return e.ErrUnauthorized
}

func TestLogin_Success(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	mgr := NewManager(store, store, zaptest.NewLogger(t))

	user, err := mgr.Login(ctx, "admin", "admin123", 1)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.Equal(t, int64(1), user.CompanyID)

	current := mgr.Current()
	require.NotNil(t, current)
	assert.Equal(t, "admin", current.Username)

	raw, ok, err := store.GetSetting(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, ok, "session must be persisted")
	assert.NotContains(t, string(raw), "admin123")
}

func TestLogin_FailurePersistsNothing(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	mgr := NewManager(store, store, zaptest.NewLogger(t))

	user, err := mgr.Login(ctx, "admin", "wrong", 1)
	assert.ErrorIs(t, err, e.ErrAuthFailure)
	assert.Nil(t, user)
	assert.Nil(t, mgr.Current())

	_, ok, err := store.GetSetting(ctx, StorageKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestore_AcrossManagers(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first := NewManager(store, store, zaptest.NewLogger(t))
	_, err := first.Login(ctx, "employee", "employee123", 1)
	require.NoError(t, err)

	second := NewManager(store, store, zaptest.NewLogger(t))
	assert.Nil(t, second.Current(), "a new manager starts signed out")

	user, err := second.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "employee", user.Username)
	assert.Equal(t, models.RoleEmployee, user.Role)
	assert.Equal(t, user, second.Current())
}

func TestLogout_ThenFreshManagerRestoresNothing(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	mgr := NewManager(store, store, zaptest.NewLogger(t))
	_, err := mgr.Login(ctx, "manager", "manager123", 1)
	require.NoError(t, err)

	require.NoError(t, mgr.Logout(ctx))
	assert.Nil(t, mgr.Current())
	require.NoError(t, mgr.Logout(ctx), "logout is idempotent")

	fresh := NewManager(store, store, zaptest.NewLogger(t))
	user, err := fresh.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Nil(t, fresh.Current())
}

func TestRestore_MalformedRecordIgnored(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing id", `{"user":{"username":"x","role":"Admin","company_id":1}}`},
		{"bad role", `{"user":{"id":1,"username":"x","role":"Owner","company_id":1}}`},
		{"no company", `{"user":{"id":1,"username":"x","role":"Admin"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.PutSetting(ctx, StorageKey, []byte(tt.raw)))

			core, recorded := observer.New(zap.WarnLevel)
			mgr := NewManager(store, store, zap.New(core))

			user, err := mgr.Restore(ctx)
			require.NoError(t, err)
			assert.Nil(t, user)
			assert.Equal(t, 1, recorded.Len(), "malformed record should be logged")
		})
	}
}

func TestRestore_TrustsStoredRecord(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// user 50 does not exist in the store; restore does not re-validate
	require.NoError(t, store.PutSetting(ctx, StorageKey,
		[]byte(`{"user":{"id":50,"username":"ghost","role":"Manager","company_id":1}}`)))

	user, err := NewManager(store, store, zaptest.NewLogger(t)).Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(50), user.ID)
}

func TestTokenCarrier_RoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	carrier := &MockCarrier{
		AuthenticateFunc: func(ctx context.Context, username, password string, companyID int64) (*models.User, error) {
			return &models.User{ID: 7, Username: username, Role: models.RoleManager, CompanyID: companyID}, nil
		},
		token: "jwt-token",
	}

	_, err := NewManager(carrier, store, zaptest.NewLogger(t)).Login(ctx, "remote", "pw", 1)
	require.NoError(t, err)

	restarted := &MockCarrier{}
	user, err := NewManager(restarted, store, zaptest.NewLogger(t)).Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "jwt-token", restarted.resumed)

	mgr := NewManager(restarted, store, zaptest.NewLogger(t))
	require.NoError(t, mgr.Logout(ctx), "expired server session does not block local logout")
	assert.True(t, restarted.loggedOut)
}
