package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	validSecret   = "test-secret"
	invalidSecret = "wrong-secret"
)

var employee = models.User{ID: 3, Username: "employee", Role: models.RoleEmployee, CompanyID: 1}

func TestGenerateToken_RoundTrip(t *testing.T) {
	token, issued, err := GenerateToken(employee, validSecret, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID, "every token gets a jti")

	claims, err := validateToken(token, validSecret)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, claims.ID)

	user, err := claims.User()
	require.NoError(t, err)
	assert.Equal(t, employee, user)
}

func TestClaimsUser_Invalid(t *testing.T) {
	_, err := (&Claims{Role: "Admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}}).User()
	assert.Error(t, err)

	_, err = (&Claims{Role: "Owner", RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}).User()
	assert.Error(t, err)
}

func TestHTTPMiddleware(t *testing.T) {
	// Helper to generate test tokens
	generateToken := func(secret string, expiresAt time.Time) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			Username:  employee.Username,
			Role:      string(employee.Role),
			CompanyID: employee.CompanyID,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "3",
				ID:        "jti-" + secret,
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
		})
		tokenString, _ := token.SignedString([]byte(secret))
		return tokenString
	}

	revoker := NewMemoryRevoker()
	revokedToken, revokedClaims, err := GenerateToken(employee, validSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, revoker.Revoke(context.Background(), revokedClaims.ID, revokedClaims.ExpiresAt.Time))

	tests := []struct {
		name       string
		path       string
		cookie     string
		bearer     string
		wantStatus int
	}{
		{name: "public login", path: "/login", wantStatus: http.StatusOK},
		{name: "public companies", path: "/api/companies", wantStatus: http.StatusOK},
		{name: "protected no token", path: "/api/tasks", wantStatus: http.StatusUnauthorized},
		{
			name:       "protected valid cookie",
			path:       "/api/tasks",
			cookie:     generateToken(validSecret, time.Now().Add(time.Hour)),
			wantStatus: http.StatusOK,
		},
		{
			name:       "protected valid bearer",
			path:       "/api/users",
			bearer:     generateToken(validSecret, time.Now().Add(time.Hour)),
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid signature",
			path:       "/api/tasks",
			cookie:     generateToken(invalidSecret, time.Now().Add(time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			path:       "/api/tasks",
			cookie:     generateToken(validSecret, time.Now().Add(-time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "revoked token",
			path:       "/logout",
			cookie:     revokedToken,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *Claims
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = ClaimsFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			handler := HTTPMiddleware(next, validSecret, revoker, zaptest.NewLogger(t))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK && isProtectedRequest(req) {
				require.NotNil(t, seen)
				assert.Equal(t, "employee", seen.Username)
			}
		})
	}
}

func TestMemoryRevoker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewMemoryRevoker()
	r.now = func() time.Time { return now }

	require.NoError(t, r.Revoke(ctx, "a", now.Add(time.Minute)))
	require.NoError(t, r.Revoke(ctx, "expired", now.Add(-time.Minute)))

	revoked, err := r.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = r.IsRevoked(ctx, "expired")
	assert.False(t, revoked, "already expired tokens need no entry")

	now = now.Add(2 * time.Minute)
	revoked, _ = r.IsRevoked(ctx, "a")
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, "b", now.Add(time.Minute)))
	assert.Len(t, r.entries, 1, "stale entries are pruned")
}

func TestRedisRevoker(t *testing.T) {
	addr := os.Getenv("EAGLE_TEST_REDIS_ADDR")
	if testing.Short() || addr == "" {
		t.Skip("Skipping Redis test: set EAGLE_TEST_REDIS_ADDR to run")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	r := NewRedisRevoker(client)
	jti := "test-" + time.Now().Format(time.RFC3339Nano)

	revoked, err := r.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, jti, time.Now().Add(time.Minute)))
	revoked, err = r.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := client.TTL(ctx, "eagle:revoked:"+jti).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
}
