package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CookieName is the HTTP cookie carrying the session token.
const CookieName = "session"

type contextKey string

const (
	userContextKey contextKey = "user"
)

// publicRoutes are reachable without a session.
var publicRoutes = map[string]bool{
	"/login":         true,
	"/api/companies": true,
}

// HTTPMiddleware rejects requests to protected routes that do not carry a
// valid, unrevoked session token, and stores the token claims in the
// request context for the rest.
func HTTPMiddleware(next http.Handler, jwtSecret string, revoker Revoker, logger *zap.Logger) http.Handler {
	logger = logger.Named("auth")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication for non-protected endpoints
		if !isProtectedRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := extractToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		claims, err := validateToken(tokenString, jwtSecret)
		if err != nil {
			logger.Debug("rejected token", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		revoked, err := revoker.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			logger.Error("revocation lookup failed", zap.Error(err))
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
		if revoked {
			http.Error(w, "session revoked", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the claims stored by HTTPMiddleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(userContextKey).(*Claims)
	return claims, ok
}

// SessionCookie builds the cookie that carries token until expires.
func SessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearedCookie expires the session cookie on the client.
func ClearedCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// extractToken reads the session cookie, falling back to a Bearer header.
func extractToken(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("session required")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid authorization format")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		return "", fmt.Errorf("invalid authorization format")
	}
	return tokenString, nil
}

func isProtectedRequest(r *http.Request) bool {
	return !publicRoutes[r.URL.Path]
}
