// Package auth issues and validates the JWT session tokens of the HTTP API
// and tracks revoked tokens.
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is how long a session token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Claims identify the signed-in user of a request.
type Claims struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	CompanyID int64  `json:"company_id"`
	jwt.RegisteredClaims
}

// User rebuilds the session user from the claims.
func (c *Claims) User() (models.User, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return models.User{}, fmt.Errorf("invalid subject %q", c.Subject)
	}
	role, ok := models.ParseRole(c.Role)
	if !ok {
		return models.User{}, fmt.Errorf("invalid role %q", c.Role)
	}
	return models.User{
		ID:        id,
		Username:  c.Username,
		Role:      role,
		CompanyID: c.CompanyID,
	}, nil
}

// GenerateToken signs an HS256 token for user valid for ttl.
func GenerateToken(user models.User, secret string, ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := &Claims{
		Username:  user.Username,
		Role:      string(user.Role),
		CompanyID: user.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// validateToken checks the token signature and returns parsed claims if valid.
func validateToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.ID == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
