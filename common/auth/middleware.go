// Package auth verifies the bearer tokens issued by the identity service and
// exposes the caller's identity to gin handlers.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	userIDKey = "userID"
	roleKey   = "role"
)

// Claims are the token claims the ledger relies on. Subject carries the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Parse verifies an HS256 token against cfg and returns its claims.
func Parse(cfg config.AuthConfig, token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// NewToken signs a token for userID. The identity service owns issuance in
// production; this is used by tooling and tests.
func NewToken(cfg config.AuthConfig, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's user id and role on the context.
func Middleware(cfg config.AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			errors.AbortUnauthorized(c, "missing bearer token")
			return
		}

		claims, err := Parse(cfg, strings.TrimSpace(token))
		if err != nil {
			logger.Debug("Rejected bearer token", zap.Error(err), zap.String("path", c.Request.URL.Path))
			errors.AbortUnauthorized(c, "invalid bearer token")
			return
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			errors.AbortUnauthorized(c, "token subject is not a user id")
			return
		}

		c.Set(userIDKey, userID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// RequireRole lets through callers holding requiredRole; admins pass every check.
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(roleKey)
		if role == "" {
			errors.AbortForbidden(c, "role not found")
			return
		}
		if role != requiredRole && role != RoleAdmin {
			errors.AbortForbidden(c, "insufficient role")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller set by Middleware.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
