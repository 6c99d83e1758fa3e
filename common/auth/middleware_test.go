package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testAuth = config.AuthConfig{JWTSecret: "test-secret", Issuer: "identity"}

func router(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(testAuth, zaptest.NewLogger(t)), func(c *gin.Context) {
		id, ok := UserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.String())
	})
	r.GET("/admin", Middleware(testAuth, zaptest.NewLogger(t)), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	user := uuid.New()
	token, err := NewToken(testAuth, user, RoleUser, time.Hour)
	require.NoError(t, err)

	w := get(router(t), "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.String(), w.Body.String())
}

func TestMiddlewareRejects(t *testing.T) {
	r := router(t)
	user := uuid.New()

	expired, err := NewToken(testAuth, user, RoleUser, -time.Hour)
	require.NoError(t, err)
	otherIssuer, err := NewToken(config.AuthConfig{JWTSecret: testAuth.JWTSecret, Issuer: "elsewhere"}, user, RoleUser, time.Hour)
	require.NoError(t, err)
	wrongKey, err := NewToken(config.AuthConfig{JWTSecret: "other", Issuer: testAuth.Issuer}, user, RoleUser, time.Hour)
	require.NoError(t, err)
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    testAuth.Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString([]byte(testAuth.JWTSecret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"missing":   "",
		"garbage":   "not-a-jwt",
		"expired":   expired,
		"issuer":    otherIssuer,
		"signature": wrongKey,
		"subject":   badSubject,
	} {
		w := get(r, "/me", token)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"), name)
	}
}

func TestRequireRole(t *testing.T) {
	r := router(t)
	user, err := NewToken(testAuth, uuid.New(), RoleUser, time.Hour)
	require.NoError(t, err)
	admin, err := NewToken(testAuth, uuid.New(), RoleAdmin, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, get(r, "/admin", user).Code)
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", admin).Code)
}
