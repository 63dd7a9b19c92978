package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

func issueToken(t *testing.T, secret, sub, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func authTestRouter(adminRole string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/", AuthMiddleware(testJWTSecret))
	g.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	admin := g.Group("/admin", AdminRequired(adminRole))
	admin.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func doAuthRequest(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	r := authTestRouter("admin")
	w := doAuthRequest(r, "/me", issueToken(t, testJWTSecret, "user-1", ""))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user-1", w.Body.String())
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	r := authTestRouter("admin")
	w := doAuthRequest(r, "/me", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	r := authTestRouter("admin")
	w := doAuthRequest(r, "/me", issueToken(t, "other-secret", "user-1", ""))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	claims := jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	r := authTestRouter("admin")
	w := doAuthRequest(r, "/me", token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRequired_RoleEnforced(t *testing.T) {
	r := authTestRouter("admin")

	w := doAuthRequest(r, "/admin/ping", issueToken(t, testJWTSecret, "user-1", "admin"))
	require.Equal(t, http.StatusOK, w.Code)

	w = doAuthRequest(r, "/admin/ping", issueToken(t, testJWTSecret, "user-1", ""))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRequired_EmptyConfiguredRoleDeniesAll(t *testing.T) {
	r := authTestRouter("")
	w := doAuthRequest(r, "/admin/ping", issueToken(t, testJWTSecret, "user-1", "admin"))
	require.Equal(t, http.StatusForbidden, w.Code)
}
