package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/framefolio/billing/pkg/response"
)

const (
	// UserIDKey is where the authenticated user id lands in gin.Context.
	UserIDKey = "user_id"
	roleKey   = "role"
)

// AuthMiddleware validates the Bearer token issued by the core application
// and extracts the subject as the acting user id.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT(response.APIResponseCodeForbidden, "missing bearer token"))
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT(response.APIResponseCodeForbidden, "invalid token"))
			return
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT(response.APIResponseCodeForbidden, "token missing subject"))
			return
		}

		c.Set(UserIDKey, sub)
		if role, ok := claims[roleKey].(string); ok {
			c.Set(roleKey, role)
		}
		ctx := context.WithValue(c.Request.Context(), UserIDKey, sub)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// AdminRequired gates a route group on the role claim. Runs after
// AuthMiddleware.
func AdminRequired(adminRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminRole == "" || c.GetString(roleKey) != adminRole {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorT(response.APIResponseCodeForbidden, "admin role required"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id attached by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
