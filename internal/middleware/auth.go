// Package middleware provides HTTP middleware for the API.
//
// Go Pattern: Middleware in Go is a function that wraps an HTTP handler.
// In Gin, middleware is a gin.HandlerFunc that calls c.Next() to continue
// the chain, or c.Abort() to stop processing.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
// Go Pattern: Use unexported types for context keys so other packages
// can't accidentally overwrite your values.
type contextKey string

const serviceContextKey contextKey = "service_caller"

// ServiceAuth returns middleware for the trigger functions that only the
// scheduler (cron, another instance, an operator) may call.
//
// The key is accepted from X-Service-Key or as a bearer token. Both sides
// are hashed before the constant-time compare so the comparison does not
// leak the key length.
func ServiceAuth(serviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !validServiceKey(c, serviceKey) {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "A valid service key is required",
				Code:    http.StatusUnauthorized,
			})
			c.Abort() // Stop the middleware chain, don't call the handler
			return
		}
		c.Set(string(serviceContextKey), true)
		c.Next()
	}
}

// UserOrService accepts either a service key or a user bearer token.
func UserOrService(jwtSecret, serviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validServiceKey(c, serviceKey) {
			c.Set(string(serviceContextKey), true)
			c.Next()
			return
		}

		if token := bearerToken(c); token != "" {
			if claims, err := ParseJWT(token, jwtSecret); err == nil {
				c.Set(string(userContextKey), claims.ID())
				c.Next()
				return
			}
		}

		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "Provide a valid service key or Authorization: Bearer <token>",
			Code:    http.StatusUnauthorized,
		})
		c.Abort()
	}
}

// IsService reports whether the request was authenticated with the service key.
func IsService(c *gin.Context) bool {
	return c.GetBool(string(serviceContextKey))
}

func validServiceKey(c *gin.Context, serviceKey string) bool {
	if serviceKey == "" {
		return false
	}
	presented := c.GetHeader("X-Service-Key")
	if presented == "" {
		presented = bearerToken(c)
	}
	if presented == "" {
		return false
	}
	want := HashAPIKey(serviceKey)
	got := HashAPIKey(presented)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// HashAPIKey creates a SHA-256 hash of a key.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash)
}
