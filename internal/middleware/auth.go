// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → RBAC → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the principal; role checks read from that context. Audit logging
// wraps the handler so both the pre-state snapshot and the final response status
// are visible to it.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/identity"
)

const (
	// PrincipalKey is the gin.Context key under which the resolved
	// *auth.Principal is stored by AuthMiddleware.
	PrincipalKey = "principal"

	// UserIDKey mirrors the principal's ID for middleware that only needs the
	// identifier (rate limit keys, audit user attribution).
	UserIDKey = "user_id"
)

// AuthMiddleware resolves the bearer token to a principal and stores it in the
// request context. Requests without a resolvable principal are rejected with
// 401 before reaching any handler.
func AuthMiddleware(resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed authorization header",
			})
			return
		}

		principal, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) || errors.Is(err, identity.ErrPrincipalNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid credentials",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authentication failed",
			})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Set(UserIDKey, principal.ID)

		c.Next()
	}
}

// OptionalAuthMiddleware resolves a principal when a token is present but never
// aborts. Registered on the login route: the request must stay open to
// anonymous callers, but a caller re-authenticating with a live token should
// still be attributed in the audit trail.
func OptionalAuthMiddleware(resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if principal, err := resolver.Resolve(c.Request.Context(), token); err == nil {
				c.Set(PrincipalKey, principal)
				c.Set(UserIDKey, principal.ID)
			}
		}
		c.Next()
	}
}

// PrincipalFromContext retrieves the principal set by AuthMiddleware. The
// second return is false on unauthenticated requests.
func PrincipalFromContext(c *gin.Context) (*auth.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, false
	}
	principal, ok := v.(*auth.Principal)
	return principal, ok && principal != nil
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}
