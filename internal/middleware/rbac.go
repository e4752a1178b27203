// rbac.go implements role-gate middleware.
//
// Roles are checked at request time against the freshly resolved principal
// rather than being trusted from the token. When a user's role changes in the
// database, the change takes effect on their next request without needing to
// invalidate or reissue their token.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/auth"
)

// RequireRole allows the request through only when the principal's role is one
// of the listed roles. Unauthenticated requests get 401; authenticated
// requests with the wrong role get 403.
func RequireRole(roles ...auth.Role) gin.HandlerFunc {
	allowed := make(map[auth.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		if _, ok := allowed[principal.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		c.Next()
	}
}

// RequireStaff is shorthand for the role gate shared by the audit trail and
// user management routes.
func RequireStaff() gin.HandlerFunc {
	return RequireRole(auth.RoleIT, auth.RoleAdmin)
}
