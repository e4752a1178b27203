// Package handlers implements the HTTP handlers for the EstateDesk API. Every
// scoped read and write goes through the authorization core (internal/authz)
// before touching storage; handlers only translate between HTTP and the core.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/config"
	"github.com/estatedesk/estatedesk/internal/db/repositories"
	"github.com/estatedesk/estatedesk/internal/middleware"
	"github.com/estatedesk/estatedesk/internal/session"
	"github.com/estatedesk/estatedesk/internal/telemetry"
	"github.com/estatedesk/estatedesk/internal/validation"
)

// jwtLifetime is how long issued JWTs remain valid. Opaque session tokens get
// their lifetime from the Redis store's configured TTL instead.
const jwtLifetime = 24 * time.Hour

// AuthHandlers handles login, logout, and the current-principal lookup.
type AuthHandlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
	sessions *session.Store // nil when Redis is not configured
}

// NewAuthHandlers creates a new AuthHandlers instance. sessions may be nil, in
// which case only JWTs are issued.
func NewAuthHandlers(cfg *config.Config, userRepo *repositories.UserRepository, sessions *session.Store) *AuthHandlers {
	return &AuthHandlers{
		cfg:      cfg,
		userRepo: userRepo,
		sessions: sessions,
	}
}

// LoginRequest is the credential payload for password login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required"`
}

// @Summary      Log in
// @Description  Authenticate with username and password. Issues a JWT and, when a session store is configured, an opaque session token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "token, session_token (optional), user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/auth/login [post]
// LoginHandler authenticates a user by password
// POST /api/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}
		if fieldErrs := validation.Validate(&req); len(fieldErrs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "Validation failed",
				"fields": fieldErrs,
			})
			return
		}

		user, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to look up account",
			})
			return
		}

		// Uniform failure body: the response never distinguishes an unknown
		// username from a wrong password or a deactivated account.
		if user == nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, req.Password) {
			telemetry.LoginAttemptsTotal.WithLabelValues("failure").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.Email, jwtLifetime)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to issue token",
			})
			return
		}

		resp := gin.H{
			"token": token,
			"user":  user.Sanitized(),
		}

		if h.sessions != nil {
			sessionToken, err := h.sessions.Create(c.Request.Context(), user.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to create session",
				})
				return
			}
			resp["session_token"] = sessionToken
		}

		telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary      Log out
// @Description  Invalidate the caller's opaque session token, if one is in use. JWTs expire on their own.
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message: Logged out"
// @Router       /api/auth/logout [post]
// LogoutHandler revokes the caller's session
// POST /api/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.sessions != nil {
			if token := bearerToken(c); token != "" {
				// Best effort; an unknown or already-expired token still
				// results in a logged-out client.
				_ = h.sessions.Delete(c.Request.Context(), token)
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Logged out",
		})
	}
}

// @Summary      Current principal
// @Description  Return the authenticated principal resolved from the bearer token.
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/auth/me [get]
// MeHandler returns the authenticated principal
// GET /api/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": gin.H{
				"id":               p.ID,
				"role":             p.Role.String(),
				"email":            p.Email,
				"name":             p.Name,
				"property_id":      p.PropertyID,
				"linked_record_id": p.LinkedRecordID,
			},
		})
	}
}

// bearerToken extracts the raw bearer token from the Authorization header, or
// returns "" when the header is absent or malformed.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
