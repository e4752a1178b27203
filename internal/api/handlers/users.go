// users.go implements the user-management handlers. Visibility and mutation
// rights follow the scope engine: IT sees and manages everything, ADMIN is
// limited to TENANT accounts of their own property, TENANT has no access.
// Out-of-scope user ids return the same opaque 404 as missing ids.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/authz"
	"github.com/estatedesk/estatedesk/internal/db/models"
	"github.com/estatedesk/estatedesk/internal/db/repositories"
	"github.com/estatedesk/estatedesk/internal/middleware"
	"github.com/estatedesk/estatedesk/internal/validation"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	userRepo *repositories.UserRepository
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(userRepo *repositories.UserRepository) *UserHandlers {
	return &UserHandlers{userRepo: userRepo}
}

// parsePagination reads page/per_page query parameters with the shared bounds.
func parsePagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}

// scopeErrorResponse maps scope engine failures onto HTTP statuses: role-level
// refusals are 403, a misconfigured ADMIN account is a 400.
func scopeErrorResponse(c *gin.Context, err error) {
	switch err {
	case authz.ErrForbidden:
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
		})
	case authz.ErrMisconfiguredPrincipal:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Account has no property assignment",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to resolve access scope",
		})
	}
}

// @Summary      List users
// @Description  Get a paginated list of users visible to the caller. IT sees all users; ADMIN sees their own property's users.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users: [], pagination: map"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users [get]
// ListUsersHandler lists the users the caller's scope admits
// GET /api/users?page=1&per_page=20
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		pred, err := authz.ScopeFor(p, authz.ResourceUsers)
		if err != nil {
			scopeErrorResponse(c, err)
			return
		}

		var propertyID *string
		if pred.Kind == authz.ByProperty {
			propertyID = &pred.PropertyID
		}

		page, perPage, offset := parsePagination(c)

		users, total, err := h.userRepo.ListUsers(c.Request.Context(), propertyID, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list users",
			})
			return
		}

		sanitized := make([]map[string]interface{}, 0, len(users))
		for _, u := range users {
			sanitized = append(sanitized, u.Sanitized())
		}

		c.JSON(http.StatusOK, gin.H{
			"users": sanitized,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// visibleTo reports whether the caller's scope admits the target account.
// Self-access is always allowed.
func visibleTo(p *auth.Principal, target *models.User) bool {
	if target.ID == p.ID {
		return true
	}
	return authz.CanManageUser(p, target)
}

// @Summary      Get user
// @Description  Get a user by ID. Out-of-scope ids return the same 404 as missing ids.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "user"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users/{id} [get]
// GetUserHandler retrieves a specific user by ID
// GET /api/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}

		if user == nil || !visibleTo(p, user) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": user.Sanitized(),
		})
	}
}

// CreateUserRequest represents the request to create a new user account.
type CreateUserRequest struct {
	Username       string  `json:"username" validate:"required,min=3"`
	Email          string  `json:"email" validate:"required,email"`
	Name           string  `json:"name" validate:"required"`
	Password       string  `json:"password" validate:"required,min=8"`
	Role           string  `json:"role" validate:"required,oneof=ADMIN TENANT"`
	PropertyID     *string `json:"property_id"`
	LinkedRecordID *string `json:"linked_record_id"`
}

// @Summary      Create user
// @Description  Create a new account. IT may create ADMIN and TENANT accounts; ADMIN may create TENANT accounts for their own property. IT accounts are provisioned out of band and cannot be created here.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserRequest  true  "User creation request"
// @Success      201  {object}  map[string]interface{}  "user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      409  {object}  map[string]interface{}  "Username already taken"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users [post]
// CreateUserHandler creates a new user account
// POST /api/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req CreateUserRequest
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

		targetRole, err := auth.ParseRole(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Unknown role: " + req.Role,
			})
			return
		}

		if !authz.CanCreateUser(p, targetRole) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions to create this account",
			})
			return
		}

		propertyID := req.PropertyID
		if p.Role == auth.RoleAdmin {
			// Admin-created tenants always land in the admin's own property.
			propertyID = p.PropertyID
		}

		existing, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing user",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Username already taken",
			})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to hash password",
			})
			return
		}

		user := &models.User{
			Username:       req.Username,
			Email:          req.Email,
			Name:           req.Name,
			PasswordHash:   hash,
			Role:           targetRole.String(),
			IsActive:       true,
			PropertyID:     propertyID,
			LinkedRecordID: req.LinkedRecordID,
		}

		if err := h.userRepo.CreateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create user",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"user": user.Sanitized(),
		})
	}
}

// UpdateUserRequest represents a partial user update.
type UpdateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

// @Summary      Update user
// @Description  Update a user's email, name, or activation flag. Scope rules apply; out-of-scope ids return 404.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "User ID"
// @Param        body  body  UpdateUserRequest  true  "User update request"
// @Success      200  {object}  map[string]interface{}  "user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users/{id} [put]
// UpdateUserHandler updates a user
// PUT /api/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req UpdateUserRequest
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

		user, err := h.userRepo.GetUserByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}

		if user == nil || !authz.CanManageUser(p, user) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		upd := repositories.UserUpdate{
			Email:    req.Email,
			Name:     req.Name,
			IsActive: req.IsActive,
		}
		if err := h.userRepo.UpdateUser(c.Request.Context(), user.ID, upd); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update user",
			})
			return
		}

		updated, err := h.userRepo.GetUserByID(c.Request.Context(), user.ID)
		if err != nil || updated == nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": updated.Sanitized(),
		})
	}
}

// @Summary      Deactivate user
// @Description  Deactivate a user account. Rows are never deleted; deactivation invalidates the account's sessions on their next use. Scope rules apply; out-of-scope ids return 404.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "message: User deactivated"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users/{id} [delete]
// DeactivateUserHandler deactivates a user account
// DELETE /api/users/:id
func (h *UserHandlers) DeactivateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}

		if user == nil || !authz.CanManageUser(p, user) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		if err := h.userRepo.DeactivateUser(c.Request.Context(), user.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to deactivate user",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "User deactivated",
		})
	}
}
