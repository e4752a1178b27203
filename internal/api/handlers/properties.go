// properties.go implements the minimal property catalog surface: the
// properties, units, and tenant records that anchor the sender → unit →
// property join. Catalog writes are an IT provisioning concern; ADMIN callers
// read only their own property.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/db/models"
	"github.com/estatedesk/estatedesk/internal/db/repositories"
	"github.com/estatedesk/estatedesk/internal/middleware"
	"github.com/estatedesk/estatedesk/internal/validation"
)

// PropertyHandlers handles the property catalog endpoints
type PropertyHandlers struct {
	propertyRepo *repositories.PropertyRepository
}

// NewPropertyHandlers creates a new PropertyHandlers instance
func NewPropertyHandlers(propertyRepo *repositories.PropertyRepository) *PropertyHandlers {
	return &PropertyHandlers{propertyRepo: propertyRepo}
}

// @Summary      List properties
// @Description  List properties. IT sees all; ADMIN sees only their own property.
// @Tags         Properties
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "properties: []"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/properties [get]
// ListPropertiesHandler lists visible properties
// GET /api/properties
func (h *PropertyHandlers) ListPropertiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		properties, err := h.propertyRepo.ListProperties(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list properties",
			})
			return
		}

		if p.Role == auth.RoleAdmin {
			scoped := make([]*models.Property, 0, 1)
			if p.PropertyID != nil {
				for _, prop := range properties {
					if prop.ID == *p.PropertyID {
						scoped = append(scoped, prop)
					}
				}
			}
			properties = scoped
		}

		c.JSON(http.StatusOK, gin.H{
			"properties": properties,
		})
	}
}

// @Summary      Get property
// @Description  Get a property by ID. An ADMIN requesting another property gets the same 404 as a missing id.
// @Tags         Properties
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Property ID"
// @Success      200  {object}  map[string]interface{}  "property"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Property not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/properties/{id} [get]
// GetPropertyHandler retrieves one property
// GET /api/properties/:id
func (h *PropertyHandlers) GetPropertyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		propertyID := c.Param("id")
		if p.Role == auth.RoleAdmin && (p.PropertyID == nil || *p.PropertyID != propertyID) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Property not found",
			})
			return
		}

		property, err := h.propertyRepo.GetPropertyByID(c.Request.Context(), propertyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve property",
			})
			return
		}
		if property == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Property not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"property": property,
		})
	}
}

// CreatePropertyRequest provisions a new property.
type CreatePropertyRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"required"`
}

// @Summary      Create property
// @Description  Provision a new property. IT only.
// @Tags         Properties
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreatePropertyRequest  true  "Property"
// @Success      201  {object}  map[string]interface{}  "property"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/properties [post]
// CreatePropertyHandler provisions a property
// POST /api/properties
func (h *PropertyHandlers) CreatePropertyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePropertyRequest
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

		property := &models.Property{
			Name:    req.Name,
			Address: req.Address,
		}
		if err := h.propertyRepo.CreateProperty(c.Request.Context(), property); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create property",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"property": property,
		})
	}
}

// CreateUnitRequest provisions a unit inside a property.
type CreateUnitRequest struct {
	PropertyID string `json:"property_id" validate:"required"`
	Label      string `json:"label" validate:"required,max=50"`
}

// @Summary      Create unit
// @Description  Provision a unit within a property. IT only.
// @Tags         Properties
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUnitRequest  true  "Unit"
// @Success      201  {object}  map[string]interface{}  "unit"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      404  {object}  map[string]interface{}  "Property not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/properties/units [post]
// CreateUnitHandler provisions a unit
// POST /api/properties/units
func (h *PropertyHandlers) CreateUnitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUnitRequest
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

		property, err := h.propertyRepo.GetPropertyByID(c.Request.Context(), req.PropertyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve property",
			})
			return
		}
		if property == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Property not found",
			})
			return
		}

		unit := &models.Unit{
			PropertyID: req.PropertyID,
			Label:      req.Label,
		}
		if err := h.propertyRepo.CreateUnit(c.Request.Context(), unit); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create unit",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"unit": unit,
		})
	}
}

// CreateTenantRequest provisions a tenant record occupying a unit.
type CreateTenantRequest struct {
	UnitID string  `json:"unit_id" validate:"required"`
	Name   string  `json:"name" validate:"required"`
	Email  string  `json:"email" validate:"required,email"`
	Phone  *string `json:"phone"`
}

// @Summary      Create tenant record
// @Description  Provision a tenant record for a unit. IT only. TENANT-role accounts link to these records via linked_record_id.
// @Tags         Properties
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateTenantRequest  true  "Tenant record"
// @Success      201  {object}  map[string]interface{}  "tenant"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/properties/tenants [post]
// CreateTenantHandler provisions a tenant record
// POST /api/properties/tenants
func (h *PropertyHandlers) CreateTenantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTenantRequest
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

		tenant := &models.Tenant{
			UnitID: req.UnitID,
			Name:   req.Name,
			Email:  req.Email,
			Phone:  req.Phone,
		}
		if err := h.propertyRepo.CreateTenant(c.Request.Context(), tenant); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create tenant record",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"tenant": tenant,
		})
	}
}
