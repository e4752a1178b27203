// auditlogs.go implements the audit trail read surface: filtered list, the
// stats aggregation computed over the same filtered set, and the CSV export.
// All three routes sit behind the staff role gate; ADMIN callers additionally
// see only entries produced by their own property's accounts.
package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/authz"
	"github.com/estatedesk/estatedesk/internal/db/models"
	"github.com/estatedesk/estatedesk/internal/db/repositories"
	"github.com/estatedesk/estatedesk/internal/middleware"
)

// exportBatchSize is how many rows each storage round-trip fetches while
// streaming the CSV export.
const exportBatchSize = 500

// actorPageSize is how many accounts each round-trip fetches while resolving a
// property's full actor set for scope narrowing.
const actorPageSize = 500

// AuditLogHandlers handles the audit trail endpoints
type AuditLogHandlers struct {
	auditRepo *repositories.AuditRepository
	userRepo  *repositories.UserRepository
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(auditRepo *repositories.AuditRepository, userRepo *repositories.UserRepository) *AuditLogHandlers {
	return &AuditLogHandlers{
		auditRepo: auditRepo,
		userRepo:  userRepo,
	}
}

// buildFilters assembles the audit filter set from query parameters and the
// caller's scope. A ByProperty predicate narrows results to the actor set of
// the caller's property; combined with an explicit user_id filter, both
// conditions apply, so filtering for an out-of-property actor yields an empty
// result rather than an error.
func (h *AuditLogHandlers) buildFilters(c *gin.Context, p *auth.Principal) (repositories.AuditFilters, bool) {
	var filters repositories.AuditFilters

	if v := c.Query("user_id"); v != "" {
		filters.UserID = &v
	}
	if v := c.Query("action"); v != "" {
		filters.Action = &v
	}
	if v := c.Query("entity_type"); v != "" {
		filters.EntityType = &v
	}
	if v := c.Query("entity_id"); v != "" {
		filters.EntityID = &v
	}
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid start_date, expected RFC3339",
			})
			return filters, false
		}
		filters.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid end_date, expected RFC3339",
			})
			return filters, false
		}
		filters.EndDate = &t
	}

	pred, err := authz.ScopeFor(p, authz.ResourceAuditLogs)
	if err != nil {
		scopeErrorResponse(c, err)
		return filters, false
	}

	if pred.Kind == authz.ByProperty {
		ids, err := h.propertyActorIDs(c.Request.Context(), pred.PropertyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to resolve property accounts",
			})
			return filters, false
		}
		if len(ids) == 0 {
			// No accounts means no visible entries; an impossible actor id
			// keeps the query shape uniform.
			ids = []string{"00000000-0000-0000-0000-000000000000"}
		}
		filters.UserIDs = ids
	}

	return filters, true
}

// propertyActorIDs pages through every account attached to a property. Scope
// narrowing needs the complete set; truncating it would silently drop actors
// from the audit view.
func (h *AuditLogHandlers) propertyActorIDs(ctx context.Context, propertyID string) ([]string, error) {
	var ids []string
	for offset := 0; ; offset += actorPageSize {
		users, total, err := h.userRepo.ListUsers(ctx, &propertyID, actorPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		if len(users) < actorPageSize || len(ids) >= total {
			break
		}
	}
	return ids, nil
}

// @Summary      List audit logs
// @Description  Get a filtered, paginated view of the audit trail. Filters: user_id, action, entity_type, entity_id, start_date, end_date (RFC3339). Staff only.
// @Tags         AuditLogs
// @Security     Bearer
// @Produce      json
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Param        action    query  string  false  "Action filter (CREATE, UPDATE, ...)"
// @Success      200  {object}  map[string]interface{}  "audit_logs: [], pagination: map"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/audit-logs [get]
// ListAuditLogsHandler lists audit entries
// GET /api/audit-logs
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		filters, ok := h.buildFilters(c, p)
		if !ok {
			return
		}

		page, perPage, offset := parsePagination(c)

		logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list audit logs",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"audit_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Audit log statistics
// @Description  Get aggregate statistics over the same filtered set the list view uses: total, per-action counts, top actors, recent entries. Staff only.
// @Tags         AuditLogs
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "stats"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/audit-logs/stats [get]
// GetAuditLogStatsHandler returns the audit aggregation
// GET /api/audit-logs/stats
func (h *AuditLogHandlers) GetAuditLogStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		filters, ok := h.buildFilters(c, p)
		if !ok {
			return
		}

		stats, err := h.auditRepo.GetAuditLogStats(c.Request.Context(), filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to compute audit statistics",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"stats": stats,
		})
	}
}

// csvHeader is the column order of the export file.
var csvHeader = []string{
	"id", "created_at", "user_id", "action", "entity_type", "entity_id",
	"ip_address", "metadata", "chain_hash",
}

// @Summary      Export audit logs
// @Description  Stream the filtered audit trail as CSV. The same filters as the list view apply. The export itself is recorded as an EXPORT action. Staff only.
// @Tags         AuditLogs
// @Security     Bearer
// @Produce      text/csv
// @Success      200  {string}  string  "CSV payload"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/audit-logs/export [get]
// ExportAuditLogsHandler streams the filtered audit trail as CSV
// GET /api/audit-logs/export
func (h *AuditLogHandlers) ExportAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		filters, ok := h.buildFilters(c, p)
		if !ok {
			return
		}

		filename := "audit-logs-" + time.Now().UTC().Format("20060102-150405") + ".csv"
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Status(http.StatusOK)

		w := csv.NewWriter(c.Writer)
		if err := w.Write(csvHeader); err != nil {
			return
		}

		// Batch through storage rather than loading the whole set; exports can
		// span the full retention window.
		for offset := 0; ; offset += exportBatchSize {
			logs, _, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, exportBatchSize, offset)
			if err != nil {
				// Headers are already out; the truncated file is the best we
				// can signal at this point.
				break
			}
			for _, entry := range logs {
				if err := w.Write(csvRow(entry)); err != nil {
					return
				}
			}
			if len(logs) < exportBatchSize {
				break
			}
		}
		w.Flush()
	}
}

// csvRow renders one audit entry as an export line.
func csvRow(entry *models.AuditLog) []string {
	userID := ""
	if entry.UserID != nil {
		userID = *entry.UserID
	}
	entityID := ""
	if entry.EntityID != nil {
		entityID = *entry.EntityID
	}
	ip := ""
	if entry.IPAddress != nil {
		ip = *entry.IPAddress
	}
	metadata := ""
	if len(entry.Metadata) > 0 {
		if b, err := json.Marshal(entry.Metadata); err == nil {
			metadata = string(b)
		}
	}

	return []string{
		entry.ID,
		entry.CreatedAt.UTC().Format(time.RFC3339),
		userID,
		entry.Action,
		entry.EntityType,
		entityID,
		ip,
		metadata,
		entry.ChainHash,
	}
}
