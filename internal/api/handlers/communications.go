// communications.go implements the thread and message handlers. Listing selects
// its storage query from the caller's scope predicate, so unscoped rows never
// leave the database layer; single-thread operations go through the thread
// service, which re-checks the predicate against the thread root.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/authz"
	"github.com/estatedesk/estatedesk/internal/db/models"
	"github.com/estatedesk/estatedesk/internal/db/repositories"
	"github.com/estatedesk/estatedesk/internal/middleware"
	"github.com/estatedesk/estatedesk/internal/threads"
	"github.com/estatedesk/estatedesk/internal/validation"
)

// CommunicationHandlers handles thread listing and the thread write paths.
type CommunicationHandlers struct {
	commRepo *repositories.CommunicationRepository
	svc      *threads.Service
}

// NewCommunicationHandlers creates a new CommunicationHandlers instance
func NewCommunicationHandlers(commRepo *repositories.CommunicationRepository) *CommunicationHandlers {
	return &CommunicationHandlers{
		commRepo: commRepo,
		svc:      threads.NewService(commRepo),
	}
}

// @Summary      List threads
// @Description  List the communication threads the caller's scope admits. IT sees all threads, ADMIN their property's threads, TENANT their own.
// @Tags         Communications
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "threads: [], count: int"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/communications [get]
// ListThreadsHandler lists threads filtered by the caller's scope predicate
// GET /api/communications
func (h *CommunicationHandlers) ListThreadsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		pred, err := authz.ScopeFor(p, authz.ResourceCommunications)
		if err != nil {
			scopeErrorResponse(c, err)
			return
		}

		// The three scoped queries correspond one-to-one with the predicate
		// variants; there is no unscoped read path.
		var msgs []models.Communication
		switch pred.Kind {
		case authz.Unrestricted:
			msgs, err = h.commRepo.GetAllCommunications(c.Request.Context())
		case authz.ByProperty:
			msgs, err = h.commRepo.GetCommunicationsByPropertyID(c.Request.Context(), pred.PropertyID)
		case authz.BySender:
			msgs, err = h.commRepo.GetCommunicationsBySenderID(c.Request.Context(), pred.SenderID)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list communications",
			})
			return
		}

		threadList := threads.Aggregate(msgs)
		c.JSON(http.StatusOK, gin.H{
			"threads": threadList,
			"count":   len(threadList),
		})
	}
}

// @Summary      Get thread
// @Description  Get one aggregated thread with all of its messages. Out-of-scope thread ids return the same 404 as missing ids.
// @Tags         Communications
// @Security     Bearer
// @Produce      json
// @Param        threadId  path  string  true  "Thread ID"
// @Success      200  {object}  map[string]interface{}  "thread"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Thread not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/communications/{threadId} [get]
// GetThreadHandler retrieves one thread
// GET /api/communications/:threadId
func (h *CommunicationHandlers) GetThreadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		pred, err := authz.ScopeFor(p, authz.ResourceCommunications)
		if err != nil {
			scopeErrorResponse(c, err)
			return
		}

		thread, err := h.svc.GetThread(c.Request.Context(), pred, c.Param("threadId"))
		if err != nil {
			// Reads keep out-of-scope ids indistinguishable from missing ones.
			if errors.Is(err, threads.ErrThreadNotFound) || errors.Is(err, threads.ErrForbidden) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Thread not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve thread",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"thread": thread,
		})
	}
}

// CreateThreadRequest opens a new conversation thread.
type CreateThreadRequest struct {
	Subject     string   `json:"subject" validate:"required,max=200"`
	Body        string   `json:"body" validate:"required"`
	Category    string   `json:"category" validate:"required,max=50"`
	Attachments []string `json:"attachments"`
}

// @Summary      Create thread
// @Description  Open a new communication thread. The first message becomes the thread root; its subject, category, and sender anchor the thread.
// @Tags         Communications
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateThreadRequest  true  "Thread creation request"
// @Success      201  {object}  map[string]interface{}  "thread_id, message"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/communications [post]
// CreateThreadHandler opens a new thread
// POST /api/communications
func (h *CommunicationHandlers) CreateThreadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		// Opening a thread requires a communications scope at all; the
		// predicate itself does not constrain creation.
		if _, err := authz.ScopeFor(p, authz.ResourceCommunications); err != nil {
			scopeErrorResponse(c, err)
			return
		}

		var req CreateThreadRequest
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

		senderID := p.ID
		if p.Role == auth.RoleTenant && p.LinkedRecordID != nil {
			senderID = *p.LinkedRecordID
		}

		msg := &models.Communication{
			SenderID:    senderID,
			SenderName:  p.DisplayName(),
			SenderRole:  p.Role.String(),
			Subject:     req.Subject,
			Body:        req.Body,
			Category:    req.Category,
			Status:      models.CommunicationStatusOpen,
			Attachments: req.Attachments,
		}
		if err := h.commRepo.CreateCommunication(c.Request.Context(), msg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create thread",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"thread_id": msg.ThreadID,
			"message":   msg,
		})
	}
}

// ReplyRequest appends a message to an existing thread.
type ReplyRequest struct {
	Body        string   `json:"body" validate:"required"`
	Attachments []string `json:"attachments"`
}

// @Summary      Reply to thread
// @Description  Append a message to an existing thread. Replying to a thread outside the caller's scope is rejected with 403.
// @Tags         Communications
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        threadId  path  string        true  "Thread ID"
// @Param        body      body  ReplyRequest  true  "Reply"
// @Success      201  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Thread outside caller scope"
// @Failure      404  {object}  map[string]interface{}  "Thread not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/communications/{threadId}/messages [post]
// ReplyHandler appends a reply to a thread
// POST /api/communications/:threadId/messages
func (h *CommunicationHandlers) ReplyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		pred, err := authz.ScopeFor(p, authz.ResourceCommunications)
		if err != nil {
			scopeErrorResponse(c, err)
			return
		}

		var req ReplyRequest
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

		msg, err := h.svc.Reply(c.Request.Context(), p, pred, c.Param("threadId"), req.Body, req.Attachments)
		if err != nil {
			threadErrorResponse(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": msg,
		})
	}
}

// UpdateStatusRequest changes a thread's status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=OPEN IN_PROGRESS RESOLVED CLOSED"`
}

// @Summary      Update thread status
// @Description  Change a thread's status. The status is a thread-level property applied to every message of the thread as one logical operation. 403 when the caller's scope excludes the thread.
// @Tags         Communications
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        threadId  path  string               true  "Thread ID"
// @Param        body      body  UpdateStatusRequest  true  "New status"
// @Success      200  {object}  map[string]interface{}  "thread_id, status"
// @Failure      400  {object}  map[string]interface{}  "Invalid status"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Thread outside caller scope"
// @Failure      404  {object}  map[string]interface{}  "Thread not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/communications/{threadId}/status [patch]
// UpdateStatusHandler updates a thread's status with full fan-out
// PATCH /api/communications/:threadId/status
func (h *CommunicationHandlers) UpdateStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		pred, err := authz.ScopeFor(p, authz.ResourceCommunications)
		if err != nil {
			scopeErrorResponse(c, err)
			return
		}

		var req UpdateStatusRequest
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

		threadID := c.Param("threadId")
		if err := h.svc.UpdateThreadStatus(c.Request.Context(), pred, threadID, req.Status); err != nil {
			threadErrorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"thread_id": threadID,
			"status":    req.Status,
		})
	}
}

// @Summary      Delete thread
// @Description  Delete an entire thread and all of its messages. Staff only; ADMIN callers are limited to their own property's threads.
// @Tags         Communications
// @Security     Bearer
// @Produce      json
// @Param        threadId  path  string  true  "Thread ID"
// @Success      200  {object}  map[string]interface{}  "message: Thread deleted"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Thread outside caller scope"
// @Failure      404  {object}  map[string]interface{}  "Thread not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/communications/{threadId} [delete]
// DeleteThreadHandler removes a thread
// DELETE /api/communications/:threadId
func (h *CommunicationHandlers) DeleteThreadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		pred, err := authz.ScopeFor(p, authz.ResourceCommunications)
		if err != nil {
			scopeErrorResponse(c, err)
			return
		}

		if err := h.svc.DeleteThread(c.Request.Context(), pred, c.Param("threadId")); err != nil {
			threadErrorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Thread deleted",
		})
	}
}

// threadErrorResponse maps thread service failures onto HTTP statuses for the
// write paths: scope exclusions are an explicit 403 on mutations.
func threadErrorResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, threads.ErrThreadNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Thread not found",
		})
	case errors.Is(err, threads.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Thread outside caller scope",
		})
	case errors.Is(err, threads.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid thread status",
		})
	case errors.Is(err, threads.ErrStatusDiverged):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Thread status update did not converge",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to process thread operation",
		})
	}
}
