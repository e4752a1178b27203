// audit.go implements the audit interceptor: Gin middleware that records
// state-changing operations (and audit-worthy denials) to the audit trail,
// with optional shipping to external destinations.
//
// Per request the interceptor moves through a fixed lifecycle: capture a
// pre-image for PUT/PATCH, dispatch the handler with the response body
// intercepted, then either write an entry or skip silently. The write happens
// asynchronously after the response is complete, so a storage outage on the
// audit side never alters the response already in flight.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/audit"
	"github.com/estatedesk/estatedesk/internal/db/models"
	"github.com/estatedesk/estatedesk/internal/db/repositories"
	"github.com/estatedesk/estatedesk/internal/safego"
	"github.com/estatedesk/estatedesk/internal/telemetry"
)

// maxCapturedBody caps how much of a request or response body is retained for
// old/new value snapshots. Bodies beyond the cap are truncated, not rejected.
const maxCapturedBody = 64 * 1024

// auditWriteTimeout bounds the async audit write so a hung database cannot
// leak goroutines.
const auditWriteTimeout = 5 * time.Second

// PreStateFunc loads the current state of the entity a request is about to
// mutate, keyed off the request's path parameters. Returning nil state means
// no pre-image is available (the entry is still written without oldValues).
type PreStateFunc func(ctx context.Context, c *gin.Context) (map[string]interface{}, error)

// AuditOptions wires the interceptor's collaborators.
type AuditOptions struct {
	// Repo persists entries. May be nil in tests; entries are then only shipped.
	Repo *repositories.AuditRepository
	// Shipper forwards entries to external destinations. Optional.
	Shipper audit.Shipper
	// SkipPaths are path fragments that are never audited (health checks,
	// version checks, self-profile lookups).
	SkipPaths []string
	// PreState maps Gin route templates (c.FullPath()) to pre-image loaders,
	// consulted for PUT and PATCH requests.
	PreState map[string]PreStateFunc
}

// DefaultSkipPaths covers the endpoints that are polled constantly and carry
// no state change: logging them would bury the signal in noise.
func DefaultSkipPaths() []string {
	return []string{"/health", "/version", "/api/auth/me"}
}

// bodyCaptureWriter tees the response body into a buffer, up to maxCapturedBody.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	if w.body.Len() < maxCapturedBody {
		remain := maxCapturedBody - w.body.Len()
		if len(b) > remain {
			w.body.Write(b[:remain])
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// AuditMiddleware returns the audit interceptor. It must be registered after
// AuthMiddleware (or OptionalAuthMiddleware) so the principal is already in
// context when the entry is attributed.
func AuditMiddleware(opts AuditOptions) gin.HandlerFunc {
	skip := opts.SkipPaths
	if skip == nil {
		skip = DefaultSkipPaths()
	}

	return func(c *gin.Context) {
		if c.Request.Method == "OPTIONS" || pathSkipped(c.Request.URL.Path, skip) {
			c.Next()
			return
		}

		method := c.Request.Method

		// Snapshot the request body for methods whose payload becomes the
		// entry's newValues. The body is restored so binding still works.
		var requestBody []byte
		if method == "POST" || method == "PUT" || method == "PATCH" {
			requestBody = snapshotRequestBody(c)
		}

		// Pre-image for updates: load the target entity's current state before
		// the handler mutates it.
		var preState map[string]interface{}
		if (method == "PUT" || method == "PATCH") && opts.PreState != nil {
			if load, ok := opts.PreState[c.FullPath()]; ok {
				state, err := load(c.Request.Context(), c)
				if err != nil {
					slog.Warn("audit pre-state load failed",
						"path", c.Request.URL.Path, "error", err)
				} else {
					preState = state
				}
			}
		}

		writer := &bodyCaptureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		path := c.Request.URL.Path
		isLogin := strings.Contains(path, "/login")

		principal, authenticated := PrincipalFromContext(c)

		// Login attempts are always audit-worthy even without a principal:
		// LOGIN_FAILED entries are how brute-force activity shows up in the
		// trail. Everything else requires a known principal, and of the
		// failures only access denials (401/403) are recorded.
		if !isLogin {
			if !authenticated {
				return
			}
			if status >= 400 && status != 401 && status != 403 {
				return
			}
		}

		action := audit.ClassifyAction(method, path, status)
		if action == models.ActionUnknown && method == "GET" && status < 400 {
			// Plain successful reads outside the audit resource are not
			// tracked. Denied reads carry a known principal and are.
			return
		}

		entry := buildEntry(c, action, status, preState, requestBody, writer.body.Bytes())
		if authenticated {
			userID := principal.ID
			entry.UserID = &userID
		}

		dispatch(opts, entry, status, c.GetString(RequestIDKey))
	}
}

func pathSkipped(path string, skip []string) bool {
	for _, s := range skip {
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}

func snapshotRequestBody(c *gin.Context) []byte {
	if c.Request.Body == nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCapturedBody))
	if err != nil {
		return nil
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

// buildEntry assembles the AuditLog row from the captured request/response
// state, applying the old/new value rules per action:
//
//	UPDATE → oldValues from the pre-image, newValues from the request body
//	CREATE → newValues from the request body only
//	DELETE → oldValues from the response body (the handler echoes the deleted
//	         resource's last-known state)
func buildEntry(c *gin.Context, action string, status int, preState map[string]interface{}, requestBody, responseBody []byte) *models.AuditLog {
	ip := c.ClientIP()
	ua := c.Request.UserAgent()

	entry := &models.AuditLog{
		Action:     action,
		EntityType: audit.EntityTypeFromPath(c.Request.URL.Path),
		IPAddress:  &ip,
		UserAgent:  &ua,
		CreatedAt:  time.Now(),
		Metadata: map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": status,
		},
	}
	if query := c.Request.URL.RawQuery; query != "" {
		entry.Metadata["query"] = query
	}
	if requestID := c.GetString(RequestIDKey); requestID != "" {
		entry.Metadata["request_id"] = requestID
	}
	if entityID := entityIDFromParams(c); entityID != "" {
		entry.EntityID = &entityID
	}

	switch action {
	case models.ActionUpdate:
		entry.OldValues = preState
		entry.NewValues = decodeJSONObject(requestBody)
	case models.ActionCreate:
		entry.NewValues = decodeJSONObject(requestBody)
	case models.ActionDelete:
		entry.OldValues = decodeJSONObject(responseBody)
	}

	return entry
}

// entityIDFromParams picks the mutated entity's identifier out of the route
// parameters. Routes use either :id or a resource-specific name like :threadId.
func entityIDFromParams(c *gin.Context) string {
	for _, name := range []string{"threadId", "id", "userId"} {
		if v := c.Param(name); v != "" {
			return v
		}
	}
	return ""
}

func decodeJSONObject(data []byte) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		// Non-object or truncated payloads are kept as an opaque snapshot
		// rather than dropped.
		return map[string]interface{}{"_raw": string(data)}
	}
	return obj
}

// dispatch writes the entry asynchronously. Failures are counted and logged
// but never reach the caller: the response is already complete by the time
// this runs.
func dispatch(opts AuditOptions, entry *models.AuditLog, status int, requestID string) {
	safego.GoNamed("audit-write", func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()

		if opts.Repo != nil {
			if err := opts.Repo.CreateAuditLog(ctx, entry); err != nil {
				telemetry.AuditWritesTotal.WithLabelValues("failure").Inc()
				slog.Error("audit write failed",
					"action", entry.Action,
					"entity_type", entry.EntityType,
					"request_id", requestID,
					"error", err)
			} else {
				telemetry.AuditWritesTotal.WithLabelValues("success").Inc()
			}
		}

		if opts.Shipper != nil {
			shipped := &audit.LogEntry{
				Timestamp:  entry.CreatedAt,
				Action:     entry.Action,
				EntityType: entry.EntityType,
				StatusCode: status,
				Metadata:   entry.Metadata,
			}
			if entry.UserID != nil {
				shipped.UserID = *entry.UserID
			}
			if entry.EntityID != nil {
				shipped.EntityID = *entry.EntityID
			}
			if entry.IPAddress != nil {
				shipped.IPAddress = *entry.IPAddress
			}
			if entry.UserAgent != nil {
				shipped.UserAgent = *entry.UserAgent
			}
			if err := opts.Shipper.Ship(ctx, shipped); err != nil {
				telemetry.AuditShipErrorsTotal.WithLabelValues("multi").Inc()
				slog.Error("audit ship failed", "action", entry.Action, "error", err)
			}
		}
	})
}
