// classify.go maps HTTP verb/path combinations onto the closed audit action
// set. Classification is total: anything unrecognised becomes UNKNOWN so the
// interceptor can never fail a request over a path it has not seen before.
package audit

import (
	"net/http"
	"strings"

	"github.com/estatedesk/estatedesk/internal/db/models"
)

// ClassifyAction derives the audit action from the request verb and path, with
// path-based overrides taking precedence over the verb mapping. statusCode
// distinguishes LOGIN from LOGIN_FAILED.
func ClassifyAction(method, path string, statusCode int) string {
	switch {
	case strings.HasSuffix(path, "/login"):
		if statusCode >= 400 {
			return models.ActionLoginFailed
		}
		return models.ActionLogin
	case strings.HasSuffix(path, "/logout"):
		return models.ActionLogout
	case strings.Contains(path, "/export"):
		return models.ActionExport
	case method == http.MethodGet && strings.Contains(path, "/audit-logs"):
		// Reading the audit trail is itself audit-worthy.
		return models.ActionView
	}

	switch method {
	case http.MethodPost:
		return models.ActionCreate
	case http.MethodPut, http.MethodPatch:
		return models.ActionUpdate
	case http.MethodDelete:
		return models.ActionDelete
	default:
		return models.ActionUnknown
	}
}

// EntityTypeFromPath extracts the audited entity type from a route path.
// Unrecognised paths yield "" rather than an error; the entry is still written.
func EntityTypeFromPath(path string) string {
	segments := []struct{ fragment, entity string }{
		{"/communications", "communication"},
		{"/users", "user"},
		{"/properties", "property"},
		{"/units", "unit"},
		{"/tenants", "tenant"},
		{"/audit-logs", "audit_log"},
		{"/auth", "session"},
	}
	for _, s := range segments {
		if strings.Contains(path, s.fragment) {
			return s.entity
		}
	}
	return ""
}
