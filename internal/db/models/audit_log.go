// Package models - audit_log.go defines the AuditLog model for recording
// state-changing actions, capturing actor, action, affected entity, before/after
// snapshots, client IP, and arbitrary metadata. Rows are immutable once written;
// the only deletion path is the retention sweep in internal/jobs.
package models

import "time"

// Audit actions. Classification is total: anything the classifier cannot
// recognise becomes ActionUnknown rather than failing the request.
const (
	ActionCreate      = "CREATE"
	ActionUpdate      = "UPDATE"
	ActionDelete      = "DELETE"
	ActionLogin       = "LOGIN"
	ActionLogout      = "LOGOUT"
	ActionLoginFailed = "LOGIN_FAILED"
	ActionExport      = "EXPORT"
	ActionView        = "VIEW"
	ActionUnknown     = "UNKNOWN"
)

// AuditLog represents an immutable audit log entry for one state-changing action
type AuditLog struct {
	ID         string                 `json:"id"`
	UserID     *string                `json:"user_id"`     // Nullable: auth failures can occur pre-identity
	Action     string                 `json:"action"`      // one of the Action* constants
	EntityType string                 `json:"entity_type"` // "communication", "user", "property", ...
	EntityID   *string                `json:"entity_id"`   // Nullable: collection-level actions have no single target
	OldValues  map[string]interface{} `json:"old_values,omitempty"` // JSONB: pre-image, present for UPDATE/DELETE
	NewValues  map[string]interface{} `json:"new_values,omitempty"` // JSONB: post-image, present for CREATE/UPDATE
	IPAddress  *string                `json:"ip_address,omitempty"` // Client IP
	UserAgent  *string                `json:"user_agent,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"` // JSONB: method, path, query, status code, request id

	// ChainHash is sha256(previous entry's hash || canonical entry bytes),
	// making the trail tamper-evident: rewriting any historical row breaks
	// every hash after it.
	ChainHash string `json:"chain_hash"`

	CreatedAt time.Time `json:"created_at"`
}

// AuditLogStats is the aggregation served alongside the filtered list view. It
// is computed over the same filtered set as the list so the two always agree.
type AuditLogStats struct {
	TotalActions  int64              `json:"total_actions"`
	ActionsByType map[string]int64   `json:"actions_by_type"`
	ActionsByUser []UserActionCount  `json:"actions_by_user"` // top 10 by count
	RecentActions []*AuditLog        `json:"recent_actions"`  // latest 10
}

// UserActionCount is one row of the per-user action leaderboard, joined to the
// user's display name.
type UserActionCount struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Count  int64  `json:"count"`
}
