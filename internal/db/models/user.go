// Package models - user.go defines the User model for application accounts with
// role, activation state, and the scoping attributes the authorization core reads.
package models

import "time"

// User represents an account in the system
type User struct {
	ID           string
	Username     string
	Email        string
	Name         string
	PasswordHash string
	Role         string // "IT", "ADMIN", "TENANT" (closed set, parsed by auth.ParseRole)

	// IsActive gates session resolution: a deactivated account's existing
	// sessions fail on next use, not just on next login.
	IsActive bool

	// PropertyID is the home property for ADMIN accounts. NULL otherwise.
	PropertyID *string

	// LinkedRecordID points at the tenant record representing this account
	// when Role is TENANT. NULL otherwise.
	LinkedRecordID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sanitized returns a copy safe to serialize in API responses.
func (u *User) Sanitized() map[string]interface{} {
	return map[string]interface{}{
		"id":               u.ID,
		"username":         u.Username,
		"email":            u.Email,
		"name":             u.Name,
		"role":             u.Role,
		"is_active":        u.IsActive,
		"property_id":      u.PropertyID,
		"linked_record_id": u.LinkedRecordID,
		"created_at":       u.CreatedAt,
	}
}
