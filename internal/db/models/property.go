// Package models - property.go defines the minimal property catalog the
// authorization core needs: properties, units, and the tenant records that
// anchor the sender → unit → property join used by ByProperty scoping.
package models

import "time"

// Property represents a managed building or complex
type Property struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Unit represents a rentable unit belonging to a property
type Unit struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	Label      string    `json:"label"` // "2B", "Penthouse", ...
	CreatedAt  time.Time `json:"created_at"`
}

// Tenant represents a resident record occupying a unit. TENANT-role users link
// to exactly one of these via users.linked_record_id.
type Tenant struct {
	ID        string    `json:"id"`
	UnitID    string    `json:"unit_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
