// Package auth - role.go defines the closed set of account roles and the
// Principal type every request resolves to before touching any resource.
//
// Roles are a tagged enum rather than free strings so that the scope engine can
// switch exhaustively over them: adding a role is a compile-surface change, not
// a string-literal hunt across handlers.
package auth

import "fmt"

// Role is the account role tier. The hierarchy is IT > ADMIN > TENANT.
type Role int

const (
	// RoleTenant is a resident account linked to a tenant record. Tenants only
	// ever see their own communication threads.
	RoleTenant Role = iota
	// RoleAdmin is a property manager account scoped to a single property.
	RoleAdmin
	// RoleIT is the unrestricted operations tier. IT accounts cannot be created
	// through the API; they are provisioned out of band.
	RoleIT
)

// roleNames maps roles to their wire/database representation.
var roleNames = map[Role]string{
	RoleTenant: "TENANT",
	RoleAdmin:  "ADMIN",
	RoleIT:     "IT",
}

// String returns the canonical wire name of the role.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Valid reports whether r is one of the three defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole converts a stored role string into a Role. Unknown values are an
// error rather than a silent default so a corrupted user row can never be
// promoted to a broader tier.
func ParseRole(s string) (Role, error) {
	switch s {
	case "TENANT":
		return RoleTenant, nil
	case "ADMIN":
		return RoleAdmin, nil
	case "IT":
		return RoleIT, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Principal is the resolved actor for one request. It is constructed fresh per
// request from session state and never persisted.
type Principal struct {
	ID    string
	Role  Role
	Email string
	Name  string

	// PropertyID is the home property an ADMIN is scoped to. Nil for IT and
	// for misconfigured ADMIN accounts (which fail scoping with a 400).
	PropertyID *string

	// LinkedRecordID is the tenant/owner record representing this principal
	// when Role is RoleTenant. Nil otherwise.
	LinkedRecordID *string
}

// DisplayName returns the best human-readable identifier for audit entries.
func (p *Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}
