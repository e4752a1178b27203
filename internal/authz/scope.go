// Package authz implements the authorization scope engine: the pure mapping
// from (principal, resource class) to the visibility predicate every scoped
// read must apply before rows leave the core.
//
// The engine is deliberately free of I/O. Deciding *which* rows a role may see
// is a function of the role alone; *fetching* those rows is the repositories'
// job, and the three scoped communication queries correspond one-to-one with
// the predicate variants returned here. Handlers select their storage query by
// switching on the predicate kind, so there is no code path that reads scoped
// data without first passing through ScopeFor.
package authz

import (
	"errors"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/db/models"
)

// ResourceClass identifies a scoped resource family.
type ResourceClass int

const (
	// ResourceCommunications covers message threads and replies.
	ResourceCommunications ResourceClass = iota
	// ResourceUsers covers account management.
	ResourceUsers
	// ResourceAuditLogs covers the audit log list/stats/export surface.
	ResourceAuditLogs
)

// String returns a short name for logging.
func (c ResourceClass) String() string {
	switch c {
	case ResourceCommunications:
		return "communications"
	case ResourceUsers:
		return "users"
	case ResourceAuditLogs:
		return "audit_logs"
	default:
		return "unknown"
	}
}

// PredicateKind tags the scope predicate variants.
type PredicateKind int

const (
	// Unrestricted allows every row (IT tier).
	Unrestricted PredicateKind = iota
	// ByProperty allows rows that transitively belong to one property (ADMIN).
	ByProperty
	// BySender allows rows whose sender identity equals one linked record (TENANT).
	BySender
)

// ScopePredicate is the visibility filter a principal's role implies for a
// resource class. Exactly one of PropertyID / SenderID is set, matching Kind.
type ScopePredicate struct {
	Kind       PredicateKind
	PropertyID string // set when Kind == ByProperty
	SenderID   string // set when Kind == BySender
}

// Scope engine failure modes. The boundary maps ErrForbidden to 403 and
// ErrMisconfiguredPrincipal to 400.
var (
	// ErrForbidden is returned when a role has no access path to a resource
	// class at all. The engine refuses to produce a predicate rather than
	// producing one that filters to empty.
	ErrForbidden = errors.New("role has no access to resource class")

	// ErrMisconfiguredPrincipal is returned for an ADMIN with no property
	// assignment. Scoping never silently widens to unrestricted or narrows to
	// empty on a misconfigured account.
	ErrMisconfiguredPrincipal = errors.New("admin principal has no property assigned")
)

// ScopeFor computes the visibility predicate for a principal on a resource
// class. It is a deterministic pure function of the role; the switch is
// exhaustive over the closed Role enum.
func ScopeFor(p *auth.Principal, class ResourceClass) (ScopePredicate, error) {
	switch p.Role {
	case auth.RoleIT:
		return ScopePredicate{Kind: Unrestricted}, nil

	case auth.RoleAdmin:
		if p.PropertyID == nil || *p.PropertyID == "" {
			return ScopePredicate{}, ErrMisconfiguredPrincipal
		}
		switch class {
		case ResourceCommunications, ResourceUsers:
			return ScopePredicate{Kind: ByProperty, PropertyID: *p.PropertyID}, nil
		case ResourceAuditLogs:
			// Admins see the audit trail of their own property's activity;
			// the rows themselves are filtered by the handler via user scoping.
			return ScopePredicate{Kind: ByProperty, PropertyID: *p.PropertyID}, nil
		}

	case auth.RoleTenant:
		switch class {
		case ResourceCommunications:
			if p.LinkedRecordID == nil || *p.LinkedRecordID == "" {
				// A tenant account with no linked record cannot own any thread.
				return ScopePredicate{}, ErrForbidden
			}
			return ScopePredicate{Kind: BySender, SenderID: *p.LinkedRecordID}, nil
		case ResourceUsers, ResourceAuditLogs:
			return ScopePredicate{}, ErrForbidden
		}
	}

	return ScopePredicate{}, ErrForbidden
}

// CanCreateUser reports whether the principal may create an account with the
// given role. IT accounts are never creatable through the API; they are
// provisioned out of band.
func CanCreateUser(p *auth.Principal, target auth.Role) bool {
	if target == auth.RoleIT {
		return false
	}
	switch p.Role {
	case auth.RoleIT:
		return true
	case auth.RoleAdmin:
		return target == auth.RoleTenant
	default:
		return false
	}
}

// CanManageUser reports whether the principal may mutate (edit/deactivate) the
// target account. An ADMIN may only manage TENANT accounts within their own
// property; they can never touch another ADMIN or IT record.
func CanManageUser(p *auth.Principal, target *models.User) bool {
	switch p.Role {
	case auth.RoleIT:
		return true
	case auth.RoleAdmin:
		targetRole, err := auth.ParseRole(target.Role)
		if err != nil || targetRole != auth.RoleTenant {
			return false
		}
		if p.PropertyID == nil || target.PropertyID == nil {
			return false
		}
		return *p.PropertyID == *target.PropertyID
	default:
		return false
	}
}

// PropertyResolver resolves a message's transitive owning property via its
// sender record. A nil result means the chain did not resolve.
type PropertyResolver func(senderID string) (*string, error)

// AllowsCommunication applies the predicate to one message row. It is total:
// every row is either included or excluded. For ByProperty the row's property
// is resolved transitively; an unresolvable property excludes the row, never
// includes it by default.
func (sp ScopePredicate) AllowsCommunication(msg *models.Communication, resolve PropertyResolver) (bool, error) {
	switch sp.Kind {
	case Unrestricted:
		return true, nil
	case BySender:
		return msg.SenderID == sp.SenderID, nil
	case ByProperty:
		propertyID, err := resolve(msg.SenderID)
		if err != nil {
			return false, err
		}
		if propertyID == nil {
			return false, nil
		}
		return *propertyID == sp.PropertyID, nil
	default:
		return false, nil
	}
}

// AllowsThread applies the predicate to an aggregated thread using its root
// message, which is authoritative for thread ownership.
func (sp ScopePredicate) AllowsThread(t *models.Thread, resolve PropertyResolver) (bool, error) {
	return sp.AllowsCommunication(t.Root(), resolve)
}
