// Package identity resolves session tokens to principals. Every request passes
// through here before any scoped resource is touched.
//
// Two token shapes are accepted, tried in order:
//
//  1. Session JWTs — stateless signature check, no storage round-trip.
//  2. Opaque session tokens — looked up in the session store (Redis) when one
//     is configured. JWT is attempted first because it requires no I/O.
//
// Both paths re-read the user row on every resolution so that deactivating an
// account (is_active = false) invalidates its existing sessions immediately,
// not just at next login. The resolver never caches: a principal is derived
// fresh per request from session state and the current user row.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/db/models"
)

// Resolution failure modes. Both map to HTTP 401 at the boundary.
var (
	// ErrUnauthenticated covers a missing, invalid, or expired token, and a
	// token referencing a deactivated account.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPrincipalNotFound covers a valid token referencing a user row that no
	// longer exists.
	ErrPrincipalNotFound = errors.New("principal not found")
)

// UserStore is the slice of the user repository the resolver needs.
type UserStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// SessionStore looks up opaque session tokens. Lookup returns the user id the
// token maps to, or "" when the token is unknown or expired.
type SessionStore interface {
	Lookup(ctx context.Context, token string) (string, error)
}

// Resolver turns bearer tokens into principals.
type Resolver struct {
	users    UserStore
	sessions SessionStore // nil when no session store is configured
}

// NewResolver creates a Resolver. sessions may be nil, in which case only JWTs
// are accepted.
func NewResolver(users UserStore, sessions SessionStore) *Resolver {
	return &Resolver{users: users, sessions: sessions}
}

// Resolve maps a bearer token to a Principal or fails with ErrUnauthenticated /
// ErrPrincipalNotFound. It has no side effects.
func (r *Resolver) Resolve(ctx context.Context, token string) (*auth.Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	userID, err := r.resolveUserID(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if user == nil {
		return nil, ErrPrincipalNotFound
	}

	// A revoked account's existing sessions fail on next resolution.
	if !user.IsActive {
		return nil, ErrUnauthenticated
	}

	role, err := auth.ParseRole(user.Role)
	if err != nil {
		// A user row with a role outside the closed set never resolves.
		return nil, fmt.Errorf("user %s has invalid role: %w", userID, err)
	}

	return &auth.Principal{
		ID:             user.ID,
		Role:           role,
		Email:          user.Email,
		Name:           user.Name,
		PropertyID:     user.PropertyID,
		LinkedRecordID: user.LinkedRecordID,
	}, nil
}

func (r *Resolver) resolveUserID(ctx context.Context, token string) (string, error) {
	// JWT first: purely cryptographic, no storage round-trip.
	if claims, err := auth.ValidateJWT(token); err == nil {
		return claims.UserID, nil
	}

	if r.sessions == nil {
		return "", ErrUnauthenticated
	}

	userID, err := r.sessions.Lookup(ctx, token)
	if err != nil {
		return "", fmt.Errorf("session lookup failed: %w", err)
	}
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}
