package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/db/models"
)

type fakeUserStore struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

type fakeSessionStore struct {
	tokens map[string]string
}

func (f *fakeSessionStore) Lookup(_ context.Context, token string) (string, error) {
	return f.tokens[token], nil
}

func activeUser(id, role string) *models.User {
	return &models.User{ID: id, Role: role, IsActive: true, Email: id + "@example.com"}
}

func issueToken(t *testing.T, userID string) string {
	t.Helper()
	t.Setenv("DEV_MODE", "true")
	token, err := auth.GenerateJWT(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

func TestResolveJWT(t *testing.T) {
	users := &fakeUserStore{users: map[string]*models.User{
		"user-1": activeUser("user-1", "ADMIN"),
	}}
	users.users["user-1"].PropertyID = func() *string { s := "prop-A"; return &s }()

	r := NewResolver(users, nil)
	p, err := r.Resolve(context.Background(), issueToken(t, "user-1"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, auth.RoleAdmin, p.Role)
	require.NotNil(t, p.PropertyID)
	assert.Equal(t, "prop-A", *p.PropertyID)
}

func TestResolveEmptyToken(t *testing.T) {
	r := NewResolver(&fakeUserStore{}, nil)
	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveGarbageToken(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	r := NewResolver(&fakeUserStore{}, nil)
	_, err := r.Resolve(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveMissingUser(t *testing.T) {
	r := NewResolver(&fakeUserStore{users: map[string]*models.User{}}, nil)
	_, err := r.Resolve(context.Background(), issueToken(t, "ghost"))
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestResolveDeactivatedUser(t *testing.T) {
	// Deactivation invalidates a still-valid token on next resolution.
	u := activeUser("user-1", "TENANT")
	users := &fakeUserStore{users: map[string]*models.User{"user-1": u}}
	r := NewResolver(users, nil)

	token := issueToken(t, "user-1")
	_, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)

	u.IsActive = false
	_, err = r.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveInvalidRole(t *testing.T) {
	users := &fakeUserStore{users: map[string]*models.User{
		"user-1": {ID: "user-1", Role: "SUPERUSER", IsActive: true},
	}}
	r := NewResolver(users, nil)
	_, err := r.Resolve(context.Background(), issueToken(t, "user-1"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPrincipalNotFound)
}

func TestResolveOpaqueSession(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	users := &fakeUserStore{users: map[string]*models.User{
		"user-2": activeUser("user-2", "TENANT"),
	}}
	sessions := &fakeSessionStore{tokens: map[string]string{"sess-abc": "user-2"}}

	r := NewResolver(users, sessions)
	p, err := r.Resolve(context.Background(), "sess-abc")
	require.NoError(t, err)
	assert.Equal(t, "user-2", p.ID)

	_, err = r.Resolve(context.Background(), "sess-unknown")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveStoreError(t *testing.T) {
	users := &fakeUserStore{err: errors.New("db down")}
	r := NewResolver(users, nil)
	_, err := r.Resolve(context.Background(), issueToken(t, "user-1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}
