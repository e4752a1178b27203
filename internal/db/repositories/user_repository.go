// Package repositories implements the data access layer (repository pattern) for EstateDesk.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly — all database access goes through this layer, which makes query logic testable in isolation and prevents accidental cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/estatedesk/estatedesk/internal/db/models"
)

const userColumns = `id, username, email, name, password_hash, role, is_active, property_id, linked_record_id, created_at, updated_at`

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.PropertyID,
		&user.LinkedRecordID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser creates a new user
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	query := `
		INSERT INTO users (id, username, email, name, password_hash, role, is_active, property_id, linked_record_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.IsActive,
		user.PropertyID,
		user.LinkedRecordID,
		user.CreatedAt,
		user.UpdatedAt,
	)

	return err
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers retrieves users with pagination, optionally restricted to one property.
// propertyID == nil returns all users (the Unrestricted predicate).
func (r *UserRepository) ListUsers(ctx context.Context, propertyID *string, limit, offset int) ([]*models.User, int, error) {
	countQuery := `SELECT COUNT(*) FROM users`
	query := `SELECT ` + userColumns + ` FROM users`

	args := make([]interface{}, 0, 3)
	if propertyID != nil {
		countQuery += ` WHERE property_id = $1`
		query += ` WHERE property_id = $1`
		args = append(args, *propertyID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC`
	if propertyID != nil {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// UpdateUser applies a partial update to a user row. Only non-nil fields are written.
type UserUpdate struct {
	Email    *string
	Name     *string
	IsActive *bool
}

// UpdateUser updates the mutable fields of a user
func (r *UserRepository) UpdateUser(ctx context.Context, userID string, upd UserUpdate) error {
	query := `
		UPDATE users
		SET email = COALESCE($2, email),
		    name = COALESCE($3, name),
		    is_active = COALESCE($4, is_active),
		    updated_at = $5
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, userID, upd.Email, upd.Name, upd.IsActive, time.Now())
	return err
}

// DeactivateUser flips is_active off. Existing sessions for the user fail on
// their next resolution.
func (r *UserRepository) DeactivateUser(ctx context.Context, userID string) error {
	query := `UPDATE users SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, time.Now())
	return err
}
