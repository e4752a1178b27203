// property_repository.go implements PropertyRepository, the minimal catalog
// accessor the scoping joins and property handlers need.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/estatedesk/estatedesk/internal/db/models"
)

// PropertyRepository handles property, unit, and tenant database operations
type PropertyRepository struct {
	db *sql.DB
}

// NewPropertyRepository creates a new PropertyRepository
func NewPropertyRepository(db *sql.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// CreateProperty creates a new property
func (r *PropertyRepository) CreateProperty(ctx context.Context, p *models.Property) error {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()

	query := `
		INSERT INTO properties (id, name, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.Address, p.CreatedAt, p.UpdatedAt)
	return err
}

// GetPropertyByID retrieves a property by ID
func (r *PropertyRepository) GetPropertyByID(ctx context.Context, id string) (*models.Property, error) {
	query := `SELECT id, name, address, created_at, updated_at FROM properties WHERE id = $1`

	p := &models.Property{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProperties retrieves all properties
func (r *PropertyRepository) ListProperties(ctx context.Context) ([]*models.Property, error) {
	query := `SELECT id, name, address, created_at, updated_at FROM properties ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	props := make([]*models.Property, 0)
	for rows.Next() {
		p := &models.Property{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

// CreateUnit creates a new unit under a property
func (r *PropertyRepository) CreateUnit(ctx context.Context, u *models.Unit) error {
	u.ID = uuid.New().String()
	u.CreatedAt = time.Now()

	query := `INSERT INTO units (id, property_id, label, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, u.ID, u.PropertyID, u.Label, u.CreatedAt)
	return err
}

// CreateTenant creates a new tenant record in a unit
func (r *PropertyRepository) CreateTenant(ctx context.Context, t *models.Tenant) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now()

	query := `
		INSERT INTO tenants (id, unit_id, name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.UnitID, t.Name, t.Email, t.Phone, t.CreatedAt)
	return err
}

// GetTenantByID retrieves a tenant record by ID
func (r *PropertyRepository) GetTenantByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `SELECT id, unit_id, name, email, phone, created_at FROM tenants WHERE id = $1`

	t := &models.Tenant{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.UnitID, &t.Name, &t.Email, &t.Phone, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
