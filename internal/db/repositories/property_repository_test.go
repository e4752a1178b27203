package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/estatedesk/estatedesk/internal/db/models"
)

var propertyCols = []string{"id", "name", "address", "created_at", "updated_at"}

func newPropertyRepo(t *testing.T) (*PropertyRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPropertyRepository(db), mock
}

func TestCreateProperty_Success(t *testing.T) {
	repo, mock := newPropertyRepo(t)
	mock.ExpectExec("INSERT INTO properties").
		WillReturnResult(sqlmock.NewResult(1, 1))

	p := &models.Property{Name: "Maple Court", Address: "12 Maple St"}
	if err := repo.CreateProperty(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == "" {
		t.Error("expected generated property ID")
	}
}

func TestGetPropertyByID_Found(t *testing.T) {
	repo, mock := newPropertyRepo(t)
	mock.ExpectQuery("SELECT .+ FROM properties WHERE id").
		WithArgs("prop-1").
		WillReturnRows(sqlmock.NewRows(propertyCols).
			AddRow("prop-1", "Maple Court", "12 Maple St", time.Now(), time.Now()))

	p, err := repo.GetPropertyByID(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.Name != "Maple Court" {
		t.Fatalf("expected Maple Court, got %+v", p)
	}
}

func TestGetPropertyByID_NotFoundReturnsNilNil(t *testing.T) {
	repo, mock := newPropertyRepo(t)
	mock.ExpectQuery("SELECT .+ FROM properties WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(propertyCols))

	p, err := repo.GetPropertyByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil for missing property, got %+v", p)
	}
}

func TestListProperties_OrderedByName(t *testing.T) {
	repo, mock := newPropertyRepo(t)
	mock.ExpectQuery("SELECT .+ FROM properties ORDER BY name").
		WillReturnRows(sqlmock.NewRows(propertyCols).
			AddRow("prop-1", "Aspen Row", "3 Aspen Ave", time.Now(), time.Now()).
			AddRow("prop-2", "Maple Court", "12 Maple St", time.Now(), time.Now()))

	props, err := repo.ListProperties(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(props) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(props))
	}
}

func TestCreateUnit_Success(t *testing.T) {
	repo, mock := newPropertyRepo(t)
	mock.ExpectExec("INSERT INTO units").
		WillReturnResult(sqlmock.NewResult(1, 1))

	u := &models.Unit{PropertyID: "prop-1", Label: "4B"}
	if err := repo.CreateUnit(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID == "" {
		t.Error("expected generated unit ID")
	}
}

func TestCreateTenant_Success(t *testing.T) {
	repo, mock := newPropertyRepo(t)
	mock.ExpectExec("INSERT INTO tenants").
		WillReturnResult(sqlmock.NewResult(1, 1))

	tn := &models.Tenant{UnitID: "unit-1", Name: "Jane Doe", Email: "jane@example.com"}
	if err := repo.CreateTenant(context.Background(), tn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tn.ID == "" {
		t.Error("expected generated tenant ID")
	}
}

func TestGetTenantByID_NotFoundReturnsNilNil(t *testing.T) {
	repo, mock := newPropertyRepo(t)
	mock.ExpectQuery("SELECT .+ FROM tenants WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "unit_id", "name", "email", "phone", "created_at"}))

	tn, err := repo.GetTenantByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tn != nil {
		t.Errorf("expected nil for missing tenant, got %+v", tn)
	}
}
