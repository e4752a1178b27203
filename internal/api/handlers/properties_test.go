package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/db/repositories"
	"github.com/estatedesk/estatedesk/internal/middleware"
)

func newPropertyRouter(t *testing.T, p *auth.Principal) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewPropertyHandlers(repositories.NewPropertyRepository(db))

	r := gin.New()
	r.Use(asPrincipal(p), middleware.RequireStaff())
	r.GET("/api/properties", h.ListPropertiesHandler())
	r.GET("/api/properties/:id", h.GetPropertyHandler())
	itOnly := middleware.RequireRole(auth.RoleIT)
	r.POST("/api/properties", itOnly, h.CreatePropertyHandler())
	r.POST("/api/properties/units", itOnly, h.CreateUnitHandler())
	r.POST("/api/properties/tenants", itOnly, h.CreateTenantHandler())
	return mock, r
}

func propertyRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows(propertySQLCols)
	for _, id := range ids {
		rows.AddRow(id, "Property "+id, id+" Main St", time.Now(), time.Now())
	}
	return rows
}

func TestListProperties_AdminSeesOnlyOwn(t *testing.T) {
	mock, r := newPropertyRouter(t, adminPrincipal("prop-A"))

	mock.ExpectQuery("SELECT .+ FROM properties").
		WillReturnRows(propertyRows("prop-A", "prop-B"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/properties", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	properties, _ := resp["properties"].([]interface{})
	if len(properties) != 1 {
		t.Fatalf("properties = %d, want 1", len(properties))
	}
	if first, _ := properties[0].(map[string]interface{}); first["id"] != "prop-A" {
		t.Errorf("property id = %v, want prop-A", first["id"])
	}
}

func TestGetProperty_AdminForeignPropertyIs404(t *testing.T) {
	// The handler rejects before ever querying storage.
	_, r := newPropertyRouter(t, adminPrincipal("prop-A"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/properties/prop-B", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCreateProperty_AdminBlockedByRoleGate(t *testing.T) {
	_, r := newPropertyRouter(t, adminPrincipal("prop-A"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/properties",
		jsonBody(map[string]string{"name": "New Tower", "address": "9 High St"})))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestCreateProperty_ITSuccess(t *testing.T) {
	mock, r := newPropertyRouter(t, itPrincipal())

	mock.ExpectExec("INSERT INTO properties").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/properties",
		jsonBody(map[string]string{"name": "New Tower", "address": "9 High St"})))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	if resp := getJSON(w); resp["property"] == nil {
		t.Error("response missing 'property' key")
	}
}

func TestCreateUnit_UnknownProperty404(t *testing.T) {
	mock, r := newPropertyRouter(t, itPrincipal())

	mock.ExpectQuery("SELECT .+ FROM properties WHERE id").
		WillReturnRows(sqlmock.NewRows(propertySQLCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/properties/units",
		jsonBody(map[string]string{"property_id": "missing", "label": "2B"})))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCreateTenant_ITSuccess(t *testing.T) {
	mock, r := newPropertyRouter(t, itPrincipal())

	mock.ExpectExec("INSERT INTO tenants").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/properties/tenants",
		jsonBody(map[string]string{"unit_id": "unit-1", "name": "Terry", "email": "terry@example.com"})))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
}
