package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/config"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("ESD_JWT_SECRET", "test-router-jwt-secret-is-32chars!")
	os.Exit(m.Run())
}

// testConfig returns a config with every external dependency switched off so
// NewRouter wires no Redis, no shippers, and no background sweeper.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	return cfg
}

func newTestRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r, bg := NewRouter(testConfig(), db)
	t.Cleanup(bg.Shutdown)
	return mock, r
}

func TestHealthEndpoint(t *testing.T) {
	_, r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestVersionEndpoint(t *testing.T) {
	_, r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/version", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	_, r := newTestRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/api/communications"},
		{"GET", "/api/users"},
		{"GET", "/api/audit-logs"},
		{"GET", "/api/properties"},
		{"POST", "/api/auth/logout"},
	}

	for _, p := range paths {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(p.method, p.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	_, r := newTestRouter(t)

	req := httptest.NewRequest("OPTIONS", "/api/communications", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("missing Access-Control-Allow-Origin header")
	}
}

func TestShutdownIsIdempotentWithNothingRunning(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	_, bg := NewRouter(testConfig(), db)
	bg.Shutdown()
}
