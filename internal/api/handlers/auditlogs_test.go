package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/db/repositories"
	"github.com/estatedesk/estatedesk/internal/middleware"
)

// newAuditRouter registers the audit-log routes behind the staff gate, the way
// the real router does.
func newAuditRouter(t *testing.T, p *auth.Principal) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewAuditLogHandlers(repositories.NewAuditRepository(db), repositories.NewUserRepository(db))

	r := gin.New()
	r.Use(asPrincipal(p), middleware.RequireStaff())
	r.GET("/api/audit-logs", h.ListAuditLogsHandler())
	r.GET("/api/audit-logs/stats", h.GetAuditLogStatsHandler())
	r.GET("/api/audit-logs/export", h.ExportAuditLogsHandler())
	return mock, r
}

func TestListAuditLogs_ITWithActionFilter(t *testing.T) {
	mock, r := newAuditRouter(t, itPrincipal())

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_logs").
		WithArgs("LOGIN_FAILED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .+ FROM audit_logs .+ ORDER BY created_at DESC").
		WithArgs("LOGIN_FAILED", 20, 0).
		WillReturnRows(auditRow("a1", "LOGIN_FAILED"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/audit-logs?action=LOGIN_FAILED", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["audit_logs"] == nil || resp["pagination"] == nil {
		t.Error("response missing 'audit_logs' or 'pagination'")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("filter not applied: %v", err)
	}
}

func TestListAuditLogs_AdminNarrowedToPropertyActors(t *testing.T) {
	// An ADMIN's audit view is limited to entries written by their own
	// property's accounts; the handler resolves the actor set first.
	mock, r := newAuditRouter(t, adminPrincipal("prop-A"))

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE property_id").
		WithArgs("prop-A").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .+ FROM users WHERE property_id").
		WillReturnRows(userRow("t1", "TENANT", "prop-A"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_logs WHERE 1=1 AND user_id = ANY").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT .+ FROM audit_logs WHERE 1=1 AND user_id = ANY").
		WillReturnRows(sqlmock.NewRows(auditSQLCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/audit-logs", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("audit query not narrowed to property actors: %v", err)
	}
}

func TestListAuditLogs_ActorSetSpansMultiplePages(t *testing.T) {
	// Properties with more accounts than one page holds must still contribute
	// their full actor set; the handler keeps fetching until it has everyone.
	mock, r := newAuditRouter(t, adminPrincipal("prop-A"))

	total := actorPageSize + 1
	firstPage := sqlmock.NewRows(userSQLCols)
	for i := 0; i < actorPageSize; i++ {
		id := fmt.Sprintf("u-%04d", i)
		firstPage.AddRow(id, "user-"+id, id+"@example.com", "User "+id,
			"$2a$10$hash", "TENANT", true, "prop-A", nil, time.Now(), time.Now())
	}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE property_id").
		WithArgs("prop-A").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(total))
	mock.ExpectQuery("SELECT .+ FROM users WHERE property_id").
		WithArgs("prop-A", actorPageSize, 0).
		WillReturnRows(firstPage)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE property_id").
		WithArgs("prop-A").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(total))
	mock.ExpectQuery("SELECT .+ FROM users WHERE property_id").
		WithArgs("prop-A", actorPageSize, actorPageSize).
		WillReturnRows(userRow("u-last", "TENANT", "prop-A"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_logs WHERE 1=1 AND user_id = ANY").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT .+ FROM audit_logs WHERE 1=1 AND user_id = ANY").
		WillReturnRows(sqlmock.NewRows(auditSQLCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/audit-logs", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("actor set not fully paged: %v", err)
	}
}

func TestListAuditLogs_TenantBlocked(t *testing.T) {
	_, r := newAuditRouter(t, tenantPrincipal("T1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/audit-logs", nil))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestListAuditLogs_BadDateFilter(t *testing.T) {
	_, r := newAuditRouter(t, itPrincipal())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/audit-logs?start_date=yesterday", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestExportAuditLogs_StreamsCSV(t *testing.T) {
	mock, r := newAuditRouter(t, itPrincipal())

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .+ FROM audit_logs").
		WillReturnRows(auditRow("a1", "CREATE"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/audit-logs/export", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q, want attachment", cd)
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header + 1 row: %q", len(lines), w.Body.String())
	}
	if !strings.HasPrefix(lines[0], "id,created_at,user_id,action") {
		t.Errorf("unexpected csv header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "a1") || !strings.Contains(lines[1], "CREATE") {
		t.Errorf("unexpected csv row: %q", lines[1])
	}
}
