package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"net/http/httptest"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Column definitions matching the repository scanners
// ---------------------------------------------------------------------------

var userSQLCols = []string{
	"id", "username", "email", "name", "password_hash", "role", "is_active",
	"property_id", "linked_record_id", "created_at", "updated_at",
}

var commSQLCols = []string{
	"id", "thread_id", "seq", "sender_id", "sender_name", "sender_role",
	"subject", "body", "category", "status", "attachments", "created_at",
}

var auditSQLCols = []string{
	"id", "user_id", "action", "entity_type", "entity_id", "old_values",
	"new_values", "ip_address", "user_agent", "metadata", "chain_hash", "created_at",
}

var propertySQLCols = []string{"id", "name", "address", "created_at", "updated_at"}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func userRow(id, role string, propertyID interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(userSQLCols).
		AddRow(id, "user-"+id, id+"@example.com", "User "+id, "$2a$10$hash", role, true,
			propertyID, nil, time.Now(), time.Now())
}

func emptyUserRows() *sqlmock.Rows {
	return sqlmock.NewRows(userSQLCols)
}

func commRow(id, threadID string, seq int64, senderID, subject, status string, at time.Time) []driverValue {
	return []driverValue{id, threadID, seq, senderID, "Sender " + senderID, "TENANT",
		subject, "body of " + id, "MAINTENANCE", status, nil, at}
}

// driverValue keeps the row builders readable without spelling out
// database/sql/driver at every call site. Rows built as []driverValue spread
// straight into sqlmock's AddRow.
type driverValue = driver.Value

func commRows(rows ...[]driverValue) *sqlmock.Rows {
	out := sqlmock.NewRows(commSQLCols)
	for _, r := range rows {
		out.AddRow(r...)
	}
	return out
}

func auditRow(id, action string) *sqlmock.Rows {
	return sqlmock.NewRows(auditSQLCols).
		AddRow(id, "user-1", action, "communication", nil, nil, nil, nil, nil, nil, "hash-"+id, time.Now())
}

// ---------------------------------------------------------------------------
// Principal fixtures
// ---------------------------------------------------------------------------

func itPrincipal() *auth.Principal {
	return &auth.Principal{ID: "it-1", Role: auth.RoleIT, Email: "it@example.com", Name: "IT One"}
}

func adminPrincipal(propertyID string) *auth.Principal {
	return &auth.Principal{
		ID: "admin-1", Role: auth.RoleAdmin, Email: "admin@example.com",
		Name: "Admin One", PropertyID: &propertyID,
	}
}

func tenantPrincipal(linkedRecordID string) *auth.Principal {
	return &auth.Principal{
		ID: "tenant-1", Role: auth.RoleTenant, Email: "tenant@example.com",
		Name: "Tenant One", LinkedRecordID: &linkedRecordID,
	}
}

// asPrincipal injects a resolved principal the way the auth middleware does.
func asPrincipal(p *auth.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.PrincipalKey, p)
		c.Set(middleware.UserIDKey, p.ID)
		c.Next()
	}
}

// ---------------------------------------------------------------------------
// Request/response helpers
// ---------------------------------------------------------------------------

func jsonBody(v interface{}) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func getJSON(resp *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &m)
	return m
}

// errDB is a sentinel error for DB failures in tests.
var errDB = &dbError{"database error"}

type dbError struct{ msg string }

func (e *dbError) Error() string { return e.msg }
