// audit_repository.go implements AuditRepository, providing database queries for
// writing and retrieving audit log entries with support for filtered queries and
// the stats aggregation served beside the list view. The application never
// updates or deletes rows here; the only deletion path is the retention sweep.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/estatedesk/estatedesk/internal/db/models"
	"github.com/estatedesk/estatedesk/pkg/checksum"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db  *sql.DB
	dbx *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db, dbx: sqlx.NewDb(db, "postgres")}
}

// AuditFilters contains filters for querying audit logs. The same filter set
// drives both the list view and the stats aggregation so the two always agree.
type AuditFilters struct {
	UserID *string
	// UserIDs restricts results to a set of actors. Property-scoped admins get
	// this set to the accounts of their own property.
	UserIDs    []string
	Action     *string
	EntityType *string
	EntityID   *string
	StartDate  *time.Time
	EndDate    *time.Time
}

// whereClause renders the filters as a SQL condition starting at parameter
// $offset, returning the clause and its bind arguments.
func (f AuditFilters) whereClause() (string, []interface{}) {
	clause := ` WHERE 1=1`
	args := make([]interface{}, 0)

	add := func(cond string, v interface{}) {
		args = append(args, v)
		clause += fmt.Sprintf(cond, len(args))
	}

	if f.UserID != nil {
		add(` AND user_id = $%d`, *f.UserID)
	}
	if len(f.UserIDs) > 0 {
		add(` AND user_id = ANY($%d)`, pq.Array(f.UserIDs))
	}
	if f.Action != nil {
		add(` AND action = $%d`, *f.Action)
	}
	if f.EntityType != nil {
		add(` AND entity_type = $%d`, *f.EntityType)
	}
	if f.EntityID != nil {
		add(` AND entity_id = $%d`, *f.EntityID)
	}
	if f.StartDate != nil {
		add(` AND created_at >= $%d`, *f.StartDate)
	}
	if f.EndDate != nil {
		add(` AND created_at <= $%d`, *f.EndDate)
	}

	return clause, args
}

// CreateAuditLog creates a new audit log entry, linking it into the tamper
// evidence chain. The chain hash commits to the previous entry's hash plus this
// entry's canonical JSON, so any later rewrite of a stored row is detectable.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()

	marshal := func(m map[string]interface{}) ([]byte, error) {
		if m == nil {
			return nil, nil
		}
		return json.Marshal(m)
	}

	oldJSON, err := marshal(log.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshal(log.NewValues)
	if err != nil {
		return err
	}
	metadataJSON, err := marshal(log.Metadata)
	if err != nil {
		return err
	}

	// Read the chain head. A concurrent writer can race this read; the chain
	// then forks rather than corrupts, which verification still detects.
	var prevHash string
	err = r.db.QueryRowContext(ctx,
		`SELECT chain_hash FROM audit_logs ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&prevHash)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	log.ChainHash = checksum.ChainSHA256(prevHash, canonicalAuditBytes(log, oldJSON, newJSON))

	query := `
		INSERT INTO audit_logs (id, user_id, action, entity_type, entity_id, old_values, new_values, ip_address, user_agent, metadata, chain_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		oldJSON,
		newJSON,
		log.IPAddress,
		log.UserAgent,
		metadataJSON,
		log.ChainHash,
		log.CreatedAt,
	)

	return err
}

// canonicalAuditBytes renders the hash input for one entry. Field order is
// fixed; metadata is excluded because it carries operational context (request
// ids, status codes) rather than the audited state itself.
func canonicalAuditBytes(log *models.AuditLog, oldJSON, newJSON []byte) []byte {
	userID := ""
	if log.UserID != nil {
		userID = *log.UserID
	}
	entityID := ""
	if log.EntityID != nil {
		entityID = *log.EntityID
	}
	return []byte(fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%d",
		log.ID, userID, log.Action, log.EntityType, entityID,
		oldJSON, newJSON, log.CreatedAt.UnixNano()))
}

const auditColumns = `id, user_id, action, entity_type, entity_id, old_values, new_values, ip_address, user_agent, metadata, chain_hash, created_at`

func scanAuditLog(row interface{ Scan(...interface{}) error }) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var oldJSON, newJSON, metadataJSON []byte

	err := row.Scan(
		&log.ID,
		&log.UserID,
		&log.Action,
		&log.EntityType,
		&log.EntityID,
		&oldJSON,
		&newJSON,
		&log.IPAddress,
		&log.UserAgent,
		&metadataJSON,
		&log.ChainHash,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, pair := range []struct {
		raw []byte
		dst *map[string]interface{}
	}{
		{oldJSON, &log.OldValues},
		{newJSON, &log.NewValues},
		{metadataJSON, &log.Metadata},
	} {
		if pair.raw != nil {
			if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
				return nil, err
			}
		}
	}

	return log, nil
}

// ListAuditLogs retrieves audit logs with optional filters and pagination,
// newest first.
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	where, args := filters.whereClause()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}

	return logs, total, rows.Err()
}

// GetAuditLogStats aggregates the filtered set: total count, per-action counts,
// the ten most active users joined to display names, and the ten most recent
// entries. Every query reuses the list view's WHERE clause so the stats can
// never disagree with the list.
func (r *AuditRepository) GetAuditLogStats(ctx context.Context, filters AuditFilters) (*models.AuditLogStats, error) {
	where, args := filters.whereClause()

	stats := &models.AuditLogStats{
		ActionsByType: make(map[string]int64),
		ActionsByUser: make([]models.UserActionCount, 0),
		RecentActions: make([]*models.AuditLog, 0),
	}

	if err := r.dbx.GetContext(ctx, &stats.TotalActions,
		`SELECT COUNT(*) FROM audit_logs`+where, args...); err != nil {
		return nil, err
	}

	type actionCount struct {
		Action string `db:"action"`
		Count  int64  `db:"count"`
	}
	var byType []actionCount
	if err := r.dbx.SelectContext(ctx, &byType,
		`SELECT action, COUNT(*) AS count FROM audit_logs`+where+` GROUP BY action`,
		args...); err != nil {
		return nil, err
	}
	for _, ac := range byType {
		stats.ActionsByType[ac.Action] = ac.Count
	}

	type userCount struct {
		UserID string `db:"user_id"`
		Name   string `db:"name"`
		Count  int64  `db:"count"`
	}
	var byUser []userCount
	userQuery := `
		SELECT a.user_id, COALESCE(u.name, '') AS name, COUNT(*) AS count
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id` +
		// re-anchor the shared clause onto the aliased table
		sqlxRewhere(where) + `
		AND a.user_id IS NOT NULL
		GROUP BY a.user_id, u.name
		ORDER BY count DESC
		LIMIT 10
	`
	if err := r.dbx.SelectContext(ctx, &byUser, userQuery, args...); err != nil {
		return nil, err
	}
	for _, uc := range byUser {
		stats.ActionsByUser = append(stats.ActionsByUser, models.UserActionCount(uc))
	}

	recent, _, err := r.ListAuditLogs(ctx, filters, 10, 0)
	if err != nil {
		return nil, err
	}
	stats.RecentActions = recent

	return stats, nil
}

// sqlxRewhere qualifies the shared filter clause's bare columns with the audit
// table alias used by the per-user join.
func sqlxRewhere(where string) string {
	replacements := []struct{ from, to string }{
		{"user_id", "a.user_id"},
		{"action", "a.action"},
		{"entity_type", "a.entity_type"},
		{"entity_id", "a.entity_id"},
		{"created_at", "a.created_at"},
	}
	out := where
	for _, rp := range replacements {
		out = strings.ReplaceAll(out, " "+rp.from+" ", " "+rp.to+" ")
	}
	return out
}

// DeleteOlderThan removes audit rows past the retention horizon. This is the
// retention sweep's entry point and is not reachable from request handling.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
