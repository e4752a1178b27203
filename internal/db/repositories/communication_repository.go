// communication_repository.go implements CommunicationRepository, the storage
// accessor for message rows. The three scoped list queries (all / by property /
// by sender) correspond one-to-one with the scope predicate variants, so a
// handler can never run a broader query than its predicate allows.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/estatedesk/estatedesk/internal/db/models"
)

const communicationColumns = `id, thread_id, seq, sender_id, sender_name, sender_role, subject, body, category, status, attachments, created_at`

// CommunicationRepository handles communication message database operations
type CommunicationRepository struct {
	db *sql.DB
}

// NewCommunicationRepository creates a new CommunicationRepository
func NewCommunicationRepository(db *sql.DB) *CommunicationRepository {
	return &CommunicationRepository{db: db}
}

func scanCommunication(row interface{ Scan(...interface{}) error }) (*models.Communication, error) {
	msg := &models.Communication{}
	var attachmentsJSON []byte

	err := row.Scan(
		&msg.ID,
		&msg.ThreadID,
		&msg.Seq,
		&msg.SenderID,
		&msg.SenderName,
		&msg.SenderRole,
		&msg.Subject,
		&msg.Body,
		&msg.Category,
		&msg.Status,
		&attachmentsJSON,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if attachmentsJSON != nil {
		if err := json.Unmarshal(attachmentsJSON, &msg.Attachments); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

func (r *CommunicationRepository) queryCommunications(ctx context.Context, query string, args ...interface{}) ([]models.Communication, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]models.Communication, 0)
	for rows.Next() {
		msg, err := scanCommunication(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}

	return msgs, rows.Err()
}

// CreateCommunication inserts a new message row. Seq is assigned by the
// database sequence, so insertion order is recoverable even when created_at
// timestamps collide.
func (r *CommunicationRepository) CreateCommunication(ctx context.Context, msg *models.Communication) error {
	msg.ID = uuid.New().String()
	if msg.ThreadID == "" {
		msg.ThreadID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()

	var attachmentsJSON []byte
	var err error
	if msg.Attachments != nil {
		attachmentsJSON, err = json.Marshal(msg.Attachments)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO communications (id, thread_id, sender_id, sender_name, sender_role, subject, body, category, status, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq
	`

	return r.db.QueryRowContext(ctx, query,
		msg.ID,
		msg.ThreadID,
		msg.SenderID,
		msg.SenderName,
		msg.SenderRole,
		msg.Subject,
		msg.Body,
		msg.Category,
		msg.Status,
		attachmentsJSON,
		msg.CreatedAt,
	).Scan(&msg.Seq)
}

// GetCommunicationsByThreadID retrieves all messages of one thread
func (r *CommunicationRepository) GetCommunicationsByThreadID(ctx context.Context, threadID string) ([]models.Communication, error) {
	query := `SELECT ` + communicationColumns + ` FROM communications WHERE thread_id = $1`
	return r.queryCommunications(ctx, query, threadID)
}

// GetAllCommunications retrieves every message row (Unrestricted predicate)
func (r *CommunicationRepository) GetAllCommunications(ctx context.Context) ([]models.Communication, error) {
	query := `SELECT ` + communicationColumns + ` FROM communications`
	return r.queryCommunications(ctx, query)
}

// GetCommunicationsByPropertyID retrieves messages whose sender record resolves
// transitively to the given property (ByProperty predicate). The join walks
// sender tenant → unit → property; rows with no resolvable property are
// excluded by the inner join, never included by default.
func (r *CommunicationRepository) GetCommunicationsByPropertyID(ctx context.Context, propertyID string) ([]models.Communication, error) {
	query := `
		SELECT c.id, c.thread_id, c.seq, c.sender_id, c.sender_name, c.sender_role, c.subject, c.body, c.category, c.status, c.attachments, c.created_at
		FROM communications c
		JOIN tenants t ON t.id = c.sender_id
		JOIN units u ON u.id = t.unit_id
		WHERE u.property_id = $1
	`
	return r.queryCommunications(ctx, query, propertyID)
}

// GetCommunicationsBySenderID retrieves messages sent by one tenant record
// (BySender predicate).
func (r *CommunicationRepository) GetCommunicationsBySenderID(ctx context.Context, senderID string) ([]models.Communication, error) {
	query := `SELECT ` + communicationColumns + ` FROM communications WHERE sender_id = $1`
	return r.queryCommunications(ctx, query, senderID)
}

// UpdateStatusByThreadID fans the denormalized thread status out to every row
// of the thread and returns the number of rows written.
func (r *CommunicationRepository) UpdateStatusByThreadID(ctx context.Context, threadID, status string) (int64, error) {
	query := `UPDATE communications SET status = $2 WHERE thread_id = $1`
	res, err := r.db.ExecContext(ctx, query, threadID, status)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountThreadStatus returns total rows and how many of them already carry the
// given status. The thread service uses it to verify fan-out convergence.
func (r *CommunicationRepository) CountThreadStatus(ctx context.Context, threadID, status string) (total, matching int64, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $2)
		FROM communications
		WHERE thread_id = $1
	`
	err = r.db.QueryRowContext(ctx, query, threadID, status).Scan(&total, &matching)
	return total, matching, err
}

// DeleteCommunicationsByThreadID removes an entire thread
func (r *CommunicationRepository) DeleteCommunicationsByThreadID(ctx context.Context, threadID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM communications WHERE thread_id = $1`, threadID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResolvePropertyForSender walks sender tenant → unit → property and returns
// the property id, or nil when the chain does not resolve. A nil result means
// the row must be excluded from any ByProperty scope.
func (r *CommunicationRepository) ResolvePropertyForSender(ctx context.Context, senderID string) (*string, error) {
	query := `
		SELECT u.property_id
		FROM tenants t
		JOIN units u ON u.id = t.unit_id
		WHERE t.id = $1
	`

	var propertyID string
	err := r.db.QueryRowContext(ctx, query, senderID).Scan(&propertyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve property for sender %s: %w", senderID, err)
	}
	return &propertyID, nil
}
