// service.go owns the thread write paths: replies and the fan-out status
// update with its retry-and-verify loop.
package threads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/authz"
	"github.com/estatedesk/estatedesk/internal/db/models"
)

// Thread service failure modes.
var (
	// ErrThreadNotFound is returned when a thread id matches no rows.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrForbidden is returned when the caller's scope predicate excludes the
	// target thread.
	ErrForbidden = errors.New("thread outside caller scope")

	// ErrInvalidStatus is returned for a status value outside the closed set.
	ErrInvalidStatus = errors.New("invalid thread status")

	// ErrStatusDiverged is returned when the fan-out update could not be
	// verified to have converged after retries.
	ErrStatusDiverged = errors.New("thread status update did not converge")
)

// MessageStore is the slice of the communication repository the service needs.
type MessageStore interface {
	GetCommunicationsByThreadID(ctx context.Context, threadID string) ([]models.Communication, error)
	CreateCommunication(ctx context.Context, msg *models.Communication) error
	UpdateStatusByThreadID(ctx context.Context, threadID, status string) (int64, error)
	CountThreadStatus(ctx context.Context, threadID, status string) (total, matching int64, err error)
	DeleteCommunicationsByThreadID(ctx context.Context, threadID string) (int64, error)
	ResolvePropertyForSender(ctx context.Context, senderID string) (*string, error)
}

// statusUpdateRetries bounds the verify loop. The underlying UPDATE is a single
// statement, so divergence only appears when rows are inserted concurrently
// with the update; one retry normally converges.
const statusUpdateRetries = 3

// Service coordinates thread reads and writes over the message store.
type Service struct {
	store MessageStore
}

// NewService creates a thread Service.
func NewService(store MessageStore) *Service {
	return &Service{store: store}
}

// GetThread loads and aggregates one thread, applying the caller's scope
// predicate to the root. Out-of-scope and missing threads are indistinguishable
// to the caller (both surface as not-found at the boundary).
func (s *Service) GetThread(ctx context.Context, pred authz.ScopePredicate, threadID string) (*models.Thread, error) {
	msgs, err := s.store.GetCommunicationsByThreadID(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}
	if len(msgs) == 0 {
		return nil, ErrThreadNotFound
	}

	threads := Aggregate(msgs)
	thread := &threads[0]

	resolve := func(senderID string) (*string, error) {
		return s.store.ResolvePropertyForSender(ctx, senderID)
	}
	ok, err := pred.AllowsThread(thread, resolve)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return thread, nil
}

// Reply appends a message to an existing thread after verifying the caller's
// predicate admits the thread. The reply inherits the thread's denormalized
// status and the root's subject/category.
func (s *Service) Reply(ctx context.Context, p *auth.Principal, pred authz.ScopePredicate, threadID, body string, attachments []string) (*models.Communication, error) {
	thread, err := s.GetThread(ctx, pred, threadID)
	if err != nil {
		return nil, err
	}

	senderID := p.ID
	if p.Role == auth.RoleTenant && p.LinkedRecordID != nil {
		senderID = *p.LinkedRecordID
	}

	msg := &models.Communication{
		ThreadID:    threadID,
		SenderID:    senderID,
		SenderName:  p.DisplayName(),
		SenderRole:  p.Role.String(),
		Subject:     thread.Subject,
		Category:    thread.Category,
		Status:      thread.Status,
		Body:        body,
		Attachments: attachments,
	}
	if err := s.store.CreateCommunication(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create reply: %w", err)
	}
	return msg, nil
}

// UpdateThreadStatus applies a status change as one logical operation across
// every message of the thread. The store's multi-row UPDATE is followed by a
// re-read that confirms all rows converged; a concurrent insert that slipped in
// with the old status triggers a bounded retry rather than leaving the thread
// mixed. Reapplying the current status is an idempotent no-op.
func (s *Service) UpdateThreadStatus(ctx context.Context, pred authz.ScopePredicate, threadID, status string) error {
	if !models.ValidCommunicationStatus(status) {
		return ErrInvalidStatus
	}

	if _, err := s.GetThread(ctx, pred, threadID); err != nil {
		return err
	}

	for attempt := 1; attempt <= statusUpdateRetries; attempt++ {
		if _, err := s.store.UpdateStatusByThreadID(ctx, threadID, status); err != nil {
			return fmt.Errorf("failed to update thread %s status: %w", threadID, err)
		}

		total, matching, err := s.store.CountThreadStatus(ctx, threadID, status)
		if err != nil {
			return fmt.Errorf("failed to verify thread %s status: %w", threadID, err)
		}
		if total == 0 {
			return ErrThreadNotFound
		}
		if total == matching {
			return nil
		}

		slog.Warn("thread status fan-out did not converge, retrying",
			"thread_id", threadID, "status", status,
			"total", total, "matching", matching, "attempt", attempt)
	}

	return ErrStatusDiverged
}

// DeleteThread removes an entire thread after a scope check.
func (s *Service) DeleteThread(ctx context.Context, pred authz.ScopePredicate, threadID string) error {
	if _, err := s.GetThread(ctx, pred, threadID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteCommunicationsByThreadID(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", threadID, err)
	}
	if deleted == 0 {
		return ErrThreadNotFound
	}
	return nil
}
