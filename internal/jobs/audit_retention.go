// audit_retention.go implements the AuditRetentionSweeper background job, which
// periodically deletes audit trail entries older than the configured retention
// window. The sweep is the only deletion path for audit rows; everything else
// treats the trail as append-only. The job is a no-op when retention_days <= 0,
// so it is always safe to start regardless of deployment environment.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/estatedesk/estatedesk/internal/db/repositories"
	"github.com/estatedesk/estatedesk/internal/telemetry"
)

// AuditRetentionSweeper periodically removes expired audit trail entries.
type AuditRetentionSweeper struct {
	auditRepo     *repositories.AuditRepository
	retentionDays int
	interval      time.Duration
	stopChan      chan struct{}
}

// NewAuditRetentionSweeper creates a new AuditRetentionSweeper.
// intervalHours controls how often the sweep runs (default 24h).
func NewAuditRetentionSweeper(auditRepo *repositories.AuditRepository, retentionDays, intervalHours int) *AuditRetentionSweeper {
	if intervalHours <= 0 {
		intervalHours = 24
	}
	return &AuditRetentionSweeper{
		auditRepo:     auditRepo,
		retentionDays: retentionDays,
		interval:      time.Duration(intervalHours) * time.Hour,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the background sweep loop.
// It runs an initial sweep immediately, then repeats on the configured interval.
// The loop exits when ctx is cancelled or Stop() is called.
func (s *AuditRetentionSweeper) Start(ctx context.Context) {
	if s.retentionDays <= 0 {
		log.Println("Audit retention sweeper: disabled (audit.retention_days <= 0)")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Audit retention sweeper started (interval: %v, retention: %d days)",
		s.interval, s.retentionDays)

	// Run once immediately on startup
	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopChan:
			log.Println("Audit retention sweeper stopped")
			return
		case <-ctx.Done():
			log.Println("Audit retention sweeper context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (s *AuditRetentionSweeper) Stop() {
	close(s.stopChan)
}

// runSweep deletes entries older than the retention cutoff and records metrics.
func (s *AuditRetentionSweeper) runSweep(ctx context.Context) {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -s.retentionDays)

	deleted, err := s.auditRepo.DeleteOlderThan(ctx, cutoff)
	telemetry.AuditRetentionSweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("Audit retention sweeper: sweep failed: %v", err)
		return
	}

	if deleted > 0 {
		telemetry.AuditRetentionDeletedTotal.Add(float64(deleted))
		log.Printf("Audit retention sweeper: removed %d entries older than %s",
			deleted, cutoff.UTC().Format(time.RFC3339))
	}
}
