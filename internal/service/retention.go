package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// RetentionService periodically deletes evidence files older than the
// configured retention.
type RetentionService struct {
	evidence  *EvidenceService
	interval  time.Duration
	retention time.Duration
	hard      bool
	batchSize int
}

// NewRetentionService creates a new retention service.
func NewRetentionService(evidence *EvidenceService, retention time.Duration, hard bool, interval time.Duration) *RetentionService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionService{
		evidence:  evidence,
		interval:  interval,
		retention: retention,
		hard:      hard,
		batchSize: 100,
	}
}

// Start begins the periodic sweep. Returns when ctx is cancelled.
func (r *RetentionService) Start(ctx context.Context) {
	if r.retention <= 0 {
		log.Info("Retention sweep disabled")
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.run(ctx)
		}
	}
}

func (r *RetentionService) run(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.retention)
	deleted, err := r.evidence.Sweep(ctx, cutoff, r.hard, r.batchSize)
	if err != nil {
		log.Error("Retention: sweep failed", "err", err)
	}
	if len(deleted) > 0 {
		log.Info("Retention: completed", "deleted", len(deleted), "hard", r.hard, "cutoff", cutoff)
	}
}
