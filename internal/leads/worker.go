package leads

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/metrics"
)

const syncBatch = 100

// Store is the part of the session store the sync worker needs.
type Store interface {
	ListUnsyncedLeads(ctx context.Context, limit int) ([]*domain.ChatSession, error)
	MarkLeadSynced(ctx context.Context, sessionID string, at time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Syncer pushes unsynced leads to the sink and prunes old sessions.
type Syncer struct {
	store     Store
	sink      Sink
	retention time.Duration
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewSyncer returns a Syncer. retention <= 0 disables pruning.
func NewSyncer(store Store, sink Sink, retention time.Duration, m *metrics.Metrics, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{store: store, sink: sink, retention: retention, metrics: m, log: logger}
}

// SyncOnce writes every pending lead and marks it synced. A failed write
// leaves the lead pending for the next pass.
func (s *Syncer) SyncOnce(ctx context.Context) (int, error) {
	pending, err := s.store.ListUnsyncedLeads(ctx, syncBatch)
	if err != nil {
		return 0, fmt.Errorf("list unsynced leads: %w", err)
	}

	synced := 0
	var firstErr error
	for _, session := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		err := s.sink.Log(ctx, session)
		s.metrics.LeadSync(err)
		if err != nil {
			s.log.Error("lead sync failed", "session_id", session.SessionID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.store.MarkLeadSynced(ctx, session.SessionID, time.Now()); err != nil {
			s.log.Warn("failed to mark lead synced", "session_id", session.SessionID, "error", err)
			continue
		}
		synced++
	}
	if synced > 0 {
		s.log.Info("lead sync completed", "synced", synced, "pending", len(pending))
	}
	return synced, firstErr
}

// Prune removes sessions idle for longer than the retention period.
func (s *Syncer) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	deleted, err := s.store.DeleteOlderThan(ctx, time.Now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	s.metrics.Pruned(deleted)
	if deleted > 0 {
		s.log.Info("sessions pruned", "count", deleted, "retention", s.retention)
	}
	return deleted, nil
}

// Start runs SyncOnce and Prune every interval until ctx is done.
func (s *Syncer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		s.log.Info("lead sync worker started", "interval", interval, "retention", s.retention)

		for {
			select {
			case <-ticker.C:
				if _, err := s.SyncOnce(ctx); err != nil {
					s.log.Error("lead sync pass failed", "error", err)
				}
				if _, err := s.Prune(ctx); err != nil {
					s.log.Error("retention sweep failed", "error", err)
				}
			case <-ctx.Done():
				s.log.Info("lead sync worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
