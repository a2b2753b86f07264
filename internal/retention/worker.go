// Package retention deletes persisted tutoring sessions past their retention
// window.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/tutor-engine/internal/audit"
	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/shared"
)

// DefaultInterval is the sweep period used when none is configured.
const DefaultInterval = time.Hour

const (
	maxRetries = 3
	baseDelay  = 100 * time.Millisecond
)

// Cleaner is the store operation the worker drives.
type Cleaner interface {
	CleanupExpiredSessions(ctx context.Context, retention time.Duration) (int64, error)
}

// Worker periodically sweeps expired sessions.
type Worker struct {
	repo      Cleaner
	audit     audit.Sink
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a Worker. A nil sink disables sweep auditing.
func New(repo Cleaner, sink audit.Sink, retention, interval time.Duration, logger *slog.Logger) *Worker {
	if sink == nil {
		sink = audit.Noop{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		repo:      repo,
		audit:     sink,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Start runs the sweep loop until ctx is cancelled. The returned channel is
// closed when the loop exits.
func (w *Worker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(w.interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		w.logger.Info("retention worker started", "interval", w.interval, "retention", w.retention)

		for {
			select {
			case <-ticker.C:
				if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
					w.logger.Error("retention sweep failed", "error", err)
				}
			case <-ctx.Done():
				w.logger.Info("retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// RunOnce performs a single sweep and returns the number of deleted sessions.
func (w *Worker) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := w.cleanupWithRetry(ctx)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		w.logger.Info("retention sweep removed sessions", "count", deleted)
	}

	event := domain.AuditEvent{
		Kind:        domain.EventRetentionSweep,
		Description: "expired tutoring sessions removed",
		Severity:    domain.SeverityInfo,
		Metadata: map[string]any{
			"deleted":   deleted,
			"retention": w.retention.String(),
		},
		Timestamp: time.Now(),
	}
	if err := w.audit.LogEvent(ctx, event); err != nil {
		w.logger.Warn("failed to audit retention sweep", "error", err)
	}
	return deleted, nil
}

// cleanupWithRetry backs off on transient lock conflicts: 100ms, 200ms.
func (w *Worker) cleanupWithRetry(ctx context.Context) (int64, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		deleted, err := w.repo.CleanupExpiredSessions(ctx, w.retention)
		if err == nil {
			return deleted, nil
		}
		lastErr = err
		if !shared.IsConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i)
		w.logger.Debug("retention sweep hit a locked database, retrying",
			"attempt", i+1,
			"delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, fmt.Errorf("cleanup expired sessions: %w", lastErr)
}
