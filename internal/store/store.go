// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/tutor-engine/internal/domain"
)

// ErrNotFound is returned when a record addressed by key does not exist.
var ErrNotFound = errors.New("not found")

// ProfileReader is the read side used to assemble learner profiles.
type ProfileReader interface {
	// FetchLearner returns the learner record, or nil when none is stored.
	FetchLearner(ctx context.Context, learnerID string) (*domain.Learner, error)

	// FetchRecentSessions returns up to limit session summaries, most recent first.
	FetchRecentSessions(ctx context.Context, learnerID string, limit int) ([]domain.SessionSummary, error)

	// FetchProgressRecords returns all progress records, oldest first.
	FetchProgressRecords(ctx context.Context, learnerID string) ([]domain.ProgressRecord, error)

	// FetchMasteryRecords returns the mastery level per topic.
	FetchMasteryRecords(ctx context.Context, learnerID string) ([]domain.MasteryRecord, error)

	// FetchCognitiveProfile returns the opaque cognitive profile, or nil.
	FetchCognitiveProfile(ctx context.Context, learnerID string) (map[string]any, error)
}

// SessionWriter is the persistence sink for tutoring sessions.
type SessionWriter interface {
	// AppendSession stores a request/response pair. Records are never updated.
	AppendSession(ctx context.Context, record *domain.SessionRecord) error
}

// EventWriter stores audit events.
type EventWriter interface {
	LogEvent(ctx context.Context, event domain.AuditEvent) error
}

// Repository is the full store used by the service.
type Repository interface {
	ProfileReader
	SessionWriter
	EventWriter

	// FetchLastContext returns the conversation tail persisted with the most
	// recent session, in original order.
	FetchLastContext(ctx context.Context, learnerID string) ([]domain.Turn, error)

	// UpsertLearner creates or updates a learner and its cognitive profile.
	UpsertLearner(ctx context.Context, learner *domain.Learner, cognitive map[string]any) error

	// AddProgressRecord appends a progress record.
	AddProgressRecord(ctx context.Context, learnerID string, record domain.ProgressRecord) error

	// UpsertMastery sets the mastery level of a topic.
	UpsertMastery(ctx context.Context, learnerID string, record domain.MasteryRecord) error

	// CleanupExpiredSessions removes sessions older than retention.
	CleanupExpiredSessions(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
