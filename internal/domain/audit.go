package domain

import "time"

// Severity grades an audit event.
type Severity string

// Audit severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Audit event kinds emitted by the engine.
const (
	EventTutorResponse    = "tutor_response"
	EventPersistenceError = "persistence_error"
	EventRetentionSweep   = "retention_sweep"
)

// AuditEvent is a write-only record sent to audit sinks.
type AuditEvent struct {
	Kind        string         `json:"kind"`
	LearnerID   string         `json:"learnerId,omitempty"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
