package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/shared"
)

// dialect captures the differences between the supported databases.
type dialect struct {
	name         string
	numberedArgs bool
	preamble     []string
}

// rebind rewrites ? placeholders to $n when the dialect needs it.
func (d dialect) rebind(query string) string {
	if !d.numberedArgs {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS learners (
		learner_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		grade_level TEXT NOT NULL DEFAULT '',
		learning_style TEXT NOT NULL DEFAULT '',
		difficulty_preference TEXT NOT NULL DEFAULT '',
		cognitive_profile TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS progress_records (
		id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		value DOUBLE PRECISION NOT NULL DEFAULT 0,
		percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
		recorded_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_learner ON progress_records(learner_id, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS mastery_records (
		learner_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		mastery_level INTEGER NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (learner_id, topic)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL,
		session_kind TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		emotion TEXT NOT NULL,
		source TEXT NOT NULL,
		emotional_tone TEXT NOT NULL,
		teaching_approach TEXT NOT NULL,
		confidence_score INTEGER NOT NULL,
		response_json TEXT NOT NULL,
		context_json TEXT NOT NULL,
		context_data_json TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_learner ON sessions(learner_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		description TEXT NOT NULL,
		severity TEXT NOT NULL,
		metadata_json TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_learner ON audit_events(learner_id, created_at)`,
}

// SQLStore implements Repository on database/sql for SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range append(append([]string{}, s.dialect.preamble...), schema...) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Dialect returns the database flavor name.
func (s *SQLStore) Dialect() string { return s.dialect.name }

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

// execWithRetry retries writes that fail with lock contention, backing off
// 100ms then 200ms.
func (s *SQLStore) execWithRetry(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		res, err := s.exec(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !shared.IsConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("write hit database lock, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("%s: %w", op, lastErr)
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

// FetchLearner retrieves a learner by id.
func (s *SQLStore) FetchLearner(ctx context.Context, learnerID string) (*domain.Learner, error) {
	query := `
		SELECT learner_id, name, grade_level, learning_style, difficulty_preference,
		       created_at, updated_at
		FROM learners WHERE learner_id = ?`

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(query), learnerID)

	var l domain.Learner
	var createdAt, updatedAt int64
	err := row.Scan(&l.LearnerID, &l.Name, &l.GradeLevel, &l.LearningStyle,
		&l.DifficultyPreference, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan learner row: %w", err)
	}
	l.CreatedAt = time.Unix(0, createdAt)
	l.UpdatedAt = time.Unix(0, updatedAt)
	return &l, nil
}

// FetchCognitiveProfile returns the stored cognitive profile.
func (s *SQLStore) FetchCognitiveProfile(ctx context.Context, learnerID string) (map[string]any, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT cognitive_profile FROM learners WHERE learner_id = ?`), learnerID)

	var raw sql.NullString
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && (!raw.Valid || raw.String == "")) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan cognitive profile: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("decode cognitive profile: %w", err)
	}
	return out, nil
}

// UpsertLearner creates or updates a learner record.
func (s *SQLStore) UpsertLearner(ctx context.Context, learner *domain.Learner, cognitive map[string]any) error {
	query := `
	INSERT INTO learners (learner_id, name, grade_level, learning_style, difficulty_preference,
		cognitive_profile, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(learner_id) DO UPDATE SET
		name = excluded.name,
		grade_level = excluded.grade_level,
		learning_style = excluded.learning_style,
		difficulty_preference = excluded.difficulty_preference,
		cognitive_profile = COALESCE(excluded.cognitive_profile, learners.cognitive_profile),
		updated_at = excluded.updated_at`

	var cognitiveJSON any
	if cognitive != nil {
		b, err := json.Marshal(cognitive)
		if err != nil {
			return fmt.Errorf("encode cognitive profile: %w", err)
		}
		cognitiveJSON = string(b)
	}

	now := time.Now()
	if learner.CreatedAt.IsZero() {
		learner.CreatedAt = now
	}
	learner.UpdatedAt = now

	_, err := s.execWithRetry(ctx, "upsert learner", query,
		learner.LearnerID, learner.Name, learner.GradeLevel, learner.LearningStyle,
		learner.DifficultyPreference, cognitiveJSON,
		learner.CreatedAt.UnixNano(), learner.UpdatedAt.UnixNano(),
	)
	return err
}

// FetchProgressRecords returns progress records, oldest first.
func (s *SQLStore) FetchProgressRecords(ctx context.Context, learnerID string) ([]domain.ProgressRecord, error) {
	query := `
		SELECT kind, topic, value, percentage, recorded_at
		FROM progress_records WHERE learner_id = ?
		ORDER BY recorded_at ASC`

	rows, err := s.query(ctx, query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("query progress records: %w", err)
	}
	defer closeRows(rows, "progress records")

	var out []domain.ProgressRecord
	for rows.Next() {
		var p domain.ProgressRecord
		var kind string
		var recordedAt int64
		if err := rows.Scan(&kind, &p.Topic, &p.Value, &p.Percentage, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		p.Kind = domain.ProgressKind(kind)
		p.Timestamp = time.Unix(0, recordedAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress records: %w", err)
	}
	return out, nil
}

// AddProgressRecord appends a progress record.
func (s *SQLStore) AddProgressRecord(ctx context.Context, learnerID string, record domain.ProgressRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	query := `
	INSERT INTO progress_records (id, learner_id, kind, topic, value, percentage, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.execWithRetry(ctx, "add progress record", query,
		uuid.NewString(), learnerID, string(record.Kind), record.Topic,
		record.Value, record.Percentage, record.Timestamp.UnixNano(),
	)
	return err
}

// FetchMasteryRecords returns mastery records ordered by topic.
func (s *SQLStore) FetchMasteryRecords(ctx context.Context, learnerID string) ([]domain.MasteryRecord, error) {
	query := `
		SELECT topic, mastery_level, updated_at
		FROM mastery_records WHERE learner_id = ?
		ORDER BY topic ASC`

	rows, err := s.query(ctx, query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("query mastery records: %w", err)
	}
	defer closeRows(rows, "mastery records")

	var out []domain.MasteryRecord
	for rows.Next() {
		var m domain.MasteryRecord
		var updatedAt int64
		if err := rows.Scan(&m.Topic, &m.MasteryLevel, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan mastery row: %w", err)
		}
		m.UpdatedAt = time.Unix(0, updatedAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mastery records: %w", err)
	}
	return out, nil
}

// UpsertMastery sets the mastery level of a topic.
func (s *SQLStore) UpsertMastery(ctx context.Context, learnerID string, record domain.MasteryRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}
	query := `
	INSERT INTO mastery_records (learner_id, topic, mastery_level, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(learner_id, topic) DO UPDATE SET
		mastery_level = excluded.mastery_level,
		updated_at = excluded.updated_at`
	_, err := s.execWithRetry(ctx, "upsert mastery", query,
		learnerID, record.Topic, record.MasteryLevel, record.UpdatedAt.UnixNano())
	return err
}

// FetchRecentSessions returns up to limit summaries, most recent first.
func (s *SQLStore) FetchRecentSessions(ctx context.Context, learnerID string, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}
	query := `
		SELECT id, session_kind, subject, emotion, emotional_tone, teaching_approach,
		       confidence_score, source, created_at
		FROM sessions WHERE learner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := s.query(ctx, query, learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer closeRows(rows, "recent sessions")

	var out []domain.SessionSummary
	for rows.Next() {
		var (
			sum                                   domain.SessionSummary
			kind, emotion, tone, approach, source string
			createdAt                             int64
		)
		if err := rows.Scan(&sum.ID, &kind, &sum.Subject, &emotion, &tone, &approach,
			&sum.ConfidenceScore, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sum.SessionKind = domain.SessionKind(kind)
		sum.Emotion = domain.Emotion(emotion)
		sum.EmotionalTone = domain.Tone(tone)
		sum.TeachingApproach = domain.TeachingApproach(approach)
		sum.Source = domain.ResponseSource(source)
		sum.CreatedAt = time.Unix(0, createdAt)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent sessions: %w", err)
	}
	return out, nil
}

// AppendSession stores a session record.
func (s *SQLStore) AppendSession(ctx context.Context, record *domain.SessionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.Context == nil {
		record.Context = []domain.Turn{}
	}

	responseJSON, err := json.Marshal(record.Response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	contextJSON, err := json.Marshal(record.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	var contextDataJSON any
	if len(record.ContextData) > 0 {
		b, err := json.Marshal(record.ContextData)
		if err != nil {
			return fmt.Errorf("encode context data: %w", err)
		}
		contextDataJSON = string(b)
	}

	query := `
	INSERT INTO sessions (id, learner_id, session_kind, subject, message, emotion, source,
		emotional_tone, teaching_approach, confidence_score, response_json, context_json,
		context_data_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.execWithRetry(ctx, "append session", query,
		record.ID, record.LearnerID, string(record.SessionKind), record.Subject, record.Message,
		string(record.Emotion), string(record.Source),
		string(record.Response.EmotionalTone), string(record.Response.TeachingApproach),
		record.Response.ConfidenceScore, string(responseJSON), string(contextJSON),
		contextDataJSON, record.CreatedAt.UnixNano(),
	)
	return err
}

// FetchLastContext returns the context tail stored with the newest session.
func (s *SQLStore) FetchLastContext(ctx context.Context, learnerID string) ([]domain.Turn, error) {
	query := `
		SELECT context_json FROM sessions WHERE learner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var raw string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), learnerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan last context: %w", err)
	}

	var turns []domain.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("decode last context: %w", err)
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	return turns, nil
}

// CleanupExpiredSessions removes sessions older than retention.
func (s *SQLStore) CleanupExpiredSessions(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixNano()
	result, err := s.execWithRetry(ctx, "cleanup expired sessions",
		`DELETE FROM sessions WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// LogEvent stores an audit event.
func (s *SQLStore) LogEvent(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	var metadataJSON any
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode event metadata: %w", err)
		}
		metadataJSON = string(b)
	}
	query := `
	INSERT INTO audit_events (id, learner_id, kind, description, severity, metadata_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.execWithRetry(ctx, "log event", query,
		uuid.NewString(), event.LearnerID, event.Kind, event.Description,
		string(event.Severity), metadataJSON, event.Timestamp.UnixNano())
	return err
}

// FetchEvents returns up to limit audit events for a learner, newest first.
func (s *SQLStore) FetchEvents(ctx context.Context, learnerID string, limit int) ([]domain.AuditEvent, error) {
	query := `
		SELECT kind, learner_id, description, severity, metadata_json, created_at
		FROM audit_events WHERE learner_id = ?
		ORDER BY created_at DESC
		LIMIT ?`
	rows, err := s.query(ctx, query, learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer closeRows(rows, "audit events")

	var out []domain.AuditEvent
	for rows.Next() {
		var (
			ev        domain.AuditEvent
			severity  string
			metadata  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&ev.Kind, &ev.LearnerID, &ev.Description, &severity, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Severity = domain.Severity(severity)
		ev.Timestamp = time.Unix(0, createdAt)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
