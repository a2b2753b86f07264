package tutor

import (
	"context"
	"sync"

	"github.com/ashureev/tutor-engine/internal/domain"
)

// fakeStore is an in-memory Store for tests.
type fakeStore struct {
	mu       sync.Mutex
	learners map[string]*domain.Learner
	progress map[string][]domain.ProgressRecord
	mastery  map[string][]domain.MasteryRecord
	sessions []*domain.SessionRecord

	fetchErr  error
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		learners: make(map[string]*domain.Learner),
		progress: make(map[string][]domain.ProgressRecord),
		mastery:  make(map[string][]domain.MasteryRecord),
	}
}

func (f *fakeStore) FetchLearner(_ context.Context, id string) (*domain.Learner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.learners[id], nil
}

func (f *fakeStore) FetchRecentSessions(_ context.Context, id string, limit int) ([]domain.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SessionSummary
	for i := len(f.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		if f.sessions[i].LearnerID == id {
			out = append(out, f.sessions[i].Summary())
		}
	}
	return out, nil
}

func (f *fakeStore) FetchProgressRecords(_ context.Context, id string) ([]domain.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress[id], nil
}

func (f *fakeStore) FetchMasteryRecords(_ context.Context, id string) ([]domain.MasteryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mastery[id], nil
}

func (f *fakeStore) FetchCognitiveProfile(context.Context, string) (map[string]any, error) {
	return nil, nil
}

func (f *fakeStore) AppendSession(_ context.Context, r *domain.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.sessions = append(f.sessions, r)
	return nil
}

func (f *fakeStore) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// recordingAudit captures audit events.
type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *recordingAudit) LogEvent(_ context.Context, e domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) snapshot() []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEvent(nil), r.events...)
}
