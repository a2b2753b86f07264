package store

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/tutor-engine/internal/domain"
)

// DefaultSessionLimit bounds the recent sessions read into a profile.
const DefaultSessionLimit = 30

// FetchLearnerProfile assembles a profile snapshot. The independent reads run
// concurrently and the first failure cancels the rest. An unknown learner
// yields an empty profile, not an error.
func FetchLearnerProfile(ctx context.Context, r ProfileReader, learnerID string, sessionLimit int) (*domain.LearnerProfile, error) {
	if sessionLimit <= 0 {
		sessionLimit = DefaultSessionLimit
	}

	var (
		learner   *domain.Learner
		sessions  []domain.SessionSummary
		progress  []domain.ProgressRecord
		mastery   []domain.MasteryRecord
		cognitive map[string]any
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		learner, err = r.FetchLearner(gctx, learnerID)
		return wrapFetch("learner", err)
	})
	g.Go(func() (err error) {
		sessions, err = r.FetchRecentSessions(gctx, learnerID, sessionLimit)
		return wrapFetch("recent sessions", err)
	})
	g.Go(func() (err error) {
		progress, err = r.FetchProgressRecords(gctx, learnerID)
		return wrapFetch("progress records", err)
	})
	g.Go(func() (err error) {
		mastery, err = r.FetchMasteryRecords(gctx, learnerID)
		return wrapFetch("mastery records", err)
	})
	g.Go(func() (err error) {
		cognitive, err = r.FetchCognitiveProfile(gctx, learnerID)
		return wrapFetch("cognitive profile", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	profile := &domain.LearnerProfile{
		Learner:          domain.Learner{LearnerID: learnerID},
		RecentSessions:   sessions,
		Progress:         progress,
		Mastery:          mastery,
		CognitiveProfile: cognitive,
	}
	if learner != nil {
		profile.Learner = *learner
	}
	return profile, nil
}

func wrapFetch(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("fetch %s: %w", what, err)
}
