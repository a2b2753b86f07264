// Package tutor orchestrates a tutoring reply: emotion resolution, profile
// analysis, primary generation with deterministic fallback, and best-effort
// persistence and auditing.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/tutor-engine/internal/analysis"
	"github.com/ashureev/tutor-engine/internal/audit"
	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/emotion"
	"github.com/ashureev/tutor-engine/internal/fallback"
	"github.com/ashureev/tutor-engine/internal/llm"
	"github.com/ashureev/tutor-engine/internal/logging"
	"github.com/ashureev/tutor-engine/internal/store"
)

// Emotion sources recorded in session metadata.
const (
	EmotionSourceExplicit   = "explicit"
	EmotionSourceClassified = "classified"
)

// Config tunes the orchestrator.
type Config struct {
	Model             string
	GenerationTimeout time.Duration
	StoreTimeout      time.Duration
	Temperature       float32
	MaxTokens         int32
	// SessionLimit bounds the recent sessions read into a profile.
	SessionLimit int
	// ContextTurns is how many conversation turns are persisted per session.
	ContextTurns int
	// PromptTurns is how many conversation turns are sent to the generator.
	PromptTurns int
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		GenerationTimeout: 15 * time.Second,
		StoreTimeout:      5 * time.Second,
		Temperature:       0.7,
		MaxTokens:         1024,
		SessionLimit:      store.DefaultSessionLimit,
		ContextTurns:      5,
		PromptTurns:       5,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = def.GenerationTimeout
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = def.StoreTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.SessionLimit <= 0 {
		c.SessionLimit = def.SessionLimit
	}
	if c.ContextTurns <= 0 {
		c.ContextTurns = def.ContextTurns
	}
	if c.PromptTurns <= 0 {
		c.PromptTurns = def.PromptTurns
	}
	return c
}

// Store is the subset of the repository the orchestrator needs.
type Store interface {
	store.ProfileReader
	store.SessionWriter
}

// Deps are the collaborators of a Service. Generator, Audit and Dispatcher
// may be nil.
type Deps struct {
	Store      Store
	Generator  llm.Generator
	Fallback   *fallback.Generator
	Audit      audit.Sink
	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

// Result is the outcome of Respond.
type Result struct {
	Response domain.TutorResponse
	Source   domain.ResponseSource
	Emotion  domain.Emotion
	// Persisted receives exactly one value when the background persistence
	// job finishes: nil on success. Callers may ignore it.
	Persisted <-chan error
}

// Service produces tutoring replies. It is safe for concurrent use and keeps
// no per-request state.
type Service struct {
	store      Store
	gen        llm.Generator
	classifier *emotion.Classifier
	analyzer   *analysis.Analyzer
	fallback   *fallback.Generator
	audit      audit.Sink
	dispatcher *Dispatcher
	ownsDisp   bool
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a Service.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("tutor: store is required")
	}
	cfg = cfg.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:      deps.Store,
		gen:        deps.Generator,
		classifier: emotion.New(),
		analyzer:   analysis.New(),
		fallback:   deps.Fallback,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
	if s.gen == nil {
		s.gen = llm.Unavailable{Reason: "no generator configured"}
	}
	if s.fallback == nil {
		s.fallback = fallback.New(nil)
	}
	if s.audit == nil {
		s.audit = audit.Noop{}
	}
	if s.dispatcher == nil {
		s.dispatcher = NewDispatcher(0, cfg.StoreTimeout, logger)
		s.ownsDisp = true
	}
	return s, nil
}

// Close stops the dispatcher if the service created it.
func (s *Service) Close() error {
	if s.ownsDisp {
		return s.dispatcher.Close()
	}
	return nil
}

// Stats returns side-effect dispatcher counters.
func (s *Service) Stats() DispatcherStats {
	return s.dispatcher.Stats()
}

// Respond produces a reply for req. Generation failures never surface as
// errors; invalid input and unavailable learner context do.
func (s *Service) Respond(ctx context.Context, req *domain.TutorRequest) (*Result, error) {
	log := logging.FromContext(ctx)

	if req == nil {
		return nil, &Error{Kind: KindInvalidRequest, Err: domain.ErrInvalidRequest}
	}
	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Err: err}
	}

	em, emSource := s.resolveEmotion(req)
	log = log.With("learner_id", req.LearnerID, "emotion", em)

	profile, err := s.fetchProfile(ctx, req.LearnerID)
	if err != nil {
		log.Error("learner context unavailable", "error", err)
		return nil, &Error{Kind: KindContextUnavailable, Err: err}
	}

	la := s.analyzer.Analyze(profile, req.ConversationHistory)

	resp, source, err := s.generate(ctx, log, promptInput{
		Request:  req,
		Emotion:  em,
		Profile:  profile,
		Analysis: la,
	})
	if err != nil {
		return nil, err
	}

	resp.SessionMetadata = domain.SessionMetadata{
		EmotionDetected:    em,
		EmotionSource:      emSource,
		SessionKind:        req.SessionKind,
		Subject:            req.Subject,
		PerformanceLevel:   la.PerformanceLevel,
		LearningVelocity:   la.LearningVelocity,
		EngagementLevel:    la.EngagementLevel,
		ConversationLength: la.ConversationLength,
	}
	resp.Normalize()

	log.Info("tutor response ready",
		"source", source,
		"tone", resp.EmotionalTone,
		"approach", resp.TeachingApproach,
		"confidence", resp.ConfidenceScore,
	)

	record := &domain.SessionRecord{
		LearnerID:   req.LearnerID,
		SessionKind: req.SessionKind,
		Subject:     req.Subject,
		Message:     req.Message,
		Emotion:     em,
		Source:      source,
		Response:    resp,
		Context:     domain.LastTurns(req.ConversationHistory, s.cfg.ContextTurns),
		ContextData: req.AuxiliaryContext,
		CreatedAt:   s.now(),
	}
	persisted := s.dispatchSideEffects(log, record)

	return &Result{
		Response:  resp,
		Source:    source,
		Emotion:   em,
		Persisted: persisted,
	}, nil
}

func (s *Service) resolveEmotion(req *domain.TutorRequest) (domain.Emotion, string) {
	if req.ExplicitEmotion != "" {
		return req.ExplicitEmotion, EmotionSourceExplicit
	}
	return s.classifier.Classify(req.Message, req.ConversationHistory), EmotionSourceClassified
}

func (s *Service) fetchProfile(ctx context.Context, learnerID string) (*domain.LearnerProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return store.FetchLearnerProfile(ctx, s.store, learnerID, s.cfg.SessionLimit)
}

// generate tries the primary generator and substitutes the fallback on any
// failure. The returned error is only set for a fallback defect.
func (s *Service) generate(ctx context.Context, log *slog.Logger, in promptInput) (domain.TutorResponse, domain.ResponseSource, error) {
	spec := buildPrompt(in, s.cfg)

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	raw, err := s.gen.Generate(gctx, spec)
	cancel()
	if err == nil {
		resp, perr := parsePayload(raw, in.Emotion)
		if perr == nil {
			return resp, domain.SourcePrimary, nil
		}
		err = perr
	}
	log.Warn("primary generation failed, using fallback", "generator", s.gen.Name(), "error", err)

	resp, ferr := s.runFallback(in)
	if ferr != nil {
		log.Error("fallback generator failed", "error", ferr)
		return domain.TutorResponse{}, "", &Error{Kind: KindInternal, Err: ferr}
	}
	return resp, domain.SourceFallback, nil
}

func (s *Service) runFallback(in promptInput) (resp domain.TutorResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fallback generator defect: %v", r)
		}
	}()
	return s.fallback.Generate(fallback.Input{
		Message:     in.Request.Message,
		Emotion:     in.Emotion,
		SessionKind: in.Request.SessionKind,
		Subject:     in.Request.Subject,
		Analysis:    in.Analysis,
		Profile:     in.Profile,
	}), nil
}

// dispatchSideEffects queues the audit and persistence jobs. Neither is
// awaited here; the returned channel reports the persistence outcome.
func (s *Service) dispatchSideEffects(log *slog.Logger, record *domain.SessionRecord) <-chan error {
	event := domain.AuditEvent{
		Kind:        domain.EventTutorResponse,
		LearnerID:   record.LearnerID,
		Description: "tutor response generated",
		Severity:    domain.SeverityInfo,
		Metadata: map[string]any{
			"sessionKind":      string(record.SessionKind),
			"subject":          record.Subject,
			"emotion":          string(record.Emotion),
			"confidenceScore":  record.Response.ConfidenceScore,
			"teachingApproach": string(record.Response.TeachingApproach),
			"source":           string(record.Source),
		},
		Timestamp: record.CreatedAt,
	}
	auditDone := s.dispatcher.Submit("audit", func(ctx context.Context) error {
		return s.audit.LogEvent(ctx, event)
	})

	out := make(chan error, 1)
	persistDone := s.dispatcher.Submit("persist", func(ctx context.Context) error {
		return s.store.AppendSession(ctx, record)
	})

	go func() {
		if err := <-auditDone; err != nil {
			log.Warn("audit event failed", "error", err)
		}
	}()
	go func() {
		err := <-persistDone
		if err != nil {
			log.Error("failed to persist session", "error", err)
			s.reportPersistenceFailure(record, err)
		}
		out <- err
	}()
	return out
}

func (s *Service) reportPersistenceFailure(record *domain.SessionRecord, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()
	err := s.audit.LogEvent(ctx, domain.AuditEvent{
		Kind:        domain.EventPersistenceError,
		LearnerID:   record.LearnerID,
		Description: "failed to persist tutoring session",
		Severity:    domain.SeverityError,
		Metadata:    map[string]any{"error": cause.Error()},
		Timestamp:   s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to audit persistence error", "error", err)
	}
}
