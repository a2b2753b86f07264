// Package bootstrap wires the tutoring engine from configuration. It is
// shared by the HTTP server and the operator CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ashureev/tutor-engine/internal/audit"
	"github.com/ashureev/tutor-engine/internal/config"
	"github.com/ashureev/tutor-engine/internal/fallback"
	"github.com/ashureev/tutor-engine/internal/llm"
	"github.com/ashureev/tutor-engine/internal/retention"
	"github.com/ashureev/tutor-engine/internal/store"
	"github.com/ashureev/tutor-engine/internal/subject"
	"github.com/ashureev/tutor-engine/internal/tutor"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Repo      store.Repository
	Generator llm.Generator
	Audit     audit.Sink
	Service   *tutor.Service
	Retention *retention.Worker

	closers []func() error
}

// Build opens the store and constructs every component named by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	repo, err := store.Open(cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app.Repo = repo
	app.closers = append(app.closers, repo.Close)
	logger.Info("database connected", "driver", cfg.DBDriver)

	subjects, err := subject.Load(cfg.SubjectsFile)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}

	gen, err := llm.New(ctx, llm.ProviderConfig{
		Provider:      cfg.Generator.Provider,
		Model:         cfg.Generator.Model,
		GeminiAPIKey:  cfg.Generator.GeminiAPIKey,
		OpenAIAPIKey:  cfg.Generator.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Generator.OpenAIBaseURL,
		GRPCAddress:   cfg.Generator.GRPCAddress,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}
	app.Generator = gen
	if c, ok := gen.(io.Closer); ok {
		app.closers = append(app.closers, c.Close)
	}
	logger.Info("generator ready", "generator", gen.Name())

	sink, err := audit.New(audit.Config{
		FileEnabled:  cfg.Audit.FileEnabled,
		Dir:          cfg.Audit.Dir,
		QueueSize:    cfg.Audit.QueueSize,
		StoreEnabled: cfg.Audit.StoreEnabled,
	}, repo, logger)
	if err != nil {
		return nil, fmt.Errorf("create audit sink: %w", err)
	}
	app.Audit = sink
	app.closers = append(app.closers, sink.Close)

	dispatcher := tutor.NewDispatcher(cfg.SideEffectQueueSize, cfg.Generator.StoreTimeout, logger)
	app.closers = append(app.closers, dispatcher.Close)

	svc, err := tutor.NewService(tutor.Deps{
		Store:      repo,
		Generator:  gen,
		Fallback:   fallback.New(subjects),
		Audit:      sink,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, tutor.Config{
		Model:             cfg.Generator.Model,
		GenerationTimeout: cfg.Generator.Timeout,
		StoreTimeout:      cfg.Generator.StoreTimeout,
		Temperature:       float32(cfg.Generator.Temperature),
		MaxTokens:         int32(cfg.Generator.MaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("create tutor service: %w", err)
	}
	app.Service = svc

	if cfg.Retention.Period > 0 {
		app.Retention = retention.New(repo, sink, cfg.Retention.Period, cfg.Retention.Interval, logger)
	}
	return app, nil
}

// Close stops the service and releases the store, generator and audit sinks.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
