package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderGRPC   = "grpc"
	ProviderNone   = "none"
)

// ProviderConfig selects and configures a generation provider.
type ProviderConfig struct {
	Provider      string
	Model         string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GRPCAddress   string
}

// New builds the configured Generator. A provider that cannot be set up,
// for example because its credential is missing, yields an Unavailable
// generator so every request takes the deterministic path.
func New(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	unavailable := func(reason string) Generator {
		logger.Warn("generation provider unavailable", "provider", cfg.Provider, "reason", reason)
		return Unavailable{Reason: reason}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return unavailable("missing GEMINI_API_KEY"), nil
		}
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			return unavailable(err.Error()), nil
		}
		return g, nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return unavailable("missing OPENAI_API_KEY"), nil
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.Model, cfg.OpenAIBaseURL)
	case ProviderGRPC:
		if cfg.GRPCAddress == "" {
			return unavailable("missing GENERATOR_GRPC_ADDR"), nil
		}
		gc := DefaultGRPCConfig(cfg.GRPCAddress)
		gc.Model = cfg.Model
		return NewGRPC(gc, logger)
	case ProviderNone, "":
		return Unavailable{Reason: "no provider configured"}, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
