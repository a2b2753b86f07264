package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini generates text with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini generator.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Name implements Generator.
func (g *Gemini) Name() string { return "gemini:" + g.model }

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, spec PromptSpec) (string, error) {
	model := spec.Model
	if model == "" {
		model = g.model
	}

	contents := make([]*genai.Content, 0, len(spec.History)+1)
	for _, m := range spec.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(spec.Prompt, genai.RoleUser))

	temp := spec.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: spec.MaxTokens,
	}
	if spec.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(spec.SystemInstruction, genai.RoleUser)
	}
	if spec.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	res, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := res.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
