// Package llm wraps the external text generation capabilities behind a
// single Generator interface.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Errors shared by all providers.
var (
	ErrUnavailable   = errors.New("generation capability unavailable")
	ErrEmptyResponse = errors.New("generation returned empty text")
)

// Role identifies the author of a conversation message.
type Role string

// Roles understood by every provider.
const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn of the conversation tail sent with a prompt.
type Message struct {
	Role Role
	Text string
}

// PromptSpec describes a single generation call.
type PromptSpec struct {
	Model             string
	SystemInstruction string
	History           []Message
	Prompt            string
	Temperature       float32
	MaxTokens         int32
	// JSON asks the provider for a JSON object reply when it supports it.
	JSON bool
}

// Generator produces raw text for a prompt.
type Generator interface {
	Generate(ctx context.Context, spec PromptSpec) (string, error)
	Name() string
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, spec PromptSpec) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, spec PromptSpec) (string, error) {
	return f(ctx, spec)
}

// Name implements Generator.
func (f GeneratorFunc) Name() string { return "func" }

// Unavailable is a Generator that always fails. It stands in for a provider
// that could not be configured.
type Unavailable struct {
	Reason string
}

// Generate implements Generator.
func (u Unavailable) Generate(context.Context, PromptSpec) (string, error) {
	if u.Reason == "" {
		return "", ErrUnavailable
	}
	return "", fmt.Errorf("%w: %s", ErrUnavailable, u.Reason)
}

// Name implements Generator.
func (u Unavailable) Name() string { return "unavailable" }
