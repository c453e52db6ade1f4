// Package llm defines the AI provider port and its implementations.
package llm

import (
	"context"
	"errors"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// Error classes reported by providers.
var (
	ErrRequestFailed   = errors.New("llm request failed")
	ErrInvalidResponse = errors.New("llm returned an invalid response")
)

// Provider generates completions from an AI backend.
type Provider interface {
	Generate(ctx context.Context, req types.LlmRequest) (*types.LlmResponse, error)
	GenerateWithTools(ctx context.Context, req types.LlmRequest, tools []types.ToolDefinition) (*types.LlmResponse, error)
}

// Float is a convenience for optional temperatures.
func Float(v float64) *float64 { return &v }

// Int is a convenience for optional token limits.
func Int(v int) *int { return &v }

// UserPrompt builds a single-turn request.
func UserPrompt(system, user string, temperature float64) types.LlmRequest {
	return types.LlmRequest{
		SystemPrompt: system,
		Messages:     []types.ChatMessage{{Role: types.RoleUser, Content: user}},
		Temperature:  Float(temperature),
	}
}
