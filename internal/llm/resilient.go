package llm

import (
	"context"

	"github.com/dwsmith1983/narrator/internal/resilience"
	"github.com/dwsmith1983/narrator/pkg/types"
)

var _ Provider = (*ResilientProvider)(nil)

// ResilientProvider routes every call to the wrapped provider through a
// resilience.Caller. Wrappers that share a Caller share its breaker.
type ResilientProvider struct {
	inner  Provider
	caller *resilience.Caller
}

// NewResilient wraps inner with retry and circuit breaking.
func NewResilient(inner Provider, caller *resilience.Caller) *ResilientProvider {
	return &ResilientProvider{inner: inner, caller: caller}
}

// Generate calls the wrapped provider with retries.
func (p *ResilientProvider) Generate(ctx context.Context, req types.LlmRequest) (*types.LlmResponse, error) {
	return resilience.Do(ctx, p.caller, "llm.generate", func(ctx context.Context) (*types.LlmResponse, error) {
		return p.inner.Generate(ctx, req)
	})
}

// GenerateWithTools calls the wrapped provider with retries.
func (p *ResilientProvider) GenerateWithTools(ctx context.Context, req types.LlmRequest, tools []types.ToolDefinition) (*types.LlmResponse, error) {
	return resilience.Do(ctx, p.caller, "llm.generate_with_tools", func(ctx context.Context) (*types.LlmResponse, error) {
		return p.inner.GenerateWithTools(ctx, req, tools)
	})
}
