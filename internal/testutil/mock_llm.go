package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/dwsmith1983/narrator/internal/llm"
	"github.com/dwsmith1983/narrator/pkg/types"
)

var _ llm.Provider = (*MockLLM)(nil)

// MockLLM is a scripted llm.Provider. Responses and errors are consumed in
// order; once exhausted, Fallback (or an error) is returned.
type MockLLM struct {
	mu        sync.Mutex
	responses []MockReply
	requests  []types.LlmRequest
	tools     [][]types.ToolDefinition

	Fallback *MockReply
}

// MockReply is one scripted provider outcome.
type MockReply struct {
	Content   string
	ToolCalls []types.ToolCall
	Err       error
}

// ErrNoScriptedReply is returned when the script is exhausted.
var ErrNoScriptedReply = errors.New("no scripted reply")

// NewMockLLM creates a provider that answers with the given replies in order.
func NewMockLLM(replies ...MockReply) *MockLLM {
	return &MockLLM{responses: replies}
}

// Reply appends a scripted reply.
func (m *MockLLM) Reply(r MockReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
}

func (m *MockLLM) Generate(_ context.Context, req types.LlmRequest) (*types.LlmResponse, error) {
	return m.next(req, nil)
}

func (m *MockLLM) GenerateWithTools(_ context.Context, req types.LlmRequest, tools []types.ToolDefinition) (*types.LlmResponse, error) {
	return m.next(req, tools)
}

func (m *MockLLM) next(req types.LlmRequest, tools []types.ToolDefinition) (*types.LlmResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.tools = append(m.tools, tools)

	var r MockReply
	switch {
	case len(m.responses) > 0:
		r = m.responses[0]
		m.responses = m.responses[1:]
	case m.Fallback != nil:
		r = *m.Fallback
	default:
		return nil, ErrNoScriptedReply
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &types.LlmResponse{Content: r.Content, ToolCalls: r.ToolCalls}, nil
}

// Requests returns every request received so far.
func (m *MockLLM) Requests() []types.LlmRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.LlmRequest(nil), m.requests...)
}

// Calls returns how many requests were received.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
