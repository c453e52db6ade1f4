package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/internal/resilience"
	"github.com/dwsmith1983/narrator/pkg/types"
)

func newTestServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "The innkeeper nods."}
  }]
}`

func TestOpenAIProvider_Generate(t *testing.T) {
	var seen map[string]any
	srv := newTestServer(t, http.StatusOK, completionBody, &seen)
	p := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "test-model"})

	resp, err := p.Generate(context.Background(), UserPrompt("You are the narrator.", "Greet the innkeeper", 0.3))
	require.NoError(t, err)
	assert.Equal(t, "The innkeeper nods.", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)

	assert.Equal(t, "test-model", seen["model"])
	msgs, ok := seen["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
	assert.InDelta(t, 0.3, seen["temperature"], 1e-9)
}

func TestOpenAIProvider_ToolCalls(t *testing.T) {
	body := `{
  "id": "chatcmpl-2", "object": "chat.completion", "created": 1700000000, "model": "m",
  "choices": [{
    "index": 0, "finish_reason": "tool_calls",
    "message": {"role": "assistant", "content": "", "tool_calls": [{
      "id": "call_1", "type": "function",
      "function": {"name": "give_item", "arguments": "{\"item\":\"key\"}"}
    }]}
  }]
}`
	var seen map[string]any
	srv := newTestServer(t, http.StatusOK, body, &seen)
	p := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL})

	resp, err := p.GenerateWithTools(context.Background(), UserPrompt("", "hand over the key", 0.5), []types.ToolDefinition{{
		Name:        "give_item",
		Description: "Give an item to the player",
		Parameters:  map[string]any{"type": "object"},
	}})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "give_item", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"item":"key"}`, string(resp.ToolCalls[0].Arguments))

	tools, ok := seen["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, tools, 1)
}

func TestOpenAIProvider_AuthErrorIsPermanent(t *testing.T) {
	srv := newTestServer(t, http.StatusUnauthorized,
		`{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`, nil)
	p := NewOpenAI(OpenAIConfig{APIKey: "bad", BaseURL: srv.URL})

	_, err := p.Generate(context.Background(), UserPrompt("", "hi", 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.True(t, resilience.IsPermanent(err))
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAIProvider_ServerErrorIsRetryable(t *testing.T) {
	srv := newTestServer(t, http.StatusServiceUnavailable, `{"error": {"message": "overloaded"}}`, nil)
	p := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})

	_, err := p.Generate(context.Background(), UserPrompt("", "hi", 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.True(t, resilience.IsRetryable(err))
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"id": "x", "object": "chat.completion", "created": 1, "model": "m", "choices": []}`, nil)
	p := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})

	_, err := p.Generate(context.Background(), UserPrompt("", "hi", 0))
	assert.True(t, errors.Is(err, ErrInvalidResponse))
}
