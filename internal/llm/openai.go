package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dwsmith1983/narrator/internal/resilience"
	"github.com/dwsmith1983/narrator/pkg/types"
)

var _ Provider = (*OpenAIProvider)(nil)

const defaultModel = "gpt-4o-mini"

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // optional; any OpenAI-compatible endpoint
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// OpenAIProvider implements Provider against the chat completions API.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAI creates a provider. Retries are disabled on the SDK client;
// retrying belongs to the resilient wrapper.
func NewOpenAI(cfg OpenAIConfig, opts ...option.RequestOption) *OpenAIProvider {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	reqOpts = append(reqOpts, opts...)

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAIProvider{
		client:    openai.NewClient(reqOpts...),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}
}

// Generate sends a plain chat completion request.
func (p *OpenAIProvider) Generate(ctx context.Context, req types.LlmRequest) (*types.LlmResponse, error) {
	return p.complete(ctx, p.params(req, nil))
}

// GenerateWithTools sends a chat completion request offering the given tools.
func (p *OpenAIProvider) GenerateWithTools(ctx context.Context, req types.LlmRequest, tools []types.ToolDefinition) (*types.LlmResponse, error) {
	return p.complete(ctx, p.params(req, tools))
}

func (p *OpenAIProvider) params(req types.LlmRequest, tools []types.ToolDefinition) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case types.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: msgs,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	} else if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.maxTokens))
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		})
	}
	return params
}

func (p *OpenAIProvider) complete(ctx context.Context, params openai.ChatCompletionNewParams) (*types.LlmResponse, error) {
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}

	choice := completion.Choices[0]
	resp := &types.LlmResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			return nil, fmt.Errorf("%w: tool call %q has malformed arguments", ErrInvalidResponse, tc.Function.Name)
		}
		resp.ToolCalls = append(resp.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	if resp.Content == "" && len(resp.ToolCalls) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}
	return resp, nil
}

// classifyError maps SDK errors onto the provider error classes. Request-class
// HTTP statuses are marked permanent so the resilient caller does not retry them.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("%w: status %d: %s", ErrRequestFailed, apiErr.StatusCode, apiErr.Message)
		if isPermanentStatus(apiErr.StatusCode) {
			return resilience.Permanent(wrapped)
		}
		return wrapped
	}
	return fmt.Errorf("%w: %w", ErrRequestFailed, err)
}

func isPermanentStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
