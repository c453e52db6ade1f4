// Package condition judges free-text narrative conditions with the AI.
package condition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/narrator/internal/clock"
	"github.com/dwsmith1983/narrator/internal/llm"
	"github.com/dwsmith1983/narrator/internal/narrative"
)

// DefaultThreshold is the confidence a positive verdict needs to count as met.
const DefaultThreshold = 0.7

const temperature = 0.1

// ErrEvaluation means the condition could not be judged. It is distinct
// from a verdict of "not met".
var ErrEvaluation = errors.New("condition evaluation failed")

// Result is the AI's verdict on one condition.
type Result struct {
	Result     bool    `json:"result"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithThreshold sets the confidence threshold, clamped to [0, 1].
func WithThreshold(t float64) Option {
	return func(e *Evaluator) { e.threshold = min(max(t, 0), 1) }
}

// WithCache keeps verdicts for ttl, keyed by condition and rendered context.
func WithCache(ttl time.Duration) Option {
	return func(e *Evaluator) { e.cacheTTL = ttl }
}

// WithClock sets the clock used for cache expiry.
func WithClock(c clock.Clock) Option {
	return func(e *Evaluator) { e.clock = c }
}

// WithLogger sets the evaluator logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// Evaluator asks the AI whether free-text conditions hold.
type Evaluator struct {
	provider  llm.Provider
	threshold float64
	cacheTTL  time.Duration
	cache     *resultCache
	clock     clock.Clock
	logger    *slog.Logger
}

// NewEvaluator creates an Evaluator backed by provider.
func NewEvaluator(provider llm.Provider, opts ...Option) *Evaluator {
	e := &Evaluator{
		provider:  provider,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.clock = clock.OrSystem(e.clock)
	if e.cacheTTL > 0 {
		e.cache = newResultCache(e.cacheTTL, e.clock)
	}
	return e
}

// Threshold returns the configured confidence threshold.
func (e *Evaluator) Threshold() float64 { return e.threshold }

// Evaluate asks the AI whether description holds in evalCtx. A reply that
// is not valid JSON or lacks "result" yields an error wrapping ErrEvaluation.
func (e *Evaluator) Evaluate(ctx context.Context, description string, evalCtx EvaluationContext) (*Result, error) {
	user := userPrompt(description, evalCtx)
	var key [32]byte
	if e.cache != nil {
		key = cacheKey(description, user)
		if r, ok := e.cache.get(key); ok {
			cacheHitsCounter.Add(ctx, 1)
			return &r, nil
		}
	}

	ctx, span := tracer.Start(ctx, "condition.evaluate", trace.WithAttributes(attribute.String("condition", description)))
	defer span.End()

	resp, err := e.provider.Generate(ctx, llm.UserPrompt(systemPrompt(e.threshold), user, temperature))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm call failed")
		recordEvaluation(ctx, false, err)
		return nil, fmt.Errorf("%w: %q: %w", ErrEvaluation, description, err)
	}

	r, err := parseResult(resp.Content)
	if err != nil {
		e.logger.Warn("unparseable condition verdict", "condition", description, "error", err)
		span.SetStatus(codes.Error, "invalid verdict")
		recordEvaluation(ctx, false, err)
		return nil, fmt.Errorf("%w: %q: %w", ErrEvaluation, description, err)
	}

	met := e.IsConditionMet(*r)
	span.SetAttributes(attribute.Bool("result", r.Result), attribute.Float64("confidence", r.Confidence))
	recordEvaluation(ctx, met, nil)
	e.logger.Debug("condition evaluated", "condition", description, "result", r.Result, "confidence", r.Confidence)
	if e.cache != nil {
		e.cache.put(key, *r)
	}
	return r, nil
}

// IsConditionMet reports whether a verdict is positive with enough confidence.
func (e *Evaluator) IsConditionMet(r Result) bool {
	return r.Result && r.Confidence >= e.threshold
}

// Resolve evaluates every AI-judged CUSTOM condition in triggers and records
// the outcome in tc. Conditions that could not be judged are left unset, so
// they count as not met, and their errors are joined into the return value.
func (e *Evaluator) Resolve(ctx context.Context, triggers []narrative.Trigger, tc *narrative.TriggerContext, evalCtx EvaluationContext) error {
	var errs []error
	for _, c := range narrative.CustomConditions(triggers) {
		if _, done := tc.CustomResults[c.Description]; done {
			continue
		}
		r, err := e.Evaluate(ctx, c.Description, evalCtx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tc.SetCustomResult(c.Description, e.IsConditionMet(*r))
	}
	return errors.Join(errs...)
}

func parseResult(content string) (*Result, error) {
	body, err := llm.ExtractJSONObject(content)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Result     *bool    `json:"result"`
		Confidence *float64 `json:"confidence"`
		Reasoning  *string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON in response: %w", err)
	}
	if raw.Result == nil {
		return nil, errors.New("missing 'result' field in response")
	}
	r := &Result{Result: *raw.Result, Confidence: 0.5, Reasoning: "No reasoning provided"}
	if raw.Confidence != nil {
		r.Confidence = min(max(*raw.Confidence, 0), 1)
	}
	if raw.Reasoning != nil {
		r.Reasoning = *raw.Reasoning
	}
	return r, nil
}
