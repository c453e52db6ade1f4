package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DeterministicWithoutJitter(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   6,
		BaseDelay:    1000 * time.Millisecond,
		MaxDelay:     30000 * time.Millisecond,
		JitterFactor: 0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1000 * time.Millisecond},
		{2, 2000 * time.Millisecond},
		{3, 4000 * time.Millisecond},
		{4, 8000 * time.Millisecond},
		{5, 16000 * time.Millisecond},
		{6, 30000 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Backoff(tt.attempt, nil), "attempt %d", tt.attempt)
	}
}

func TestBackoff_JitterStaysInBand(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 30 * time.Second, JitterFactor: 0.2}

	assert.Equal(t, 800*time.Millisecond, cfg.Backoff(1, func() float64 { return 0 }))
	assert.Equal(t, 1200*time.Millisecond, cfg.Backoff(1, func() float64 { return 1 }))
	assert.Equal(t, time.Second, cfg.Backoff(1, func() float64 { return 0.5 }))
}

func TestBackoff_SeededCallerIsReproducible(t *testing.T) {
	cfg := DefaultRetryConfig()
	a := NewCaller(NewBreaker("a", DefaultBreakerConfig()), cfg, WithSeed(42))
	b := NewCaller(NewBreaker("b", DefaultBreakerConfig()), cfg, WithSeed(42))

	for attempt := 1; attempt <= 5; attempt++ {
		da, db := a.Backoff(attempt), b.Backoff(attempt)
		assert.Equal(t, da, db)
		base := cfg.Backoff(attempt, nil)
		assert.InDelta(t, float64(base), float64(da), float64(base)*cfg.JitterFactor)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", errString("connection reset by peer"), true},
		{"server error", errString("status 503 service unavailable"), true},
		{"bad request", errString("status 400: invalid model"), false},
		{"unauthorized", errString("HTTP 401 Unauthorized"), false},
		{"forbidden", errString("HTTP/1.1 403 Forbidden"), false},
		{"status code", errString("upstream returned status code: 403"), false},
		{"reason phrase", errString("request failed: 401 Unauthorized"), false},
		{"digits inside a duration", errString("timeout after 1400ms"), true},
		{"digits inside an id", errString("request req_4013 reset"), true},
		{"bare number", errString("replayed 400 items before disconnect"), true},
		{"permanent marker", Permanent(errString("schema mismatch")), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }
