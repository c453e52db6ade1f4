package resilience

import (
	"math"
	"time"
)

// RetryConfig configures retry-with-backoff.
type RetryConfig struct {
	MaxRetries   int           // retries after the first attempt (default 3)
	BaseDelay    time.Duration // delay before the first retry (default 1s)
	MaxDelay     time.Duration // cap on any single delay (default 30s)
	JitterFactor float64       // symmetric jitter as a fraction of the delay (default 0.2)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.2,
	}
}

// Backoff returns the wait before retrying after the given failed attempt
// (1-based): min(base*2^(attempt-1), max) plus up to ±JitterFactor of that.
// rnd must return values in [0,1); it is ignored when JitterFactor is zero.
func (c RetryConfig) Backoff(attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(c.BaseDelay) * math.Pow(2, float64(attempt-1))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 && rnd != nil {
		delay += delay * c.JitterFactor * (2*rnd() - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
