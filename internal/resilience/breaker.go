// Package resilience wraps unreliable downstream calls with a circuit breaker
// and retry-with-backoff.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dwsmith1983/narrator/internal/clock"
)

// Mode is the admission state of a circuit breaker.
type Mode int

const (
	Closed   Mode = iota // normal operation
	Open                 // failing fast
	HalfOpen             // probing
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(m))
	}
}

// ErrCircuitOpen is matched by every rejection returned from Allow.
var ErrCircuitOpen = errors.New("circuit breaker open")

// OpenError is returned by Allow while the breaker rejects calls.
// RetryAfter is the remaining cooldown; it is zero when a half-open probe is
// already in flight.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("circuit breaker %q open: probe in flight", e.Name)
	}
	return fmt.Sprintf("circuit breaker %q open: retry after %s", e.Name, e.RetryAfter)
}

func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold    int           // consecutive failures before opening (default 5)
	OpenDuration        time.Duration // how long to stay open before half-open (default 30s)
	HalfOpenMaxRequests int           // concurrent probes allowed while half-open (default 1)
}

// DefaultBreakerConfig returns the default config.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		OpenDuration:        30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Metrics is a point-in-time snapshot of breaker counters.
type Metrics struct {
	Mode                Mode
	ConsecutiveFailures int
	TotalSuccesses      int64
	TotalFailures       int64
	OpenCount           int64
	LastOpenedAt        time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock overrides the wall clock used for cooldown math.
func WithClock(c clock.Clock) BreakerOption {
	return func(b *Breaker) { b.clock = clock.OrSystem(c) }
}

// WithBreakerLogger sets the logger used for state-change messages.
func WithBreakerLogger(l *slog.Logger) BreakerOption {
	return func(b *Breaker) { b.logger = l }
}

// WithStateChangeHook registers a callback invoked on every mode change.
// The hook runs with the breaker lock held and must not call back into it.
func WithStateChangeHook(fn func(name string, from, to Mode)) BreakerOption {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker tracks the health of one downstream dependency. A single instance
// is meant to be shared by every caller of that dependency.
type Breaker struct {
	name     string
	mu       sync.Mutex
	config   BreakerConfig
	clock    clock.Clock
	logger   *slog.Logger
	onChange func(name string, from, to Mode)

	mode             Mode
	consecutiveFails int
	successes        int64
	failures         int64
	opens            int64
	openedAt         time.Time
	probesInFlight   int
}

// NewBreaker creates a Breaker with the given config, applying defaults.
func NewBreaker(name string, config BreakerConfig, opts ...BreakerOption) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	b := &Breaker{
		name:   name,
		config: config,
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed. It returns an *OpenError while
// the breaker is open or while the half-open probe budget is exhausted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	switch b.currentMode(now) {
	case Open:
		return &OpenError{Name: b.name, RetryAfter: b.openedAt.Add(b.config.OpenDuration).Sub(now)}
	case HalfOpen:
		if b.probesInFlight >= b.config.HalfOpenMaxRequests {
			return &OpenError{Name: b.name}
		}
		b.probesInFlight++
	}
	return nil
}

// RecordSuccess resets the failure streak and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	b.consecutiveFails = 0
	b.probesInFlight = 0
	b.transition(Closed)
}

// RecordFailure counts a failed call. A failed probe reopens the breaker
// immediately; a failure while open restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.failures++
	b.consecutiveFails++

	switch b.currentMode(now) {
	case HalfOpen:
		b.trip(now)
	case Open:
		b.openedAt = now
	case Closed:
		if b.consecutiveFails >= b.config.FailureThreshold {
			b.trip(now)
		}
	}
}

// release gives back a half-open probe slot without recording an outcome.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.probesInFlight > 0 {
		b.probesInFlight--
	}
}

// State returns the current mode, moving Open to HalfOpen once the cooldown elapsed.
func (b *Breaker) State() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentMode(b.clock.Now())
}

// Metrics returns a snapshot of the breaker counters.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		Mode:                b.currentMode(b.clock.Now()),
		ConsecutiveFailures: b.consecutiveFails,
		TotalSuccesses:      b.successes,
		TotalFailures:       b.failures,
		OpenCount:           b.opens,
		LastOpenedAt:        b.openedAt,
	}
}

// ForceState pins the breaker into the given mode. Forcing Open starts a
// fresh cooldown; forcing Closed clears the failure streak.
func (b *Breaker) ForceState(m Mode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probesInFlight = 0
	switch m {
	case Open:
		b.trip(b.clock.Now())
	case Closed:
		b.consecutiveFails = 0
		b.transition(Closed)
	default:
		b.transition(m)
	}
}

// Reset returns the breaker to a fresh Closed state and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transition(Closed)
	b.consecutiveFails = 0
	b.successes = 0
	b.failures = 0
	b.opens = 0
	b.openedAt = time.Time{}
	b.probesInFlight = 0
}

// currentMode must be called with mu held.
func (b *Breaker) currentMode(now time.Time) Mode {
	if b.mode == Open && !now.Before(b.openedAt.Add(b.config.OpenDuration)) {
		b.probesInFlight = 0
		b.transition(HalfOpen)
	}
	return b.mode
}

func (b *Breaker) trip(now time.Time) {
	b.openedAt = now
	b.opens++
	b.probesInFlight = 0
	b.transition(Open)
}

func (b *Breaker) transition(to Mode) {
	from := b.mode
	if from == to {
		return
	}
	b.mode = to
	if to == Open {
		b.logger.Warn("circuit breaker opened", "breaker", b.name, "consecutiveFailures", b.consecutiveFails)
	} else {
		b.logger.Info("circuit breaker state changed", "breaker", b.name, "from", from.String(), "to", to.String())
	}
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
