package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool runs a set of Runners together and stops them together.
type Pool struct {
	runners []Runner
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

// NewPool creates an empty pool.
func NewPool(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{logger: logger}
}

// Add registers runners. It must be called before Start or Run.
func (p *Pool) Add(runners ...Runner) {
	p.runners = append(p.runners, runners...)
}

// Size returns the number of registered runners.
func (p *Pool) Size() int { return len(p.runners) }

// Run blocks until ctx is done or a runner returns an error, which cancels
// the rest.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range p.runners {
		g.Go(func() error {
			if err := r.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", r.Name(), err)
			}
			return nil
		})
	}
	p.logger.Info("worker pool started", "runners", len(p.runners))
	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

// Start runs the pool in the background.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan error, 1)
	go func() { p.done <- p.Run(ctx) }()
}

// Stop cancels the runners and waits for them, or for ctx to end. Items in
// flight finish and are recorded before their worker exits.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.logger.Warn("worker pool stop timed out")
		return ctx.Err()
	}
}
