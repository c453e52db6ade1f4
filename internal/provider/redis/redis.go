// Package redis implements the Provider interface using Redis/Valkey.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*RedisProvider)(nil)

const defaultPrefix = "narrator:"

// RedisProvider implements the Provider interface backed by Redis/Valkey.
// Multi-key updates run as Lua scripts so each operation is atomic.
type RedisProvider struct {
	client *goredis.Client
	prefix string

	enqueueScript    *goredis.Script
	claimScript      *goredis.Script
	transitionScript *goredis.Script
	resultScript     *goredis.Script
	resultOnce       *goredis.Script
	cancelScript     *goredis.Script
	approveScript    *goredis.Script
}

// New creates a new RedisProvider.
func New(cfg *types.RedisConfig) *RedisProvider {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg.KeyPrefix)
}

// NewFromClient creates a RedisProvider from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisProvider{
		client:           client,
		prefix:           prefix,
		enqueueScript:    goredis.NewScript(enqueueLua),
		claimScript:      goredis.NewScript(claimLua),
		transitionScript: goredis.NewScript(transitionLua),
		resultScript:     goredis.NewScript(setResultLua),
		resultOnce:       goredis.NewScript(setResultOnceLua),
		cancelScript:     goredis.NewScript(cancelLua),
		approveScript:    goredis.NewScript(approveLua),
	}
}

// Start initializes the provider connection.
func (p *RedisProvider) Start(ctx context.Context) error {
	return p.Ping(ctx)
}

// Stop closes the provider connection.
func (p *RedisProvider) Stop(_ context.Context) error {
	return p.client.Close()
}

// Ping checks connectivity to the Redis server.
func (p *RedisProvider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client (for advanced usage/testing).
func (p *RedisProvider) Client() *goredis.Client {
	return p.client
}
