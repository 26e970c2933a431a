// Package bootloader is the hand-off point to the external bootloader
// engine. Activation requests arrive on a Redis list; the engine picks up the
// published session state.
package bootloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	RequestKey = "ble-ota:bootloader"
	StateKey   = "ble-ota"
)

// RedisGate checks for bootloader activation requests without blocking.
type RedisGate struct {
	redis   *redis.Client
	logger  zerolog.Logger
	timeout time.Duration
}

func NewRedisGate(client *redis.Client, logger zerolog.Logger) *RedisGate {
	return &RedisGate{
		redis:   client,
		logger:  logger,
		timeout: 100 * time.Millisecond,
	}
}

// Check consumes at most one pending request and publishes the resulting
// session state.
func (g *RedisGate) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := g.redis.RPop(ctx, RequestKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read bootloader request: %w", err)
	}

	var session string
	switch req {
	case "activate":
		session = "active"
	case "deactivate":
		session = "inactive"
	default:
		g.logger.Warn().Str("request", req).Msg("Unknown bootloader request")
		return nil
	}

	g.logger.Info().Str("session", session).Msg("Bootloader session request")

	pipe := g.redis.Pipeline()
	pipe.HSet(ctx, StateKey, "bootloader", session)
	pipe.Publish(ctx, StateKey, "bootloader")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish bootloader session: %w", err)
	}
	return nil
}

// Clear drops queued activation requests.
func (g *RedisGate) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.redis.Del(ctx, RequestKey).Err(); err != nil {
		return fmt.Errorf("failed to clear bootloader requests: %w", err)
	}
	return nil
}

// Nop never activates a session.
type Nop struct{}

func (Nop) Check(context.Context) error { return nil }
func (Nop) Clear(context.Context) error { return nil }
