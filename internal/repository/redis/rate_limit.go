package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/planbeam/identity-service/internal/core/port"
)

// RateLimitStore implements the fixed-window counter on Redis via INCR with
// a window-length TTL set on the first attempt. Key expiry is the window
// reset; the count is never carried across windows.
type RateLimitStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRateLimitStore constructs a Redis-backed rate limit store.
func NewRateLimitStore(client *redis.Client, keyPrefix string) *RateLimitStore {
	return &RateLimitStore{client: client, keyPrefix: keyPrefix}
}

// Increment records one attempt against key within the fixed window.
func (s *RateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	storageKey := s.key(key)

	count, err := s.client.Incr(ctx, storageKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis incr: %w", err)
	}

	if count == 1 {
		if err := s.client.Expire(ctx, storageKey, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis expire: %w", err)
		}
		return int(count), window, nil
	}

	ttl, err := s.client.TTL(ctx, storageKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis ttl: %w", err)
	}
	if ttl < 0 {
		// Key lost its TTL (e.g. restored from a dump); restart the window.
		if err := s.client.Expire(ctx, storageKey, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis expire: %w", err)
		}
		ttl = window
	}

	return int(count), ttl, nil
}

func (s *RateLimitStore) key(identifier string) string {
	if s.keyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", s.keyPrefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
