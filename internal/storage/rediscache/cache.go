package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds staleness for fan-out entries that miss an explicit
// invalidation, for example when an editor instance dies mid-unpublish.
const DefaultTTL = 24 * time.Hour

// Cache is the Redis-backed fan-out cache keyed by chat event identity.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

type CacheDependencies struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewCache(ctx context.Context, deps CacheDependencies) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     deps.Addr,
		Password: deps.Password,
		DB:       deps.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	ttl := deps.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// NewCacheWithClient wires an already-built client, used by tests.
func NewCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, key domain.ChatEventKey) (domain.FanOut, bool, error) {
	payload, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.FanOut{}, false, nil
		}
		return domain.FanOut{}, false, fmt.Errorf("failed to read fan-out cache: %w", err)
	}

	var fanOut domain.FanOut
	if err := json.Unmarshal(payload, &fanOut); err != nil {
		return domain.FanOut{}, false, fmt.Errorf("failed to decode cached fan-out: %w", err)
	}

	return fanOut, true, nil
}

func (c *Cache) Set(ctx context.Context, key domain.ChatEventKey, fanOut domain.FanOut) error {
	payload, err := json.Marshal(fanOut)
	if err != nil {
		return fmt.Errorf("failed to encode fan-out: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write fan-out cache: %w", err)
	}

	return nil
}

func (c *Cache) Invalidate(ctx context.Context, key domain.ChatEventKey) error {
	if err := c.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate fan-out cache: %w", err)
	}

	return nil
}

func cacheKey(key domain.ChatEventKey) string {
	return fmt.Sprintf("fanout:%s:%s:%s:%s", key.NodeType, key.EventType, key.ChannelID, key.TeamID)
}
