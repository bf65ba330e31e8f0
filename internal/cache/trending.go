package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clipfeed/internal/logging"
	"clipfeed/internal/model"
)

const (
	// TrendingCacheKey holds the shared snapshot when Redis backs the cache.
	TrendingCacheKey = "feed:trending:snapshot"

	// DefaultTrendingTTL is how long a snapshot is served before recomputation.
	DefaultTrendingTTL = time.Hour
)

// TrendingCache stores the current trending snapshot.
// Get returns whatever snapshot is held; callers decide freshness against TTL using
// the snapshot's ComputedAt, so an injected clock fully controls expiry.
type TrendingCache interface {
	// Get returns the stored snapshot, or found=false when none is held.
	Get(ctx context.Context) (snap *model.TrendingSnapshot, found bool, err error)

	// Set replaces the stored snapshot.
	Set(ctx context.Context, snap *model.TrendingSnapshot) error

	// TTL is the maximum age at which a snapshot is still valid.
	TTL() time.Duration
}

// MemoryTrendingCache keeps the snapshot in process memory.
// Each server instance holds its own independent copy.
type MemoryTrendingCache struct {
	mu   sync.RWMutex
	snap *model.TrendingSnapshot
	ttl  time.Duration
}

// NewMemoryTrendingCache creates a process-local cache. A non-positive ttl uses DefaultTrendingTTL.
func NewMemoryTrendingCache(ttl time.Duration) *MemoryTrendingCache {
	if ttl <= 0 {
		ttl = DefaultTrendingTTL
	}
	return &MemoryTrendingCache{ttl: ttl}
}

func (c *MemoryTrendingCache) Get(_ context.Context) (*model.TrendingSnapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, c.snap != nil, nil
}

func (c *MemoryTrendingCache) Set(_ context.Context, snap *model.TrendingSnapshot) error {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	return nil
}

func (c *MemoryTrendingCache) TTL() time.Duration {
	return c.ttl
}

// RedisTrendingCache shares one snapshot across all instances through a Redis string key.
type RedisTrendingCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisTrendingCache creates a cache backed by Redis. A non-positive ttl uses DefaultTrendingTTL.
func NewRedisTrendingCache(client *redis.Client, ttl time.Duration) *RedisTrendingCache {
	if ttl <= 0 {
		ttl = DefaultTrendingTTL
	}
	return &RedisTrendingCache{
		client: client,
		key:    TrendingCacheKey,
		ttl:    ttl,
		log:    logging.Component("TrendingCache"),
	}
}

// Get reads and decodes the snapshot. A missing key is a miss, not an error.
func (c *RedisTrendingCache) Get(ctx context.Context) (*model.TrendingSnapshot, bool, error) {
	startTime := time.Now()

	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug().Str("key", c.key).Msg("Get NOT_FOUND")
		return nil, false, nil
	}
	if err != nil {
		c.log.Error().Err(err).Str("key", c.key).Msg("Get FAILED")
		return nil, false, fmt.Errorf("get trending snapshot: %w", err)
	}

	var snap model.TrendingSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.log.Error().Err(err).Str("key", c.key).Msg("Get decode FAILED")
		return nil, false, fmt.Errorf("decode trending snapshot: %w", err)
	}

	c.log.Debug().
		Str("version", snap.Version).
		Int("videos", len(snap.Videos)).
		Dur("duration", time.Since(startTime)).
		Msg("Get OK")
	return &snap, true, nil
}

// Set stores the snapshot with a Redis expiry equal to the TTL, so Redis drops it
// no later than the service would treat it as stale.
func (c *RedisTrendingCache) Set(ctx context.Context, snap *model.TrendingSnapshot) error {
	startTime := time.Now()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode trending snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		c.log.Error().Err(err).Str("key", c.key).Msg("Set FAILED")
		return fmt.Errorf("set trending snapshot: %w", err)
	}

	c.log.Info().
		Str("version", snap.Version).
		Int("videos", len(snap.Videos)).
		Int("bytes", len(data)).
		Dur("duration", time.Since(startTime)).
		Msg("Set OK")
	return nil
}

func (c *RedisTrendingCache) TTL() time.Duration {
	return c.ttl
}
