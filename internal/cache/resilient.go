package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"clipfeed/internal/logging"
	"clipfeed/internal/model"
)

// BreakerConfig tunes the circuit breaker in front of the shared cache.
type BreakerConfig struct {
	FailureThreshold uint32        // consecutive failures that open the breaker
	OpenTimeout      time.Duration // time spent open before probing again
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

type lookupResult struct {
	snap  *model.TrendingSnapshot
	found bool
}

// ResilientTrendingCache puts a circuit breaker in front of a shared cache and keeps
// a process-local copy of every snapshot it sees. While the shared cache is failing,
// or the breaker is open, reads are answered from the local copy.
type ResilientTrendingCache struct {
	primary TrendingCache
	local   *MemoryTrendingCache
	breaker *gobreaker.CircuitBreaker[lookupResult]
	log     zerolog.Logger
}

func NewResilientTrendingCache(primary TrendingCache, cfg BreakerConfig) *ResilientTrendingCache {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}

	c := &ResilientTrendingCache{
		primary: primary,
		local:   NewMemoryTrendingCache(primary.TTL()),
		log:     logging.Component("TrendingCache"),
	}
	c.breaker = gobreaker.NewCircuitBreaker[lookupResult](gobreaker.Settings{
		Name:        "trending-cache",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A caller giving up is not a cache fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Breaker state changed")
		},
	})
	return c
}

func (c *ResilientTrendingCache) Get(ctx context.Context) (*model.TrendingSnapshot, bool, error) {
	res, err := c.breaker.Execute(func() (lookupResult, error) {
		snap, found, err := c.primary.Get(ctx)
		return lookupResult{snap: snap, found: found}, err
	})
	if err != nil {
		c.log.Debug().Err(err).Msg("Get falling back to local copy")
		return c.local.Get(ctx)
	}

	if res.found {
		_ = c.local.Set(ctx, res.snap)
	}
	return res.snap, res.found, nil
}

// Set always updates the local copy. A failed shared write is returned so the caller
// can log it; the local copy still serves this instance.
func (c *ResilientTrendingCache) Set(ctx context.Context, snap *model.TrendingSnapshot) error {
	_ = c.local.Set(ctx, snap)

	_, err := c.breaker.Execute(func() (lookupResult, error) {
		return lookupResult{}, c.primary.Set(ctx, snap)
	})
	if err != nil {
		return fmt.Errorf("shared trending cache: %w", err)
	}
	return nil
}

func (c *ResilientTrendingCache) TTL() time.Duration {
	return c.primary.TTL()
}

// State reports the breaker state. It is listed under components by /health/ready.
func (c *ResilientTrendingCache) State() gobreaker.State {
	return c.breaker.State()
}
