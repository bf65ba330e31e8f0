package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clipfeed/internal/logging"
)

// Connect parses a URL of the form redis://[:password@]host:port[/db], opens a client
// and pings it so startup fails fast when Redis is unreachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log := logging.Component("Redis")
	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Connected to redis")
	return client, nil
}
