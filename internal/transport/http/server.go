package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"clipfeed/internal/cache"
	"clipfeed/internal/config"
	"clipfeed/internal/database"
	"clipfeed/internal/handler"
	"clipfeed/internal/logging"
	"clipfeed/internal/metrics"
	"clipfeed/internal/redis"
	"clipfeed/internal/repository"
	"clipfeed/internal/service"
	"clipfeed/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logging.Component("Server")

	// 2. Connect to Database
	if cfg.DBAutoMigrate {
		if err := database.Migrate(cfg.MigrateURL()); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	readiness := map[string]Pinger{"postgres": db}
	components := map[string]StatusFunc{}

	// 3. Trending cache: shared through Redis when configured, per process otherwise
	var trendingCache cache.TrendingCache
	if cfg.RedisURL != "" {
		var client *goredis.Client
		client, err = redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		resilient := cache.NewResilientTrendingCache(
			cache.NewRedisTrendingCache(client, cfg.TrendingTTL),
			cache.DefaultBreakerConfig(),
		)
		trendingCache = resilient
		components["trending_cache_breaker"] = func() string { return resilient.State().String() }
		readiness["redis"] = PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	} else {
		trendingCache = cache.NewMemoryTrendingCache(cfg.TrendingTTL)
		log.Warn().Msg("REDIS_URL not set, trending snapshot is per process")
	}

	// 4. Wire repositories, services and handlers
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	videoRepo := repository.NewVideoRepository(db)
	followRepo := repository.NewFollowRepository(db)
	engagementRepo := repository.NewEngagementRepository(db)

	feedService := service.NewFeedService(
		videoRepo, followRepo, engagementRepo,
		service.NewSampler(cfg.RandomSeed),
		recorder,
		service.FeedConfig{
			DefaultLimit:    cfg.FeedDefaultLimit,
			MaxLimit:        cfg.FeedMaxLimit,
			RecentWindow:    cfg.RecentWindow,
			PopularMinViews: int64(cfg.PopularMinViews),
		},
	)
	trendingService := service.NewTrendingService(
		videoRepo, engagementRepo, trendingCache, recorder,
		service.TrendingConfig{
			DefaultLimit: cfg.FeedDefaultLimit,
			MaxLimit:     cfg.FeedMaxLimit,
			Window:       cfg.TrendingWindow,
		},
	)

	if cfg.TrendingRefreshInterval > 0 {
		refresher := worker.NewManager(trendingService, worker.ManagerConfig{
			Interval:       cfg.TrendingRefreshInterval,
			RefreshOnStart: true,
		})
		refresher.Start(ctx)
		defer refresher.Stop()
	}

	router := NewRouter(RouterConfig{
		FeedHandler:    handler.NewFeedHandler(feedService, trendingService),
		JWTSecret:      cfg.JWTSecret,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimitRequests,
		RateWindow:     cfg.RateLimitWindow,
		Metrics:        metrics.Handler(registry),
		Readiness:      readiness,
		Components:     components,
	})

	// 5. Serve until signalled
	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}
