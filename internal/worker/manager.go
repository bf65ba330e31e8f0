package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"clipfeed/internal/logging"
	"clipfeed/internal/model"
)

const (
	// DefaultRefreshInterval keeps the snapshot younger than the default one hour TTL.
	DefaultRefreshInterval = 50 * time.Minute

	// DefaultRefreshTimeout bounds one background refresh.
	DefaultRefreshTimeout = time.Minute
)

// TrendingRefresher is implemented by service.TrendingService.
type TrendingRefresher interface {
	Refresh(ctx context.Context) (model.SnapshotInfo, error)
}

// Manager refreshes the trending snapshot in the background so requests rarely
// find it stale. Failures are logged and retried on the next tick.
type Manager struct {
	refresher TrendingRefresher
	interval  time.Duration
	timeout   time.Duration
	onStart   bool
	log       zerolog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerConfig holds configuration for the refresh manager.
type ManagerConfig struct {
	Interval       time.Duration // Time between refreshes
	Timeout        time.Duration // Bound on one refresh
	RefreshOnStart bool          // Warm the snapshot before the first tick
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Interval:       DefaultRefreshInterval,
		Timeout:        DefaultRefreshTimeout,
		RefreshOnStart: true,
	}
}

// NewManager creates a new refresh manager.
func NewManager(refresher TrendingRefresher, cfg ManagerConfig) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRefreshTimeout
	}

	return &Manager{
		refresher: refresher,
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		onStart:   cfg.RefreshOnStart,
		log:       logging.Component("TrendingRefresher"),
	}
}

// Start begins the refresh loop.
// Call Stop() to gracefully shut down.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.log.Info().Dur("interval", m.interval).Msg("Starting refresher")

	m.wg.Add(1)
	go m.run()
}

// Stop gracefully shuts down the loop.
// Blocks until an in-progress refresh has finished.
func (m *Manager) Stop() {
	m.log.Info().Msg("Stopping refresher")
	m.cancel()
	m.wg.Wait()
	m.log.Info().Msg("Refresher stopped")
}

func (m *Manager) run() {
	defer m.wg.Done()

	if m.onStart {
		m.refreshOnce()
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.refreshOnce()
		}
	}
}

func (m *Manager) refreshOnce() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	info, err := m.refresher.Refresh(ctx)
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.log.Error().Err(err).Dur("duration", time.Since(startTime)).Msg("Refresh FAILED")
		return
	}

	m.log.Info().
		Str("snapshot", info.Version).
		Dur("duration", time.Since(startTime)).
		Msg("Refresh OK")
}
