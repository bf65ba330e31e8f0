package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"clipfeed/internal/cache"
	"clipfeed/internal/logging"
	"clipfeed/internal/metrics"
	"clipfeed/internal/model"
	"clipfeed/internal/repository"
)

const (
	// DefaultTrendingWindow is the engagement window for views and likes.
	DefaultTrendingWindow = 24 * time.Hour

	// DefaultRecomputeTimeout bounds one snapshot recomputation.
	DefaultRecomputeTimeout = 30 * time.Second

	recomputeKey = "trending"
)

type TrendingConfig struct {
	DefaultLimit     int
	MaxLimit         int
	Window           time.Duration
	RecomputeTimeout time.Duration
}

func DefaultTrendingConfig() TrendingConfig {
	return TrendingConfig{
		DefaultLimit:     FeedDefaultLimit,
		MaxLimit:         FeedMaxLimit,
		Window:           DefaultTrendingWindow,
		RecomputeTimeout: DefaultRecomputeTimeout,
	}
}

// TrendingService ranks ready videos by windowed engagement and serves pages from a
// cached snapshot. Concurrent requests that find the snapshot stale share one recomputation.
type TrendingService struct {
	videoRepo      repository.VideoRepository
	engagementRepo repository.EngagementRepository
	cache          cache.TrendingCache
	group          singleflight.Group
	metrics        metrics.Recorder
	cfg            TrendingConfig
	now            func() time.Time
	log            zerolog.Logger
}

func NewTrendingService(
	videoRepo repository.VideoRepository,
	engagementRepo repository.EngagementRepository,
	trendingCache cache.TrendingCache,
	recorder metrics.Recorder,
	cfg TrendingConfig,
) *TrendingService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = FeedDefaultLimit
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultTrendingWindow
	}
	if cfg.RecomputeTimeout <= 0 {
		cfg.RecomputeTimeout = DefaultRecomputeTimeout
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &TrendingService{
		videoRepo:      videoRepo,
		engagementRepo: engagementRepo,
		cache:          trendingCache,
		metrics:        recorder,
		cfg:            cfg,
		now:            time.Now,
		log:            logging.Component("TrendingService"),
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *TrendingService) SetClock(now func() time.Time) {
	s.now = now
}

// GetTrending returns one page of the trending ranking.
// Ranks are 1-based on the first page and model.RankUnknown on pages requested with a cursor.
// A cursor that is not in the current snapshot yields an empty page.
func (s *TrendingService) GetTrending(ctx context.Context, viewerID string, cursor *string, limit int) (*model.TrendingResponse, error) {
	startTime := time.Now()
	limit = clampLimit(limit, s.cfg.DefaultLimit, s.cfg.MaxLimit)

	snap, err := s.snapshot(ctx)
	if err != nil {
		s.metrics.RecordFeedRequest("trending", "error", time.Since(startTime))
		s.log.Error().Err(err).Str("viewer", viewerID).Msg("GetTrending FAILED")
		return nil, err
	}

	page, hasMore := pageAfter(snap.Videos, cursor, limit)

	videos := make([]model.Video, len(page))
	for i := range page {
		score := page[i].Score
		videos[i] = page[i].Video
		videos[i].TrendingScore = &score
	}

	liked := map[string]bool{}
	if viewerID != "" && len(videos) > 0 {
		liked, err = s.engagementRepo.CheckLikes(ctx, viewerID, videoIDs(videos))
		if err != nil {
			s.metrics.RecordFeedRequest("trending", "error", time.Since(startTime))
			return nil, fmt.Errorf("check likes: %w", err)
		}
	}

	cards := make([]model.TrendingCard, len(videos))
	for i, v := range videos {
		rank := model.RankUnknown
		if cursor == nil {
			rank = i + 1
		}
		cards[i] = model.TrendingCard{
			VideoCard: model.VideoCard{Video: v, IsLiked: liked[v.ID]},
			Rank:      rank,
		}
	}

	var nextCursor *string
	if hasMore {
		c := videos[len(videos)-1].ID
		nextCursor = &c
	}

	s.metrics.RecordFeedRequest("trending", "ok", time.Since(startTime))
	s.log.Info().
		Str("viewer", viewerID).
		Str("snapshot", snap.Version).
		Int("results", len(cards)).
		Bool("has_more", hasMore).
		Dur("duration", time.Since(startTime)).
		Msg("GetTrending OK")

	return &model.TrendingResponse{
		Results:    cards,
		NextCursor: nextCursor,
		HasMore:    hasMore,
		Snapshot:   snap.SnapshotInfo,
	}, nil
}

// pageAfter slices the ranking after the cursor's position.
func pageAfter(ranked []model.ScoredVideo, cursor *string, limit int) ([]model.ScoredVideo, bool) {
	start := 0
	if cursor != nil {
		start = -1
		for i := range ranked {
			if ranked[i].Video.ID == *cursor {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, false
		}
	}

	end := start + limit
	if end >= len(ranked) {
		return ranked[start:], false
	}
	return ranked[start:end], true
}

// snapshot returns a valid snapshot, recomputing it at most once at a time per process.
func (s *TrendingService) snapshot(ctx context.Context) (*model.TrendingSnapshot, error) {
	if snap, ok := s.lookup(ctx); ok {
		s.metrics.RecordTrendingCache("hit")
		return snap, nil
	}
	return s.flight(ctx, true)
}

// Refresh recomputes the snapshot regardless of its age. It joins a recomputation that
// is already running instead of starting a second one.
func (s *TrendingService) Refresh(ctx context.Context) (model.SnapshotInfo, error) {
	snap, err := s.flight(ctx, false)
	if err != nil {
		return model.SnapshotInfo{}, err
	}
	return snap.SnapshotInfo, nil
}

// flight joins or starts the single in-process recomputation. With recheck set, a
// snapshot stored by a flight that finished just before is reused.
func (s *TrendingService) flight(ctx context.Context, recheck bool) (*model.TrendingSnapshot, error) {
	ch := s.group.DoChan(recomputeKey, func() (interface{}, error) {
		if recheck {
			if snap, ok := s.lookup(ctx); ok {
				return snap, nil
			}
		}
		// Detached from the first caller so its cancellation does not fail the waiters.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RecomputeTimeout)
		defer cancel()
		return s.recompute(rctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.metrics.RecordTrendingCache("shared")
		}
		return res.Val.(*model.TrendingSnapshot), nil
	}
}

// lookup returns the cached snapshot if it is younger than the TTL.
// A cache read error is logged and treated as a miss.
func (s *TrendingService) lookup(ctx context.Context) (*model.TrendingSnapshot, bool) {
	snap, found, err := s.cache.Get(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Cache read FAILED, recomputing")
		return nil, false
	}
	if !found {
		s.metrics.RecordTrendingCache("miss")
		return nil, false
	}
	if s.now().Sub(snap.ComputedAt) >= s.cache.TTL() {
		s.metrics.RecordTrendingCache("stale")
		return nil, false
	}
	return snap, true
}

// recompute scores every candidate, sorts, and stores the new snapshot.
// A failed cache write is logged; the computed snapshot is still served.
func (s *TrendingService) recompute(ctx context.Context) (*model.TrendingSnapshot, error) {
	startTime := time.Now()
	now := s.now()

	candidates, err := s.videoRepo.TrendingCandidates(ctx, now.Add(-s.cfg.Window))
	if err != nil {
		s.metrics.RecordTrendingRecompute(time.Since(startTime), 0, err)
		return nil, fmt.Errorf("recompute trending: %w", err)
	}

	snap := &model.TrendingSnapshot{
		SnapshotInfo: model.SnapshotInfo{
			Version:    newSnapshotVersion(),
			ComputedAt: now,
		},
		Videos: rankCandidates(candidates),
	}

	if err := s.cache.Set(ctx, snap); err != nil {
		s.log.Warn().Err(err).Str("snapshot", snap.Version).Msg("Cache write FAILED")
	}

	s.metrics.RecordTrendingRecompute(time.Since(startTime), len(snap.Videos), nil)
	s.log.Info().
		Str("snapshot", snap.Version).
		Int("candidates", len(candidates)).
		Int("ranked", len(snap.Videos)).
		Dur("duration", time.Since(startTime)).
		Msg("Recompute OK")
	return snap, nil
}

// rankCandidates scores ready candidates and sorts them by score, newest first on ties, then id.
func rankCandidates(candidates []model.TrendingCandidate) []model.ScoredVideo {
	type scored struct {
		model.ScoredVideo
		points int64
	}

	list := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if !c.IsReady() {
			continue
		}
		points := trendingPoints(c.Views24h, c.Likes24h, c.SharesCount, c.CommentsCount)
		list = append(list, scored{
			ScoredVideo: model.ScoredVideo{Video: c.Video, Score: float64(points) / 10},
			points:      points,
		})
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.points != b.points {
			return a.points > b.points
		}
		if !a.Video.CreatedAt.Equal(b.Video.CreatedAt) {
			return a.Video.CreatedAt.After(b.Video.CreatedAt)
		}
		return a.Video.ID < b.Video.ID
	})

	ranked := make([]model.ScoredVideo, len(list))
	for i := range list {
		ranked[i] = list[i].ScoredVideo
	}
	return ranked
}

func newSnapshotVersion() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
