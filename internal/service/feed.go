package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"clipfeed/internal/logging"
	"clipfeed/internal/metrics"
	"clipfeed/internal/model"
	"clipfeed/internal/repository"
)

const (
	// FeedDefaultLimit is the default number of videos per page
	FeedDefaultLimit = 20

	// FeedMaxLimit is the maximum number of videos per page
	FeedMaxLimit = 50

	// DefaultRecentWindow bounds the trending and recent sources.
	DefaultRecentWindow = 24 * time.Hour

	// DefaultPopularMinViews is the view count a video must exceed to be popular.
	DefaultPopularMinViews = 10

	// maxFillRounds bounds the source queries of one page. Each round doubles the
	// budgets of the previous one.
	maxFillRounds = 4
)

type FeedConfig struct {
	DefaultLimit    int
	MaxLimit        int
	RecentWindow    time.Duration
	PopularMinViews int64
}

// DefaultFeedConfig returns the production defaults.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		DefaultLimit:    FeedDefaultLimit,
		MaxLimit:        FeedMaxLimit,
		RecentWindow:    DefaultRecentWindow,
		PopularMinViews: DefaultPopularMinViews,
	}
}

// FeedService composes the "for you" feed from four weighted candidate sources.
type FeedService struct {
	videoRepo      repository.VideoRepository
	followRepo     repository.FollowRepository
	engagementRepo repository.EngagementRepository
	sampler        Sampler
	metrics        metrics.Recorder
	cfg            FeedConfig
	now            func() time.Time
	log            zerolog.Logger
}

func NewFeedService(
	videoRepo repository.VideoRepository,
	followRepo repository.FollowRepository,
	engagementRepo repository.EngagementRepository,
	sampler Sampler,
	recorder metrics.Recorder,
	cfg FeedConfig,
) *FeedService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = FeedDefaultLimit
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultRecentWindow
	}
	if sampler == nil {
		sampler = NewSampler(0)
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &FeedService{
		videoRepo:      videoRepo,
		followRepo:     followRepo,
		engagementRepo: engagementRepo,
		sampler:        sampler,
		metrics:        recorder,
		cfg:            cfg,
		now:            time.Now,
		log:            logging.Component("FeedService"),
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *FeedService) SetClock(now func() time.Time) {
	s.now = now
}

// viewerSets holds the per-viewer inputs resolved before the source queries.
type viewerSets struct {
	followed []string
	blocked  []string
	viewed   []string
}

// GetForYou returns one page of the viewer's blended feed.
//
// Flow:
// 1. Resolve followed authors, blocked authors and viewed videos
// 2. Query followed/trending/recent/popular concurrently, each excluding blocked and viewed
// 3. Concatenate in that order, skipping videos already read by another source
// 4. Repeat with larger budgets until the page and one lookahead video are filled
// 5. Annotate isLiked
//
// An undecodable cursor yields an empty last page.
func (s *FeedService) GetForYou(ctx context.Context, viewerID string, cursor *string, limit int) (*model.FeedResponse, error) {
	startTime := time.Now()
	limit = clampLimit(limit, s.cfg.DefaultLimit, s.cfg.MaxLimit)

	resp, err := s.compose(ctx, viewerID, cursor, limit)
	if err != nil {
		s.metrics.RecordFeedRequest("foryou", "error", time.Since(startTime))
		s.log.Error().Err(err).Str("viewer", viewerID).Msg("GetForYou FAILED")
		return nil, err
	}

	s.metrics.RecordFeedRequest("foryou", "ok", time.Since(startTime))
	s.log.Info().
		Str("viewer", viewerID).
		Int("results", len(resp.Results)).
		Bool("has_more", resp.HasMore).
		Dur("duration", time.Since(startTime)).
		Msg("GetForYou OK")
	return resp, nil
}

func (s *FeedService) compose(ctx context.Context, viewerID string, cursor *string, limit int) (*model.FeedResponse, error) {
	var state feedCursor
	if cursor == nil {
		state = feedCursor{
			Since: s.now().Add(-s.cfg.RecentWindow),
			Seed:  popularSeed(s.sampler),
		}
	} else {
		var err error
		if state, err = decodeFeedCursor(*cursor); err != nil {
			s.log.Debug().Str("viewer", viewerID).Msg("GetForYou unknown cursor")
			return &model.FeedResponse{Results: []model.VideoCard{}}, nil
		}
	}

	sets, err := s.resolveViewerSets(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	t := newTraversal(state, sets.followed, s.cfg.PopularMinViews, newExclusions(sets.blocked, sets.viewed))
	hasMore, err := s.fill(ctx, t, sets, limit)
	if err != nil {
		return nil, err
	}

	page := t.page
	var nextCursor *string
	if hasMore {
		next := t.cursor
		if len(page) > limit {
			page = page[:limit]
			next = *t.next
		}
		token, err := next.encode()
		if err != nil {
			return nil, err
		}
		nextCursor = &token
	}

	cards, err := s.annotateLikes(ctx, viewerID, page)
	if err != nil {
		return nil, err
	}

	return &model.FeedResponse{
		Results:    cards,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// fill runs source rounds until the page holds limit+1 videos or every source is
// exhausted. It reports whether videos remain past the page. When the round bound
// is hit first the page may be short, and the cursor still moves past every row read.
func (s *FeedService) fill(ctx context.Context, t *traversal, sets viewerSets, limit int) (bool, error) {
	var exhausted [4]bool
	for round := 0; round < maxFillRounds; round++ {
		budgets := sourceBudgets((limit + 1 - len(t.page)) << round)
		sources, err := s.querySources(ctx, t, sets, budgets, exhausted)
		if err != nil {
			return false, err
		}
		for src, rows := range sources {
			if len(rows) < budgets[src] {
				exhausted[src] = true
			}
		}

		if t.consume(sources, limit) {
			return true, nil
		}
		if exhausted == [4]bool{true, true, true, true} {
			return false, nil
		}
	}
	return true, nil
}

func (s *FeedService) resolveViewerSets(ctx context.Context, viewerID string) (viewerSets, error) {
	var sets viewerSets
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ids, err := s.followRepo.GetFolloweeIDs(gctx, viewerID)
		if err != nil {
			return fmt.Errorf("get followee ids: %w", err)
		}
		sets.followed = ids
		return nil
	})
	g.Go(func() error {
		ids, err := s.followRepo.GetBlockedIDs(gctx, viewerID)
		if err != nil {
			return fmt.Errorf("get blocked ids: %w", err)
		}
		sets.blocked = ids
		return nil
	})
	g.Go(func() error {
		ids, err := s.engagementRepo.GetViewedVideoIDs(gctx, viewerID)
		if err != nil {
			return fmt.Errorf("get viewed video ids: %w", err)
		}
		sets.viewed = ids
		return nil
	})

	if err := g.Wait(); err != nil {
		return viewerSets{}, err
	}
	return sets, nil
}

// querySources fans out one round of source queries, skipping exhausted sources.
// Each goroutine writes only its own slot, so the result keeps precedence order
// regardless of completion order.
func (s *FeedService) querySources(ctx context.Context, t *traversal, sets viewerSets, budgets [4]int, exhausted [4]bool) ([4][]model.Video, error) {
	var sources [4][]model.Video
	fetch := [4]func(context.Context, repository.SourceQuery) ([]model.Video, error){
		model.SourceFollowed: func(ctx context.Context, q repository.SourceQuery) ([]model.Video, error) {
			return s.videoRepo.FollowedVideos(ctx, sets.followed, q)
		},
		model.SourceTrending: s.videoRepo.TrendingVideos,
		model.SourceRecent:   s.videoRepo.RecentVideos,
		model.SourcePopular:  s.videoRepo.PopularVideos,
	}

	g, gctx := errgroup.WithContext(ctx)
	for src := range fetch {
		if exhausted[src] {
			continue
		}
		src := model.FeedSource(src)
		q := t.query(src, sets.blocked, sets.viewed, budgets[src])
		g.Go(func() error {
			videos, err := fetch[src](gctx, q)
			if err != nil {
				return fmt.Errorf("%s source: %w", src, err)
			}
			sources[src] = videos
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return sources, err
	}

	for src, videos := range sources {
		if !exhausted[src] {
			s.metrics.RecordSourceRows(model.FeedSource(src).String(), len(videos))
		}
	}
	return sources, nil
}

func (s *FeedService) annotateLikes(ctx context.Context, viewerID string, videos []model.Video) ([]model.VideoCard, error) {
	cards := make([]model.VideoCard, len(videos))
	if len(videos) == 0 {
		return cards, nil
	}

	liked, err := s.engagementRepo.CheckLikes(ctx, viewerID, videoIDs(videos))
	if err != nil {
		return nil, fmt.Errorf("check likes: %w", err)
	}

	for i, v := range videos {
		cards[i] = model.VideoCard{Video: v, IsLiked: liked[v.ID]}
	}
	return cards, nil
}

// clampLimit applies the default to non-positive limits and caps at max.
func clampLimit(limit, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
