package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"clipfeed/internal/model"
	"clipfeed/internal/repository"
)

// =============================================================================
// IN-MEMORY STORE
// =============================================================================
//
// fakeStore implements VideoRepository, FollowRepository and EngagementRepository
// over plain maps, applying SourceQuery the way the SQL does. Individual methods can
// be overridden through the *Fn fields to inject failures or odd rows.

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu sync.Mutex

	videos  []model.Video
	follows map[string][]string
	blocks  map[string][]string
	views   map[string][]string        // viewer -> video ids
	likes   map[string]map[string]bool // viewer -> video id -> liked

	views24h map[string]int64
	likes24h map[string]int64

	// candidateGate, when set, blocks TrendingCandidates until closed.
	candidateGate  chan struct{}
	candidateCalls atomic.Int32

	trendingVideosFn     func(ctx context.Context, q repository.SourceQuery) ([]model.Video, error)
	trendingCandidatesFn func(ctx context.Context, since time.Time) ([]model.TrendingCandidate, error)
	checkLikesFn         func(ctx context.Context, viewerID string, ids []string) (map[string]bool, error)
	getBlockedIDsFn      func(ctx context.Context, userID string) ([]string, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		follows:  map[string][]string{},
		blocks:   map[string][]string{},
		views:    map[string][]string{},
		likes:    map[string]map[string]bool{},
		views24h: map[string]int64{},
		likes24h: map[string]int64{},
	}
}

// addVideo inserts a ready video by author created age ago.
func (f *fakeStore) addVideo(id, author string, age time.Duration, views int64) *model.Video {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos = append(f.videos, model.Video{
		ID:         id,
		UserID:     author,
		Status:     model.VideoStatusReady,
		ViewsCount: views,
		CreatedAt:  testNow.Add(-age),
		Author:     model.AuthorSummary{ID: author, Username: "user_" + author},
	})
	return &f.videos[len(f.videos)-1]
}

func (f *fakeStore) setStatus(id string, status model.VideoStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.videos {
		if f.videos[i].ID == id {
			f.videos[i].Status = status
		}
	}
}

func (f *fakeStore) setTrendingScore(id string, score float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.videos {
		if f.videos[i].ID == id {
			s := score
			f.videos[i].TrendingScore = &s
		}
	}
}

func (f *fakeStore) setEngagement(id string, views24h, likes24h, shares, comments int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views24h[id] = views24h
	f.likes24h[id] = likes24h
	for i := range f.videos {
		if f.videos[i].ID == id {
			f.videos[i].SharesCount = shares
			f.videos[i].CommentsCount = comments
		}
	}
}

func (f *fakeStore) follow(follower, followee string) {
	f.follows[follower] = append(f.follows[follower], followee)
}

func (f *fakeStore) block(blocker, blocked string) {
	f.blocks[blocker] = append(f.blocks[blocker], blocked)
}

func (f *fakeStore) view(viewer, videoID string) {
	f.views[viewer] = append(f.views[viewer], videoID)
}

func (f *fakeStore) like(viewer, videoID string) {
	if f.likes[viewer] == nil {
		f.likes[viewer] = map[string]bool{}
	}
	f.likes[viewer][videoID] = true
}

func (f *fakeStore) filter(q repository.SourceQuery, extra func(v *model.Video) bool) []model.Video {
	f.mu.Lock()
	defer f.mu.Unlock()

	excludedAuthors := toSet(q.ExcludeAuthorIDs)
	excludedVideos := toSet(q.ExcludeVideoIDs)

	var out []model.Video
	for _, v := range f.videos {
		if v.Status != model.VideoStatusReady {
			continue
		}
		if _, ok := excludedAuthors[v.UserID]; ok {
			continue
		}
		if _, ok := excludedVideos[v.ID]; ok {
			continue
		}
		if !q.Since.IsZero() && v.CreatedAt.Before(q.Since) {
			continue
		}
		if extra != nil && !extra(&v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// sourcePage orders videos the way src's query does, resumes past q.After and applies the limit.
func sourcePage(src model.FeedSource, videos []model.Video, q repository.SourceQuery) []model.Video {
	sort.SliceStable(videos, func(i, j int) bool {
		return comparePosition(src, positionOf(src, &videos[i], q.Seed), positionOf(src, &videos[j], q.Seed)) < 0
	})
	out := []model.Video{}
	for i := range videos {
		if len(out) == q.Limit {
			break
		}
		if q.After != nil && comparePosition(src, positionOf(src, &videos[i], q.Seed), q.After) <= 0 {
			continue
		}
		out = append(out, videos[i])
	}
	return out
}

func (f *fakeStore) FollowedVideos(_ context.Context, authorIDs []string, q repository.SourceQuery) ([]model.Video, error) {
	authors := toSet(authorIDs)
	videos := f.filter(q, func(v *model.Video) bool {
		_, ok := authors[v.UserID]
		return ok
	})
	return sourcePage(model.SourceFollowed, videos, q), nil
}

func (f *fakeStore) TrendingVideos(ctx context.Context, q repository.SourceQuery) ([]model.Video, error) {
	if f.trendingVideosFn != nil {
		return f.trendingVideosFn(ctx, q)
	}
	return sourcePage(model.SourceTrending, f.filter(q, nil), q), nil
}

func (f *fakeStore) RecentVideos(_ context.Context, q repository.SourceQuery) ([]model.Video, error) {
	return sourcePage(model.SourceRecent, f.filter(q, nil), q), nil
}

func (f *fakeStore) PopularVideos(_ context.Context, q repository.SourceQuery) ([]model.Video, error) {
	videos := f.filter(q, func(v *model.Video) bool {
		return v.ViewsCount > q.MinViews
	})
	return sourcePage(model.SourcePopular, videos, q), nil
}

func (f *fakeStore) TrendingCandidates(ctx context.Context, since time.Time) ([]model.TrendingCandidate, error) {
	f.candidateCalls.Add(1)
	if f.candidateGate != nil {
		<-f.candidateGate
	}
	if f.trendingCandidatesFn != nil {
		return f.trendingCandidatesFn(ctx, since)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TrendingCandidate
	for _, v := range f.videos {
		if v.Status != model.VideoStatusReady {
			continue
		}
		out = append(out, model.TrendingCandidate{
			Video:    v,
			Views24h: f.views24h[v.ID],
			Likes24h: f.likes24h[v.ID],
		})
	}
	return out, nil
}

func (f *fakeStore) GetFolloweeIDs(_ context.Context, userID string) ([]string, error) {
	return f.follows[userID], nil
}

func (f *fakeStore) GetBlockedIDs(ctx context.Context, userID string) ([]string, error) {
	if f.getBlockedIDsFn != nil {
		return f.getBlockedIDsFn(ctx, userID)
	}
	return f.blocks[userID], nil
}

func (f *fakeStore) GetViewedVideoIDs(_ context.Context, viewerID string) ([]string, error) {
	return f.views[viewerID], nil
}

func (f *fakeStore) CheckLikes(ctx context.Context, viewerID string, ids []string) (map[string]bool, error) {
	if f.checkLikesFn != nil {
		return f.checkLikesFn(ctx, viewerID, ids)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = f.likes[viewerID][id]
	}
	return out, nil
}

// vid formats sortable ids: vid(7) == "v007".
func vid(n int) string {
	return fmt.Sprintf("v%03d", n)
}

// fakeCache is a TrendingCache whose reads can be made to fail.
type fakeCache struct {
	mu     sync.Mutex
	snap   *model.TrendingSnapshot
	ttl    time.Duration
	getErr error
	sets   int
}

func (c *fakeCache) Get(context.Context) (*model.TrendingSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	return c.snap, c.snap != nil, nil
}

func (c *fakeCache) Set(_ context.Context, snap *model.TrendingSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	c.sets++
	return nil
}

func (c *fakeCache) TTL() time.Duration {
	return c.ttl
}
