package repository

import (
	"context"
	"time"

	"clipfeed/internal/model"
)

// SourceQuery narrows one candidate query. Zero values disable the matching filter.
type SourceQuery struct {
	ExcludeAuthorIDs []string
	ExcludeVideoIDs  []string
	// After resumes the source strictly past this row of its order; nil starts at the top.
	After *model.SourcePosition
	// Since keeps only videos created at or after it.
	Since time.Time
	// MinViews is the view count popular videos must exceed.
	MinViews int64
	// Seed picks the popular order; the same seed gives the same order.
	Seed  string
	Limit int
}

type VideoRepository interface {
	// FollowedVideos returns ready videos by the given authors, newest first (created_at, id desc).
	FollowedVideos(ctx context.Context, authorIDs []string, q SourceQuery) ([]model.Video, error)
	// TrendingVideos returns ready videos by persisted trending score desc (null as 0), then id desc.
	TrendingVideos(ctx context.Context, q SourceQuery) ([]model.Video, error)
	// RecentVideos returns ready videos, newest first (created_at, id desc).
	RecentVideos(ctx context.Context, q SourceQuery) ([]model.Video, error)
	// PopularVideos returns ready videos above the view threshold in the random order
	// given by PopularKey(seed, id), then id.
	PopularVideos(ctx context.Context, q SourceQuery) ([]model.Video, error)
	// TrendingCandidates returns every ready video with its view and like counts since the given time.
	TrendingCandidates(ctx context.Context, since time.Time) ([]model.TrendingCandidate, error)
}

type FollowRepository interface {
	GetFolloweeIDs(ctx context.Context, userID string) ([]string, error)
	GetBlockedIDs(ctx context.Context, userID string) ([]string, error)
}

type EngagementRepository interface {
	GetViewedVideoIDs(ctx context.Context, viewerID string) ([]string, error)
	// CheckLikes reports, for each video id, whether the viewer liked it.
	CheckLikes(ctx context.Context, viewerID string, videoIDs []string) (map[string]bool, error)
}
