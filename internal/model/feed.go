package model

import (
	"errors"
	"time"
)

// FeedSource identifies which candidate query produced a video.
// The numeric order is the dedup precedence: lower wins.
type FeedSource int

const (
	SourceFollowed FeedSource = iota
	SourceTrending
	SourceRecent
	SourcePopular
)

func (s FeedSource) String() string {
	switch s {
	case SourceFollowed:
		return "followed"
	case SourceTrending:
		return "trending"
	case SourceRecent:
		return "recent"
	case SourcePopular:
		return "popular"
	default:
		return "unknown"
	}
}

// SourcePosition is the last row a traversal has read from one source. Each source
// compares on the fields its order uses: CreatedAt for followed and recent, Score for
// trending, Key for popular. ID breaks ties.
type SourcePosition struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Score     float64   `json:"score,omitempty"`
	Key       string    `json:"key,omitempty"`
}

// VideoCard is a video as rendered for one viewer.
type VideoCard struct {
	Video
	IsLiked bool `json:"isLiked"`
}

// FeedResponse is the paginated "for you" response.
type FeedResponse struct {
	Results    []VideoCard `json:"results"`
	NextCursor *string     `json:"nextCursor"`
	HasMore    bool        `json:"hasMore"`
}

// TrendingCard is a card annotated with its 1-based rank, or RankUnknown past the first page.
type TrendingCard struct {
	VideoCard
	Rank int `json:"rank"`
}

// RankUnknown is reported for cards on any page requested with a cursor.
const RankUnknown = -1

// TrendingResponse is the paginated trending response.
type TrendingResponse struct {
	Results    []TrendingCard `json:"results"`
	NextCursor *string        `json:"nextCursor"`
	HasMore    bool           `json:"hasMore"`

	// Snapshot identifies the ranking the page was cut from. Sent as a header, not in the body.
	Snapshot SnapshotInfo `json:"-"`
}

// SnapshotInfo describes a trending snapshot.
type SnapshotInfo struct {
	Version    string    `json:"version"`
	ComputedAt time.Time `json:"computedAt"`
}

// TrendingCandidate is a ready video with its windowed engagement counts.
type TrendingCandidate struct {
	Video
	Views24h int64
	Likes24h int64
}

// ScoredVideo is one entry of a trending snapshot.
type ScoredVideo struct {
	Video Video   `json:"video"`
	Score float64 `json:"score"`
}

// TrendingSnapshot is the ranked list served until it expires.
type TrendingSnapshot struct {
	SnapshotInfo
	Videos []ScoredVideo `json:"videos"`
}

// Feed errors
var (
	ErrInvalidLimit  = errors.New("limit must be a positive integer")
	ErrInvalidCursor = errors.New("cursor is not a feed position")
)
