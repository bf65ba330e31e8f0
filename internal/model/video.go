package model

import (
	"time"
)

// VideoStatus tracks a video through the upload pipeline.
type VideoStatus string

const (
	VideoStatusUploading  VideoStatus = "uploading"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusError      VideoStatus = "error"
)

// Video is a published clip together with its author and optional sound.
type Video struct {
	ID                string      `json:"id"`
	UserID            string      `json:"userId"`
	Caption           *string     `json:"caption"`
	VideoURL          *string     `json:"videoUrl"`
	ThumbnailURL      *string     `json:"thumbnailUrl"`
	MasterPlaylistURL *string     `json:"masterPlaylistUrl"`
	MuxThumbnailURL   *string     `json:"muxThumbnailUrl"`
	GifURL            *string     `json:"gifUrl"`
	Duration          *float64    `json:"duration"`
	ViewsCount        int64       `json:"viewsCount"`
	LikesCount        int64       `json:"likesCount"`
	CommentsCount     int64       `json:"commentsCount"`
	SharesCount       int64       `json:"sharesCount"`
	Status            VideoStatus `json:"status"`
	CreatedAt         time.Time   `json:"createdAt"`
	TrendingScore     *float64    `json:"trendingScore,omitempty"`

	// Joined fields (not in videos table)
	Author AuthorSummary `json:"author"`
	Sound  *SoundSummary `json:"sound"`
}

// IsReady reports whether the video may be shown in a feed.
func (v *Video) IsReady() bool {
	return v.Status == VideoStatusReady
}

// AuthorSummary is the author block embedded in every card.
type AuthorSummary struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar"`
}

// SoundSummary is the optional sound block embedded in a card.
type SoundSummary struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	ArtistName *string `json:"artistName"`
}
