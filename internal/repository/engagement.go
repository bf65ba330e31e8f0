package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type engagementRepository struct {
	db *sqlx.DB
}

func NewEngagementRepository(db *sqlx.DB) EngagementRepository {
	return &engagementRepository{db: db}
}

// GetViewedVideoIDs returns every video the viewer has a view record for.
func (r *engagementRepository) GetViewedVideoIDs(ctx context.Context, viewerID string) ([]string, error) {
	query := `SELECT video_id FROM video_views WHERE viewer_id = $1`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, viewerID); err != nil {
		return nil, fmt.Errorf("get viewed video ids: %w", err)
	}
	return ids, nil
}

func (r *engagementRepository) CheckLikes(ctx context.Context, viewerID string, videoIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(videoIDs))
	if len(videoIDs) == 0 {
		return result, nil
	}

	query := `SELECT video_id FROM video_likes WHERE user_id = $1 AND video_id = ANY($2)`
	var liked []string
	if err := r.db.SelectContext(ctx, &liked, query, viewerID, pq.Array(videoIDs)); err != nil {
		return nil, fmt.Errorf("check likes: %w", err)
	}

	for _, id := range videoIDs {
		result[id] = false
	}
	for _, id := range liked {
		result[id] = true
	}
	return result, nil
}
