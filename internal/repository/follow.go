package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type followRepository struct {
	db *sqlx.DB
}

func NewFollowRepository(db *sqlx.DB) FollowRepository {
	return &followRepository{db: db}
}

// GetFolloweeIDs returns the ids of every user the given user follows.
func (r *followRepository) GetFolloweeIDs(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT followee_id FROM follows WHERE follower_id = $1`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get followee ids: %w", err)
	}
	return ids, nil
}

// GetBlockedIDs returns the ids of every user the given user has blocked.
func (r *followRepository) GetBlockedIDs(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT blocked_id FROM blocks WHERE blocker_id = $1`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get blocked ids: %w", err)
	}
	return ids, nil
}
