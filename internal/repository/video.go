package repository

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"clipfeed/internal/model"
)

type videoRepository struct {
	db *sqlx.DB
}

func NewVideoRepository(db *sqlx.DB) VideoRepository {
	return &videoRepository{db: db}
}

const videoColumns = `
	v.id, v.user_id, v.caption, v.video_url, v.thumbnail_url, v.master_playlist_url,
	v.mux_thumbnail_url, v.gif_url, v.duration, v.views_count, v.likes_count,
	v.comments_count, v.shares_count, v.status, v.created_at, v.trending_score,
	u.username AS author_username, u.avatar AS author_avatar,
	s.id AS sound_id, s.title AS sound_title, s.artist_name AS sound_artist_name`

const videoJoins = `
	FROM videos v
	JOIN users u ON u.id = v.user_id
	LEFT JOIN sounds s ON s.id = v.sound_id`

// videoRow is the flat scan target for videoColumns.
type videoRow struct {
	ID                string          `db:"id"`
	UserID            string          `db:"user_id"`
	Caption           *string         `db:"caption"`
	VideoURL          *string         `db:"video_url"`
	ThumbnailURL      *string         `db:"thumbnail_url"`
	MasterPlaylistURL *string         `db:"master_playlist_url"`
	MuxThumbnailURL   *string         `db:"mux_thumbnail_url"`
	GifURL            *string         `db:"gif_url"`
	Duration          *float64        `db:"duration"`
	ViewsCount        int64           `db:"views_count"`
	LikesCount        int64           `db:"likes_count"`
	CommentsCount     int64           `db:"comments_count"`
	SharesCount       int64           `db:"shares_count"`
	Status            string          `db:"status"`
	CreatedAt         time.Time       `db:"created_at"`
	TrendingScore     sql.NullFloat64 `db:"trending_score"`
	AuthorUsername    string          `db:"author_username"`
	AuthorAvatar      *string         `db:"author_avatar"`
	SoundID           sql.NullString  `db:"sound_id"`
	SoundTitle        sql.NullString  `db:"sound_title"`
	SoundArtistName   *string         `db:"sound_artist_name"`
}

func (r videoRow) toModel() model.Video {
	v := model.Video{
		ID:                r.ID,
		UserID:            r.UserID,
		Caption:           r.Caption,
		VideoURL:          r.VideoURL,
		ThumbnailURL:      r.ThumbnailURL,
		MasterPlaylistURL: r.MasterPlaylistURL,
		MuxThumbnailURL:   r.MuxThumbnailURL,
		GifURL:            r.GifURL,
		Duration:          r.Duration,
		ViewsCount:        r.ViewsCount,
		LikesCount:        r.LikesCount,
		CommentsCount:     r.CommentsCount,
		SharesCount:       r.SharesCount,
		Status:            model.VideoStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		Author: model.AuthorSummary{
			ID:       r.UserID,
			Username: r.AuthorUsername,
			Avatar:   r.AuthorAvatar,
		},
	}
	if r.TrendingScore.Valid {
		score := r.TrendingScore.Float64
		v.TrendingScore = &score
	}
	if r.SoundID.Valid {
		v.Sound = &model.SoundSummary{
			ID:         r.SoundID.String,
			Title:      r.SoundTitle.String,
			ArtistName: r.SoundArtistName,
		}
	}
	return v
}

// whereBuilder accumulates AND-ed conditions with positional arguments.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func newWhere() *whereBuilder {
	return &whereBuilder{conds: []string{"v.status = 'ready'"}}
}

// bind adds arg and returns its placeholder.
func (w *whereBuilder) bind(arg interface{}) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

// add appends a condition; each "?" in cond is bound to the next of args.
func (w *whereBuilder) add(cond string, args ...interface{}) {
	for _, arg := range args {
		cond = strings.Replace(cond, "?", w.bind(arg), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) apply(q SourceQuery) {
	// Empty arrays are skipped: ANY(NULL) would drop every row.
	if len(q.ExcludeAuthorIDs) > 0 {
		w.add("NOT (v.user_id = ANY(?))", pq.Array(q.ExcludeAuthorIDs))
	}
	if len(q.ExcludeVideoIDs) > 0 {
		w.add("NOT (v.id = ANY(?))", pq.Array(q.ExcludeVideoIDs))
	}
	if !q.Since.IsZero() {
		w.add("v.created_at >= ?", q.Since)
	}
}

func (w *whereBuilder) sql() string {
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// Ids compare in byte order so the database agrees with Go string comparison.
const (
	newestFirst   = `v.created_at DESC, v.id COLLATE "C" DESC`
	trendingScore = `COALESCE(v.trending_score, 0)`
)

// afterNewest resumes a newest-first order past pos.
func (w *whereBuilder) afterNewest(pos *model.SourcePosition) {
	if pos != nil {
		w.add(`(v.created_at, v.id COLLATE "C") < (?, ?)`, pos.CreatedAt, pos.ID)
	}
}

func (r *videoRepository) selectVideos(ctx context.Context, w *whereBuilder, orderBy string, limit int) ([]model.Video, error) {
	query := fmt.Sprintf("SELECT %s %s %s ORDER BY %s LIMIT %s",
		videoColumns, videoJoins, w.sql(), orderBy, w.bind(limit))

	var rows []videoRow
	if err := r.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, err
	}

	videos := make([]model.Video, len(rows))
	for i, row := range rows {
		videos[i] = row.toModel()
	}
	return videos, nil
}

func (r *videoRepository) FollowedVideos(ctx context.Context, authorIDs []string, q SourceQuery) ([]model.Video, error) {
	if len(authorIDs) == 0 || q.Limit <= 0 {
		return []model.Video{}, nil
	}

	w := newWhere()
	w.add("v.user_id = ANY(?)", pq.Array(authorIDs))
	w.apply(q)
	w.afterNewest(q.After)

	videos, err := r.selectVideos(ctx, w, newestFirst, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get followed videos: %w", err)
	}
	return videos, nil
}

func (r *videoRepository) TrendingVideos(ctx context.Context, q SourceQuery) ([]model.Video, error) {
	if q.Limit <= 0 {
		return []model.Video{}, nil
	}

	w := newWhere()
	w.apply(q)
	if q.After != nil {
		w.add(`(`+trendingScore+`, v.id COLLATE "C") < (?, ?)`, q.After.Score, q.After.ID)
	}

	videos, err := r.selectVideos(ctx, w, trendingScore+` DESC, v.id COLLATE "C" DESC`, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get trending videos: %w", err)
	}
	return videos, nil
}

func (r *videoRepository) RecentVideos(ctx context.Context, q SourceQuery) ([]model.Video, error) {
	if q.Limit <= 0 {
		return []model.Video{}, nil
	}

	w := newWhere()
	w.apply(q)
	w.afterNewest(q.After)

	videos, err := r.selectVideos(ctx, w, newestFirst, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get recent videos: %w", err)
	}
	return videos, nil
}

// PopularVideos walks every video above the view threshold in a seeded random order,
// so a barely popular clip is as likely to surface as the most viewed one.
func (r *videoRepository) PopularVideos(ctx context.Context, q SourceQuery) ([]model.Video, error) {
	if q.Limit <= 0 {
		return []model.Video{}, nil
	}

	w := newWhere()
	w.apply(q)
	w.add("v.views_count > ?", q.MinViews)
	key := fmt.Sprintf(`md5(v.id || %s) COLLATE "C"`, w.bind(q.Seed))
	if q.After != nil {
		w.add(`(`+key+`, v.id COLLATE "C") > (?, ?)`, q.After.Key, q.After.ID)
	}

	videos, err := r.selectVideos(ctx, w, key+`, v.id COLLATE "C"`, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get popular videos: %w", err)
	}
	return videos, nil
}

// PopularKey is the popular sort key of a video, equal to the md5(id || seed) hex
// digest the query orders by.
func PopularKey(seed, id string) string {
	sum := md5.Sum([]byte(id + seed))
	return hex.EncodeToString(sum[:])
}

// TrendingCandidates aggregates windowed views and likes for every ready video.
func (r *videoRepository) TrendingCandidates(ctx context.Context, since time.Time) ([]model.TrendingCandidate, error) {
	query := `
		SELECT ` + videoColumns + `,
			COALESCE(vw.cnt, 0) AS views_24h,
			COALESCE(lk.cnt, 0) AS likes_24h
		` + videoJoins + `
		LEFT JOIN (
			SELECT video_id, COUNT(*) AS cnt FROM video_views
			WHERE created_at >= $1 GROUP BY video_id
		) vw ON vw.video_id = v.id
		LEFT JOIN (
			SELECT video_id, COUNT(*) AS cnt FROM video_likes
			WHERE created_at >= $1 GROUP BY video_id
		) lk ON lk.video_id = v.id
		WHERE v.status = 'ready'
	`
	type candidateRow struct {
		videoRow
		Views24h int64 `db:"views_24h"`
		Likes24h int64 `db:"likes_24h"`
	}

	var rows []candidateRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("get trending candidates: %w", err)
	}

	candidates := make([]model.TrendingCandidate, len(rows))
	for i, row := range rows {
		candidates[i] = model.TrendingCandidate{
			Video:    row.videoRow.toModel(),
			Views24h: row.Views24h,
			Likes24h: row.Likes24h,
		}
	}
	return candidates, nil
}
