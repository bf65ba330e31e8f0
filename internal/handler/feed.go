package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"clipfeed/internal/httputil"
	"clipfeed/internal/logging"
	"clipfeed/internal/model"
	"clipfeed/internal/transport/http/middleware"
)

// TrendingSnapshotHeader carries "<version>; computedAt=<RFC3339>" on trending responses.
const TrendingSnapshotHeader = "X-Trending-Snapshot"

// ForYouReader is implemented by service.FeedService.
type ForYouReader interface {
	GetForYou(ctx context.Context, viewerID string, cursor *string, limit int) (*model.FeedResponse, error)
}

// TrendingReader is implemented by service.TrendingService.
type TrendingReader interface {
	GetTrending(ctx context.Context, viewerID string, cursor *string, limit int) (*model.TrendingResponse, error)
}

type FeedHandler struct {
	forYou   ForYouReader
	trending TrendingReader
	log      zerolog.Logger
}

func NewFeedHandler(forYou ForYouReader, trending TrendingReader) *FeedHandler {
	return &FeedHandler{
		forYou:   forYou,
		trending: trending,
		log:      logging.Component("FeedHandler"),
	}
}

// ForYou handles GET /api/feed/foryou
// Returns the authenticated viewer's blended feed.
//
// Query params:
//   - cursor: optional, nextCursor of the previous page
//   - limit: optional, videos per page (default 20, capped at 50)
func (h *FeedHandler) ForYou(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.GetViewerIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	feed, err := h.forYou.GetForYou(r.Context(), viewerID, q.Cursor, q.LimitOrZero())
	if err != nil {
		h.log.Error().Err(err).Str("viewer", viewerID).Msg("ForYou FAILED")
		httputil.WriteInternalError(w, "Failed to get feed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, feed)
}

// Trending handles GET /api/feed/trending
// Returns a page of the trending ranking. rank is 1-based on the first page and -1 after.
//
// Query params:
//   - cursor: optional, nextCursor of the previous page
//   - limit: optional, videos per page (default 20, capped at 50)
func (h *FeedHandler) Trending(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.GetViewerIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	trending, err := h.trending.GetTrending(r.Context(), viewerID, q.Cursor, q.LimitOrZero())
	if err != nil {
		h.log.Error().Err(err).Str("viewer", viewerID).Msg("Trending FAILED")
		httputil.WriteInternalError(w, "Failed to get trending feed")
		return
	}

	if trending.Snapshot.Version != "" {
		w.Header().Set(TrendingSnapshotHeader,
			trending.Snapshot.Version+"; computedAt="+trending.Snapshot.ComputedAt.UTC().Format(time.RFC3339))
	}
	httputil.WriteJSON(w, http.StatusOK, trending)
}

func (h *FeedHandler) parseQuery(w http.ResponseWriter, r *http.Request) (FeedQuery, bool) {
	q, err := parseFeedQuery(r.URL.Query())
	if err != nil {
		if errors.Is(err, model.ErrInvalidLimit) {
			httputil.WriteBadRequest(w, "Invalid limit parameter")
			return q, false
		}
		httputil.WriteBadRequest(w, "Invalid query parameters")
		return q, false
	}
	return q, true
}
