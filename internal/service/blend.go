package service

import (
	"math/rand"
	"strconv"
	"sync"
	"time"

	"clipfeed/internal/model"
	"clipfeed/internal/repository"
)

// sourceWeights are the for-you blend shares in percent, indexed by model.FeedSource.
var sourceWeights = [...]int{
	model.SourceFollowed: 50,
	model.SourceTrending: 20,
	model.SourceRecent:   10,
	model.SourcePopular:  20,
}

// sourceBudgets splits rows across the sources: ceil(weight * rows) each.
// Rounding up may overfetch slightly.
func sourceBudgets(rows int) [4]int {
	var budgets [4]int
	for i, pct := range sourceWeights {
		budgets[i] = (pct*rows + 99) / 100
	}
	return budgets
}

// exclusions is the per-viewer filter every candidate must pass.
type exclusions struct {
	blockedAuthors map[string]struct{}
	viewedVideos   map[string]struct{}
}

func newExclusions(blockedAuthorIDs, viewedVideoIDs []string) exclusions {
	return exclusions{
		blockedAuthors: toSet(blockedAuthorIDs),
		viewedVideos:   toSet(viewedVideoIDs),
	}
}

func (e exclusions) allows(v *model.Video) bool {
	if !v.IsReady() {
		return false
	}
	if _, blocked := e.blockedAuthors[v.UserID]; blocked {
		return false
	}
	_, viewed := e.viewedVideos[v.ID]
	return !viewed
}

// traversal assembles for-you pages. Every source is read in its own fixed order and
// the cursor keeps one position per source. A video is served by the first source to
// read it; any other source reaching it later skips it, because that source can tell
// from the position alone that the video was already read.
type traversal struct {
	cursor   feedCursor
	followed map[string]struct{}
	minViews int64
	ex       exclusions

	page []model.Video
	seen map[string]struct{}
	// next is the cursor as it stood when the page reached its limit.
	next *feedCursor
}

func newTraversal(cursor feedCursor, followedIDs []string, minViews int64, ex exclusions) *traversal {
	return &traversal{
		cursor:   cursor,
		followed: toSet(followedIDs),
		minViews: minViews,
		ex:       ex,
		seen:     make(map[string]struct{}),
	}
}

// selects reports whether src's query would return v, regardless of position.
func (t *traversal) selects(src model.FeedSource, v *model.Video) bool {
	switch src {
	case model.SourceFollowed:
		_, ok := t.followed[v.UserID]
		return ok
	case model.SourceTrending, model.SourceRecent:
		return !v.CreatedAt.Before(t.cursor.Since)
	case model.SourcePopular:
		return v.ViewsCount > t.minViews
	default:
		return false
	}
}

// read reports whether src has already read v.
func (t *traversal) read(src model.FeedSource, v *model.Video) bool {
	pos := t.cursor.Positions[src]
	if pos == nil || !t.selects(src, v) {
		return false
	}
	return comparePosition(src, positionOf(src, v, t.cursor.Seed), pos) <= 0
}

// consume merges one round of source rows into the page in precedence order and
// reports whether the page holds limit+1 videos. The extra video only proves hasMore.
func (t *traversal) consume(sources [4][]model.Video, limit int) bool {
	for src, rows := range sources {
		src := model.FeedSource(src)
		for i := range rows {
			if len(t.page) > limit {
				return true
			}
			v := &rows[i]
			skip := t.claimed(src, v)
			t.cursor.Positions[src] = positionOf(src, v, t.cursor.Seed)
			if skip {
				continue
			}
			t.seen[v.ID] = struct{}{}
			t.page = append(t.page, *v)
			if len(t.page) == limit {
				next := t.cursor
				t.next = &next
			}
		}
	}
	return len(t.page) > limit
}

// claimed reports whether v must be skipped by src: excluded, already on this page,
// or already read by another source.
func (t *traversal) claimed(src model.FeedSource, v *model.Video) bool {
	if !t.ex.allows(v) {
		return true
	}
	if _, dup := t.seen[v.ID]; dup {
		return true
	}
	for other := model.SourceFollowed; other <= model.SourcePopular; other++ {
		if other != src && t.read(other, v) {
			return true
		}
	}
	return false
}

// query returns the SourceQuery that resumes src past its position.
func (t *traversal) query(src model.FeedSource, blocked, viewed []string, limit int) repository.SourceQuery {
	q := repository.SourceQuery{
		ExcludeAuthorIDs: blocked,
		ExcludeVideoIDs:  viewed,
		After:            t.cursor.Positions[src],
		Limit:            limit,
	}
	switch src {
	case model.SourceTrending, model.SourceRecent:
		q.Since = t.cursor.Since
	case model.SourcePopular:
		q.MinViews = t.minViews
		q.Seed = t.cursor.Seed
	}
	return q
}

// positionOf is v's place in src's order.
func positionOf(src model.FeedSource, v *model.Video, seed string) *model.SourcePosition {
	pos := &model.SourcePosition{ID: v.ID, CreatedAt: v.CreatedAt}
	switch src {
	case model.SourceTrending:
		pos.Score = persistedScore(v)
	case model.SourcePopular:
		pos.Key = repository.PopularKey(seed, v.ID)
	}
	return pos
}

// comparePosition orders a before b in src's order (negative), equal (zero) or after.
// Followed and recent run newest first, trending by score descending, popular by key
// ascending. Ties break on id in the same direction.
func comparePosition(src model.FeedSource, a, b *model.SourcePosition) int {
	switch src {
	case model.SourceTrending:
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return -compareStrings(a.ID, b.ID)
	case model.SourcePopular:
		if c := compareStrings(a.Key, b.Key); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	default:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.After(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return -compareStrings(a.ID, b.ID)
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func persistedScore(v *model.Video) float64 {
	if v.TrendingScore == nil {
		return 0
	}
	return *v.TrendingScore
}

// TrendingScore weighs windowed engagement: views*0.4 + likes*0.3 + shares*0.2 + comments*0.1.
// It is computed in tenths so equal inputs always produce bit-identical scores.
func TrendingScore(views24h, likes24h, shares, comments int64) float64 {
	return float64(trendingPoints(views24h, likes24h, shares, comments)) / 10
}

func trendingPoints(views24h, likes24h, shares, comments int64) int64 {
	return 4*views24h + 3*likes24h + 2*shares + comments
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func videoIDs(videos []model.Video) []string {
	ids := make([]string, len(videos))
	for i := range videos {
		ids[i] = videos[i].ID
	}
	return ids
}

// Sampler draws the seed of each traversal's popular order. *rand.Rand satisfies it
// but is not safe for concurrent use; see NewSampler.
type Sampler interface {
	Int63() int64
}

type lockedSampler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSampler returns a goroutine-safe Sampler. A zero seed seeds from the clock.
func NewSampler(seed int64) Sampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedSampler{rnd: rand.New(rand.NewSource(seed))}
}

func (s *lockedSampler) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Int63()
}

// popularSeed renders a drawn seed the way it is stored in the cursor.
func popularSeed(sampler Sampler) string {
	return strconv.FormatInt(sampler.Int63(), 36)
}
