package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipfeed/internal/model"
)

func TestSourceBudgets(t *testing.T) {
	tests := []struct {
		rows int
		want [4]int
	}{
		{rows: 21, want: [4]int{11, 5, 3, 5}},
		{rows: 2, want: [4]int{1, 1, 1, 1}},
		{rows: 10, want: [4]int{5, 2, 1, 2}},
		{rows: 51, want: [4]int{26, 11, 6, 11}},
	}

	for _, tt := range tests {
		got := sourceBudgets(tt.rows)
		assert.Equal(t, tt.want, got, "rows=%d", tt.rows)

		total := 0
		for _, b := range got {
			total += b
		}
		assert.GreaterOrEqual(t, total, tt.rows, "budgets must cover every row")
	}
}

func ready(id, author, caption string) model.Video {
	return model.Video{
		ID:        id,
		UserID:    author,
		Caption:   &caption,
		Status:    model.VideoStatusReady,
		CreatedAt: testNow.Add(-time.Hour),
	}
}

func scored(v model.Video, score float64) model.Video {
	v.TrendingScore = &score
	return v
}

// aged moves v out of the recency window.
func aged(v model.Video) model.Video {
	v.CreatedAt = testNow.Add(-48 * time.Hour)
	return v
}

func openTraversal(followed []string, ex exclusions) *traversal {
	cursor := feedCursor{Since: testNow.Add(-24 * time.Hour), Seed: "s"}
	return newTraversal(cursor, followed, DefaultPopularMinViews, ex)
}

func TestTraversal_FirstSourceWins(t *testing.T) {
	sources := [4][]model.Video{
		model.SourceFollowed: {ready("a", "u1", "followed")},
		model.SourceTrending: {scored(ready("b", "u2", "trending"), 5), scored(ready("a", "u1", "trending"), 4)},
		model.SourceRecent:   {ready("c", "u3", "recent"), ready("b", "u2", "recent")},
		model.SourcePopular:  {ready("a", "u1", "popular"), aged(ready("d", "u4", "popular"))},
	}
	tr := openTraversal([]string{"u1"}, newExclusions(nil, nil))

	full := tr.consume(sources, 10)

	assert.False(t, full)
	assert.Equal(t, []string{"a", "b", "c", "d"}, videoIDs(tr.page))
	assert.Equal(t, "followed", *tr.page[0].Caption)
	assert.Equal(t, "trending", *tr.page[1].Caption)
}

func TestTraversal_AppliesExclusions(t *testing.T) {
	processing := ready("p", "u1", "")
	processing.Status = model.VideoStatusProcessing

	sources := [4][]model.Video{
		model.SourceFollowed: {ready("k", "u1", ""), processing},
		model.SourceTrending: {scored(ready("m", "blocked", ""), 5)},
		model.SourceRecent:   {ready("n", "u2", ""), ready("seen", "u2", "")},
		model.SourcePopular:  {aged(ready("z", "u3", ""))},
	}
	tr := openTraversal([]string{"u1"}, newExclusions([]string{"blocked"}, []string{"seen"}))

	tr.consume(sources, 10)

	assert.Equal(t, []string{"k", "n", "z"}, videoIDs(tr.page))
}

func TestTraversal_SkipsVideoAlreadyReadByAnotherSource(t *testing.T) {
	older := ready("old", "friend", "")
	older.CreatedAt = testNow.Add(-2 * time.Hour)
	newer := ready("new", "friend", "")

	tr := openTraversal([]string{"friend"}, newExclusions(nil, nil))
	// Followed read "new" on an earlier page but has not reached "old" yet.
	tr.cursor.Positions[model.SourceFollowed] = positionOf(model.SourceFollowed, &newer, tr.cursor.Seed)

	tr.consume([4][]model.Video{model.SourceRecent: {newer, older}}, 10)

	assert.Equal(t, []string{"old"}, videoIDs(tr.page))
	assert.Equal(t, "old", tr.cursor.Positions[model.SourceRecent].ID)
}

func TestTraversal_StopsAtLookahead(t *testing.T) {
	var rows []model.Video
	for i := 0; i < 6; i++ {
		v := ready(vid(i), "u", "")
		v.CreatedAt = testNow.Add(-time.Duration(i) * time.Minute)
		rows = append(rows, v)
	}
	tr := openTraversal(nil, newExclusions(nil, nil))

	full := tr.consume([4][]model.Video{model.SourceRecent: rows}, 3)

	assert.True(t, full)
	assert.Len(t, tr.page, 4)
	require.NotNil(t, tr.next)
	assert.Equal(t, vid(2), tr.next.Positions[model.SourceRecent].ID, "next page resumes after the last served video")
}

func TestComparePosition(t *testing.T) {
	early := &model.SourcePosition{ID: "a", CreatedAt: testNow.Add(-time.Hour), Score: 9, Key: "1f"}
	late := &model.SourcePosition{ID: "b", CreatedAt: testNow, Score: 3, Key: "0e"}

	assert.Equal(t, 1, comparePosition(model.SourceRecent, early, late), "newest first")
	assert.Equal(t, -1, comparePosition(model.SourceTrending, early, late), "higher score first")
	assert.Equal(t, 1, comparePosition(model.SourcePopular, early, late), "lower key first")
	assert.Equal(t, 0, comparePosition(model.SourceFollowed, early, early))

	tie := &model.SourcePosition{ID: "b", CreatedAt: early.CreatedAt, Score: early.Score, Key: early.Key}
	assert.Equal(t, 1, comparePosition(model.SourceFollowed, early, tie), "ties run id descending")
	assert.Equal(t, -1, comparePosition(model.SourcePopular, early, tie), "popular ties run id ascending")
}

func TestFeedCursor_RoundTrip(t *testing.T) {
	in := feedCursor{Since: testNow.Add(-24 * time.Hour), Seed: "k3x"}
	in.Positions[model.SourceTrending] = &model.SourcePosition{ID: "v1", CreatedAt: testNow, Score: 6.1}

	token, err := in.encode()
	require.NoError(t, err)
	out, err := decodeFeedCursor(token)
	require.NoError(t, err)

	assert.True(t, in.Since.Equal(out.Since))
	assert.Equal(t, in.Seed, out.Seed)
	assert.Nil(t, out.Positions[model.SourceFollowed])
	require.NotNil(t, out.Positions[model.SourceTrending])
	assert.Equal(t, 6.1, out.Positions[model.SourceTrending].Score)
}

func TestDecodeFeedCursor_Garbage(t *testing.T) {
	for _, token := range []string{"", "v042", "%%%", "e30"} { // e30 is "{}"
		_, err := decodeFeedCursor(token)
		assert.ErrorIs(t, err, model.ErrInvalidCursor, token)
	}
}

func TestTrendingScore(t *testing.T) {
	assert.Equal(t, 6.0, TrendingScore(10, 5, 2, 1))
	assert.Equal(t, 0.0, TrendingScore(0, 0, 0, 0))
	assert.Equal(t, 0.1, TrendingScore(0, 0, 0, 1))
	assert.Equal(t, TrendingScore(3, 7, 1, 9), TrendingScore(3, 7, 1, 9))
}

func TestSampler_DeterministicForSeed(t *testing.T) {
	a, b := NewSampler(42), NewSampler(42)
	for i := 0; i < 3; i++ {
		assert.Equal(t, popularSeed(a), popularSeed(b))
	}
	assert.NotEqual(t, popularSeed(NewSampler(1)), popularSeed(NewSampler(2)))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0, 20, 50))
	assert.Equal(t, 20, clampLimit(-3, 20, 50))
	assert.Equal(t, 7, clampLimit(7, 20, 50))
	assert.Equal(t, 50, clampLimit(500, 20, 50))
}
