package trending

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumsocial/quorum/internal/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", filepath.Join(os.TempDir(), "trending-test.log"))
	os.Exit(m.Run())
}

type fakeRecomputeStore struct {
	posts map[string]*Candidate // keyed by post ID

	pageErr  error
	applyErr error

	applyCalls   [][]ScoreUpdate
	resetCalled  bool
	resetBefore  time.Time
	failOnPageN  int // fail when serving the Nth page (1-based), 0 = never
	pagesServed  int
	staleResetsN int64
}

func (f *fakeRecomputeStore) PostPage(_ context.Context, afterID string, since time.Time, limit int) ([]Candidate, error) {
	f.pagesServed++
	if f.failOnPageN > 0 && f.pagesServed >= f.failOnPageN {
		return nil, errors.New("page fetch failed")
	}
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	var ids []string
	for id, c := range f.posts {
		if id > afterID && !c.Post.CreatedAt.Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, *f.posts[id])
	}
	return out, nil
}

func (f *fakeRecomputeStore) ApplyScores(_ context.Context, updates []ScoreUpdate) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applyCalls = append(f.applyCalls, updates)
	for _, u := range updates {
		f.posts[u.PostID].Post.TrendingScore = u.Score
	}
	return nil
}

func (f *fakeRecomputeStore) ResetStaleScores(_ context.Context, before time.Time) (int64, error) {
	f.resetCalled = true
	f.resetBefore = before
	var n int64
	for _, c := range f.posts {
		if c.Post.CreatedAt.Before(before) && c.Post.TrendingScore != 0 {
			c.Post.TrendingScore = 0
			n++
		}
	}
	f.staleResetsN = n
	return n, nil
}

func newRecomputeFixture(now time.Time, candidates ...Candidate) *fakeRecomputeStore {
	store := &fakeRecomputeStore{posts: map[string]*Candidate{}}
	for i := range candidates {
		c := candidates[i]
		store.posts[c.Post.ID] = &c
	}
	return store
}

func newTestRecomputer(store RecomputeStore, now time.Time) *Recomputer {
	r := NewRecomputer(store)
	r.now = func() time.Time { return now }
	return r
}

func TestRecomputeWritesFreshScores(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newRecomputeFixture(now,
		candidateAt("p1", 6, 10, 4, now.Add(-6*time.Hour)),
		candidateAt("p2", 20, 20, 0, now.Add(-time.Hour)),
	)

	res, err := newTestRecomputer(store, now).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Processed)
	assert.Equal(t, int64(2), res.Updated)
	assert.InDelta(t, 490.0, store.posts["p1"].Post.TrendingScore, 1e-6)
	assert.Greater(t, store.posts["p2"].Post.TrendingScore, 0.0)
}

func TestRecomputeIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newRecomputeFixture(now,
		candidateAt("p1", 6, 10, 4, now.Add(-6*time.Hour)),
		candidateAt("p2", 20, 20, 0, now.Add(-time.Hour)),
	)
	rec := newTestRecomputer(store, now)

	first, err := rec.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Updated)

	second, err := rec.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Processed)
	assert.Equal(t, int64(0), second.Updated, "rerun over unchanged data must find nothing dirty")
}

func TestRecomputeDirtyTolerance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := ScorePost(6, 10, now.Add(-6*time.Hour), 4, now, DefaultHalfLifeHours, DefaultCommentWeight)

	within := candidateAt("p1", 6, 10, 4, now.Add(-6*time.Hour))
	within.Post.TrendingScore = fresh + 5e-5 // inside tolerance
	beyond := candidateAt("p2", 6, 10, 4, now.Add(-6*time.Hour))
	beyond.Post.TrendingScore = fresh + 1e-3 // outside tolerance

	store := newRecomputeFixture(now, within, beyond)
	res, err := newTestRecomputer(store, now).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Processed)
	assert.Equal(t, int64(1), res.Updated)
	require.Len(t, store.applyCalls, 1)
	require.Len(t, store.applyCalls[0], 1)
	assert.Equal(t, "p2", store.applyCalls[0][0].PostID)
}

func TestRecomputeResetsAgedOutScores(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := candidateAt("old", 50, 50, 10, now.Add(-200*time.Hour))
	stale.Post.TrendingScore = 321.5
	live := candidateAt("new", 5, 5, 0, now.Add(-time.Hour))

	store := newRecomputeFixture(now, stale, live)
	res, err := newTestRecomputer(store, now).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Processed, "aged-out post must not be in the recompute window")
	assert.Equal(t, int64(1), res.Reset)
	assert.Equal(t, 0.0, store.posts["old"].Post.TrendingScore)
	assert.Equal(t, now.Add(-168*time.Hour), store.resetBefore)
}

func TestRecomputePagesThroughLargeWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var candidates []Candidate
	for i := 0; i < 25; i++ {
		candidates = append(candidates, candidateAt(fmt.Sprintf("post-%03d", i), i+1, i+1, 0, now.Add(-time.Hour)))
	}
	store := newRecomputeFixture(now, candidates...)

	res, err := newTestRecomputer(store, now).Run(context.Background(), Options{BatchSize: 10})
	require.NoError(t, err)

	assert.Equal(t, int64(25), res.Processed)
	assert.Equal(t, int64(25), res.Updated)
	assert.Len(t, store.applyCalls, 3, "each page commits its own updates")
}

func TestRecomputeStopsOnPageError(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var candidates []Candidate
	for i := 0; i < 25; i++ {
		candidates = append(candidates, candidateAt(fmt.Sprintf("post-%03d", i), i+1, i+1, 0, now.Add(-time.Hour)))
	}
	store := newRecomputeFixture(now, candidates...)
	store.failOnPageN = 2

	res, err := newTestRecomputer(store, now).Run(context.Background(), Options{BatchSize: 10})
	assert.Error(t, err)
	assert.Equal(t, int64(10), res.Processed, "the committed first page survives the failure")
	assert.False(t, store.resetCalled)
}

func TestRecomputeContextCancellation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newRecomputeFixture(now, candidateAt("p1", 5, 5, 0, now.Add(-time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRecomputer(store, now).Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecomputeEmptyWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newRecomputeFixture(now)

	res, err := newTestRecomputer(store, now).Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Processed)
	assert.Equal(t, int64(0), res.Updated)
	assert.True(t, store.resetCalled)
}
