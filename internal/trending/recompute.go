package trending

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/quorumsocial/quorum/internal/logger"
)

const (
	// DefaultBatchSize is the recompute page size.
	DefaultBatchSize = 1000

	// DirtyTolerance is the smallest score change worth persisting.
	// Differences at or below it are float noise, not movement.
	DirtyTolerance = 1e-4
)

// ScoreUpdate is one post's new persisted trending score.
type ScoreUpdate struct {
	PostID string
	Score  float64
}

// RecomputeStore is the persistence surface of the batch recomputer.
//
// PostPage returns non-deleted posts in public, non-deleted communities
// created at or after `since` with IDs strictly greater than afterID,
// ordered by ID ascending, at most limit rows. ApplyScores writes a page of point updates inside one transaction.
// ResetStaleScores zeroes the persisted score of every post that aged out
// of the window and returns how many rows changed.
type RecomputeStore interface {
	PostPage(ctx context.Context, afterID string, since time.Time, limit int) ([]Candidate, error)
	ApplyScores(ctx context.Context, updates []ScoreUpdate) error
	ResetStaleScores(ctx context.Context, before time.Time) (int64, error)
}

// Options tune a recompute run. Zero values select defaults.
type Options struct {
	BatchSize     int
	HalfLifeHours float64
	LookbackHours float64
	CommentWeight float64
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.HalfLifeHours <= 0 {
		o.HalfLifeHours = DefaultHalfLifeHours
	}
	if o.LookbackHours <= 0 {
		o.LookbackHours = DefaultLookbackHours
	}
	if o.CommentWeight <= 0 {
		o.CommentWeight = DefaultCommentWeight
	}
	return o
}

// Result reports what a recompute run did.
type Result struct {
	Processed int64         `json:"processed"`
	Updated   int64         `json:"updated"`
	Reset     int64         `json:"reset"`
	Duration  time.Duration `json:"duration"`
}

// Recomputer walks every post in the lookback window and refreshes its
// persisted trending score. Runs are idempotent: a rerun against unchanged
// data finds nothing dirty. Interrupting between pages leaves earlier pages
// committed and later pages stale until the next run.
type Recomputer struct {
	store RecomputeStore
	now   func() time.Time
}

// NewRecomputer returns a Recomputer over the given store.
func NewRecomputer(store RecomputeStore) *Recomputer {
	return &Recomputer{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Run recomputes scores for every post in the window, then resets the
// scores of posts that aged out. One `now` is frozen for the entire run.
func (r *Recomputer) Run(ctx context.Context, opts Options) (Result, error) {
	opts = opts.normalized()
	now := r.now()
	since := now.Add(-time.Duration(opts.LookbackHours * float64(time.Hour)))
	started := time.Now()

	var res Result
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := r.store.PostPage(ctx, afterID, since, opts.BatchSize)
		if err != nil {
			return res, err
		}
		if len(page) == 0 {
			break
		}

		updates := make([]ScoreUpdate, 0, len(page))
		for _, c := range page {
			fresh := ScorePost(c.Post.Score, c.Post.VotesTotal, c.Post.CreatedAt, c.CommentCount, now, opts.HalfLifeHours, opts.CommentWeight)
			if math.Abs(fresh-c.Post.TrendingScore) > DirtyTolerance {
				updates = append(updates, ScoreUpdate{PostID: c.Post.ID, Score: fresh})
			}
		}
		if len(updates) > 0 {
			if err := r.store.ApplyScores(ctx, updates); err != nil {
				return res, err
			}
		}

		res.Processed += int64(len(page))
		res.Updated += int64(len(updates))
		afterID = page[len(page)-1].Post.ID

		if len(page) < opts.BatchSize {
			break
		}
	}

	reset, err := r.store.ResetStaleScores(ctx, since)
	if err != nil {
		return res, err
	}
	res.Reset = reset
	res.Duration = time.Since(started)

	logger.Log.Info("trending recompute finished",
		zap.Int64("processed", res.Processed),
		zap.Int64("updated", res.Updated),
		zap.Int64("reset", res.Reset),
		zap.Duration("duration", res.Duration))

	return res, nil
}
