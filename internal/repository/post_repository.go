package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/quorumsocial/quorum/internal/models"
	"github.com/quorumsocial/quorum/internal/trending"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrPostNotFound = errors.New("post not found")
)

// PostRepository handles the database operations behind trending ranking:
// candidate selection for the feed sampler, keyset paging and score writes
// for the batch recomputer, and community-scoped candidate loading.
type PostRepository interface {
	// Feed sampler store
	RecentCandidates(ctx context.Context, viewerID string, since time.Time, limit int) ([]trending.Candidate, error)

	// Community listing
	CommunityCandidates(ctx context.Context, communityID, viewerID string) ([]trending.Candidate, error)

	// Batch recomputer store
	PostPage(ctx context.Context, afterID string, since time.Time, limit int) ([]trending.Candidate, error)
	ApplyScores(ctx context.Context, updates []trending.ScoreUpdate) error
	ResetStaleScores(ctx context.Context, before time.Time) (int64, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// RecentCandidates returns the newest eligible posts for the trending feed:
// non-deleted posts in public, non-deleted communities created at or after
// `since`, minus posts by authors the viewer muted, capped at limit. A zero
// `since` disables the recency bound.
func (r *postRepository) RecentCandidates(ctx context.Context, viewerID string, since time.Time, limit int) ([]trending.Candidate, error) {
	q := r.db.WithContext(ctx).
		Joins("JOIN communities ON communities.id = posts.community_id").
		Where("posts.is_deleted = ?", false).
		Where("communities.visibility = ?", models.VisibilityPublic).
		Where("communities.is_deleted = ?", false)

	if !since.IsZero() {
		q = q.Where("posts.created_at >= ?", since)
	}

	if viewerID != "" {
		q = q.Where("posts.author_id NOT IN (?)",
			r.db.Model(&models.UserMute{}).Select("target_id").Where("user_id = ?", viewerID))
	}

	var posts []models.Post
	err := q.Order("posts.created_at DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}

	return r.annotateCommentCounts(ctx, posts)
}

// CommunityCandidates returns every non-deleted post of one community with
// live comment counts, for full in-process trending sorting. No sampling
// and no window: a community page ranks all of its posts.
func (r *postRepository) CommunityCandidates(ctx context.Context, communityID, viewerID string) ([]trending.Candidate, error) {
	if communityID == "" {
		return nil, ErrInvalidInput
	}

	q := r.db.WithContext(ctx).
		Where("posts.community_id = ?", communityID).
		Where("posts.is_deleted = ?", false)

	if viewerID != "" {
		q = q.Where("posts.author_id NOT IN (?)",
			r.db.Model(&models.UserMute{}).Select("target_id").Where("user_id = ?", viewerID))
	}

	var posts []models.Post
	err := q.Order("posts.created_at DESC").Find(&posts).Error
	if err != nil {
		return nil, err
	}

	return r.annotateCommentCounts(ctx, posts)
}

// PostPage returns one keyset page of recompute candidates: non-deleted
// posts in public, non-deleted communities created at or after `since` with
// IDs strictly greater than afterID, ordered by ID so interrupted runs
// resume deterministically.
func (r *postRepository) PostPage(ctx context.Context, afterID string, since time.Time, limit int) ([]trending.Candidate, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Joins("JOIN communities ON communities.id = posts.community_id").
		Where("posts.is_deleted = ?", false).
		Where("posts.created_at >= ?", since).
		Where("posts.id > ?", afterID).
		Where("communities.visibility = ?", models.VisibilityPublic).
		Where("communities.is_deleted = ?", false).
		Order("posts.id ASC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}

	return r.annotateCommentCounts(ctx, posts)
}

// ApplyScores writes one page of trending score updates inside a single
// transaction: the page lands atomically or not at all.
func (r *postRepository) ApplyScores(ctx context.Context, updates []trending.ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := tx.Model(&models.Post{}).
				Where("id = ?", u.PostID).
				Update("trending_score", u.Score).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetStaleScores zeroes the persisted score of posts that aged out of
// the lookback window. The trending_score <> 0 guard keeps reruns from
// rewriting already-reset rows.
func (r *postRepository) ResetStaleScores(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("created_at < ?", before).
		Where("trending_score <> 0").
		Update("trending_score", 0.0)
	return res.RowsAffected, res.Error
}

// annotateCommentCounts attaches live (non-deleted) comment counts to a
// slice of posts in one grouped query.
func (r *postRepository) annotateCommentCounts(ctx context.Context, posts []models.Post) ([]trending.Candidate, error) {
	candidates := make([]trending.Candidate, len(posts))
	for i, p := range posts {
		candidates[i] = trending.Candidate{Post: p}
	}
	if len(posts) == 0 {
		return candidates, nil
	}

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	type countRow struct {
		PostID string
		N      int
	}
	var rows []countRow
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Select("post_id, COUNT(*) AS n").
		Where("post_id IN ?", ids).
		Where("is_deleted = ?", false).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.PostID] = row.N
	}
	for i := range candidates {
		candidates[i].CommentCount = counts[candidates[i].Post.ID]
	}
	return candidates, nil
}
