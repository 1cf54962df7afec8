package trending

import (
	"context"
	"sort"
	"time"

	"github.com/quorumsocial/quorum/internal/models"
)

const (
	// DefaultLimit is the trending feed page size when none is requested.
	DefaultLimit = 20

	// MaxLimit caps the requested page size.
	MaxLimit = 50

	// SampleSize caps how many recent candidates a single request scores.
	// The feed ranks a recency sample, not the full corpus; the batch
	// recomputer owns exact persisted scores.
	SampleSize = 200
)

// Candidate is a post eligible for ranking together with its live,
// non-deleted comment count.
type Candidate struct {
	Post         models.Post
	CommentCount int
}

// CandidateStore supplies ranking candidates. RecentCandidates returns
// non-deleted posts in public, non-deleted communities created at or after
// `since`, newest first, at most `limit` rows, excluding posts whose author
// the viewer has muted. A zero `since` means no recency bound. An empty
// viewerID means an anonymous viewer with no mutes.
type CandidateStore interface {
	RecentCandidates(ctx context.Context, viewerID string, since time.Time, limit int) ([]Candidate, error)
}

// Params are the per-request ranking knobs. Explicit zeros are meaningful:
// a zero LookbackHours disables the recency window entirely, and Limit is
// clamped into [1, MaxLimit] rather than defaulted, so a caller asking for
// zero gets one post. Absent or malformed query params are resolved to the
// Default* constants by the caller before Params is built.
type Params struct {
	Limit         int
	HalfLifeHours float64
	LookbackHours float64
	CommentWeight float64
}

func (p Params) normalized() Params {
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.HalfLifeHours <= 0 {
		p.HalfLifeHours = DefaultHalfLifeHours
	}
	if p.LookbackHours < 0 {
		p.LookbackHours = 0
	}
	if p.CommentWeight <= 0 {
		p.CommentWeight = DefaultCommentWeight
	}
	return p
}

// RankedPost is a candidate with its freshly computed score. The score is
// computed for this response only and never written back.
type RankedPost struct {
	Post         models.Post `json:"post"`
	CommentCount int         `json:"comment_count"`
	Upvotes      int         `json:"upvotes"`
	Downvotes    int         `json:"downvotes"`
	Score        float64     `json:"trending_score"`
}

// Sampler ranks a recency sample of posts on demand.
type Sampler struct {
	store CandidateStore
	now   func() time.Time
}

// NewSampler returns a Sampler over the given store.
func NewSampler(store CandidateStore) *Sampler {
	return &Sampler{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Trending returns the viewer's top posts by trending score. One `now` is
// frozen for the whole request so every candidate decays against the same
// instant.
func (s *Sampler) Trending(ctx context.Context, viewerID string, p Params) ([]RankedPost, error) {
	p = p.normalized()
	now := s.now()
	var since time.Time
	if p.LookbackHours > 0 {
		since = now.Add(-time.Duration(p.LookbackHours * float64(time.Hour)))
	}

	candidates, err := s.store.RecentCandidates(ctx, viewerID, since, SampleSize)
	if err != nil {
		return nil, err
	}

	ranked := rank(candidates, now, p)
	if len(ranked) > p.Limit {
		ranked = ranked[:p.Limit]
	}
	return ranked, nil
}

// RankCommunity scores every candidate of a single community in process
// (no sampling) and sorts trending-first. When clipPostID names one of the
// candidates, that post is pinned ahead of the rest regardless of score.
func RankCommunity(candidates []Candidate, clipPostID *string, now time.Time, p Params) []RankedPost {
	p = p.normalized()
	return PinFirst(rank(candidates, now, p), clipPostID)
}

// PinFirst moves the post named by clipPostID to the front, preserving the
// relative order of the rest. A nil or unmatched ID changes nothing. Every
// community sort pins the clip post, not just the trending one.
func PinFirst(ranked []RankedPost, clipPostID *string) []RankedPost {
	if clipPostID == nil {
		return ranked
	}
	for i, r := range ranked {
		if r.Post.ID == *clipPostID {
			pinned := ranked[i]
			copy(ranked[1:i+1], ranked[:i])
			ranked[0] = pinned
			break
		}
	}
	return ranked
}

func rank(candidates []Candidate, now time.Time, p Params) []RankedPost {
	ranked := make([]RankedPost, 0, len(candidates))
	for _, c := range candidates {
		up, down := DeriveVotes(c.Post.Score, c.Post.VotesTotal)
		ranked = append(ranked, RankedPost{
			Post:         c.Post,
			CommentCount: c.CommentCount,
			Upvotes:      up,
			Downvotes:    down,
			Score:        Score(up, down, c.Post.CreatedAt, c.CommentCount, now, p.HalfLifeHours, p.CommentWeight),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Post.ID > ranked[j].Post.ID
	})
	return ranked
}
