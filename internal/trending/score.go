// Package trending implements time-decayed engagement scoring for posts:
// a pure score function, an online sampled ranker for the trending feed,
// and a batch recomputer that keeps persisted scores fresh.
package trending

import (
	"math"
	"time"
)

const (
	// DefaultHalfLifeHours is substituted whenever a caller supplies a
	// non-positive half-life.
	DefaultHalfLifeHours = 6.0

	// DefaultCommentWeight is the per-comment contribution to engagement.
	DefaultCommentWeight = 0.7

	// DefaultLookbackHours bounds how old a post may be and still rank.
	DefaultLookbackHours = 168.0
)

// Score computes the trending score of a post at the instant `now`.
//
// Engagement is net votes plus weighted comments, floored at zero so
// heavily-downvoted posts score 0 rather than negative. The magnitude is
// log10-compressed and then decayed by halving once per halfLifeHours of
// age. The log-then-power round trip is intentional and must not be
// simplified to raw+1: the compressed magnitude is what the decay applies
// to, and the produced values are load-bearing for stored-score
// comparisons (7-decimal rounding below).
func Score(upvotes, downvotes int, createdAt time.Time, commentCount int, now time.Time, halfLifeHours, commentWeight float64) float64 {
	if halfLifeHours <= 0 {
		halfLifeHours = DefaultHalfLifeHours
	}

	engagement := float64(upvotes-downvotes) + math.Max(float64(commentCount), 0)*math.Max(commentWeight, 0)
	raw := math.Max(engagement, 0)
	if raw <= 0 {
		return 0
	}

	elapsedHours := now.Sub(createdAt).Hours()
	if elapsedHours < 0 {
		// Clock skew: future posts decay as if brand new
		elapsedHours = 0
	}

	decay := math.Pow(0.5, elapsedHours/halfLifeHours)
	logScore := math.Log10(raw + 1)

	return round7(math.Pow(10, logScore) * decay * 100.0)
}

// round7 rounds half away from zero to 7 decimal places.
func round7(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}

// DeriveVotes splits the stored (score, votesTotal) counter pair into
// upvote and downvote counts. Division truncates toward zero, which for
// any consistent counter pair (same parity, both maintained in lockstep)
// is exact. Each count is floored at zero so a drifted pair degrades to
// sane values instead of negatives.
func DeriveVotes(score, votesTotal int) (upvotes, downvotes int) {
	upvotes = (votesTotal + score) / 2
	if upvotes < 0 {
		upvotes = 0
	}
	downvotes = votesTotal - upvotes
	if downvotes < 0 {
		downvotes = 0
	}
	return upvotes, downvotes
}

// ScorePost scores a post directly from its stored counters.
func ScorePost(score, votesTotal int, createdAt time.Time, commentCount int, now time.Time, halfLifeHours, commentWeight float64) float64 {
	up, down := DeriveVotes(score, votesTotal)
	return Score(up, down, createdAt, commentCount, now, halfLifeHours, commentWeight)
}
