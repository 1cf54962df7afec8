package trending

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quorumsocial/quorum/internal/cache"
	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/metrics"
)

const (
	// RecomputeLockKey is the advisory lock shared by every recompute
	// runner, in-process or CLI.
	RecomputeLockKey = "locks:trending:recompute"

	// RecomputeLockTTL bounds how long a crashed holder can block other
	// runners. Runs are expected to finish well inside it.
	RecomputeLockTTL = 30 * time.Minute
)

// AdvisoryLocker is the locking slice of the cache client. A nil redis
// client satisfies it by always granting the lock (single-instance mode).
type AdvisoryLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// RunExclusive performs one recompute run under the shared advisory lock so
// the periodic service and an operator-run CLI never walk the same window
// concurrently. When another holder owns the lock the run is skipped, not
// queued.
func RunExclusive(ctx context.Context, lock AdvisoryLocker, r *Recomputer, opts Options) (Result, bool, error) {
	acquired, err := lock.TryLock(ctx, RecomputeLockKey, RecomputeLockTTL)
	if err != nil {
		return Result{}, false, err
	}
	if !acquired {
		return Result{}, true, nil
	}
	defer func() {
		if err := lock.Unlock(context.Background(), RecomputeLockKey); err != nil {
			logger.ErrorWithFields("Failed to release recompute lock", err)
		}
	}()

	res, err := r.Run(ctx, opts)
	return res, false, err
}

// Service periodically recomputes persisted trending scores in process.
// A Redis advisory lock keeps concurrent deployments (or an operator-run
// CLI invocation) from recomputing the same window twice at once; losing
// the lock skips the tick, it does not queue.
type Service struct {
	recomputer *Recomputer
	opts       Options
	interval   time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewService creates a periodic recompute service around the recomputer.
func NewService(recomputer *Recomputer, opts Options, interval time.Duration) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		recomputer: recomputer,
		opts:       opts,
		interval:   interval,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins the periodic recompute loop.
func (s *Service) Start() {
	logger.Log.Info("Starting trending recompute service",
		zap.Duration("interval", s.interval))
	go s.run()
}

// Stop stops the service and cancels any in-flight run.
func (s *Service) Stop() {
	logger.Log.Info("Stopping trending recompute service")
	s.cancel()
}

// run executes a recompute immediately, then on the configured interval.
func (s *Service) run() {
	s.recomputeOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.recomputeOnce()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) recomputeOnce() {
	res, skipped, err := RunExclusive(s.ctx, cache.GetRedisClient(), s.recomputer, s.opts)
	if err != nil {
		metrics.TrendingRecomputeRuns.WithLabelValues("error").Inc()
		logger.ErrorWithFields("Trending recompute failed", err)
		return
	}
	if skipped {
		logger.Log.Info("Trending recompute already running elsewhere, skipping tick")
		return
	}

	metrics.TrendingRecomputeRuns.WithLabelValues("ok").Inc()
	metrics.TrendingPostsProcessed.Add(float64(res.Processed))
	metrics.TrendingPostsUpdated.Add(float64(res.Updated))
	metrics.TrendingRecomputeDuration.Observe(res.Duration.Seconds())
}
