package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quorumsocial/quorum/internal/cache"
	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/repository"
	"github.com/quorumsocial/quorum/internal/trending"
)

var (
	batchSize     int
	halfLifeHours float64
	lookbackHours float64
	commentWeight float64
	dryRun        bool
)

var rootCmd = &cobra.Command{
	Use:   "compute-trending",
	Short: "Recompute stored trending scores for recent posts",
	Long: `Walks all live posts inside the lookback window in keyset-paged
batches, recomputes each post's trending score from its current vote and
comment counters, and persists scores that drifted. Posts older than the
window are reset to zero. Safe to run repeatedly; a second run over
unchanged data writes nothing.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().IntVar(&batchSize, "batch-size", trending.DefaultBatchSize, "posts per page")
	rootCmd.Flags().Float64Var(&halfLifeHours, "half-life-hours", trending.DefaultHalfLifeHours, "decay half-life in hours")
	rootCmd.Flags().Float64Var(&lookbackHours, "lookback-hours", trending.DefaultLookbackHours, "recompute window in hours")
	rootCmd.Flags().Float64Var(&commentWeight, "comment-weight", trending.DefaultCommentWeight, "engagement weight per comment")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
}

func run(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: .env file not found, using system environment variables")
	}

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = filepath.Join(os.TempDir(), "compute-trending.log")
	}
	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), logFile); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Close()

	if err := database.Initialize(); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	opts := trending.Options{
		BatchSize:     batchSize,
		HalfLifeHours: halfLifeHours,
		LookbackHours: lookbackHours,
		CommentWeight: commentWeight,
	}

	var store trending.RecomputeStore = repository.NewPostRepository(database.DB)
	if dryRun {
		// A dry run writes nothing, so it runs unlocked alongside real ones.
		result, err := trending.NewRecomputer(readOnlyStore{store}).Run(context.Background(), opts)
		if err != nil {
			return fmt.Errorf("recompute trending scores: %w", err)
		}
		printResult(result)
		return nil
	}

	// Share the advisory lock with the server's periodic recompute service;
	// a cron invocation racing it must not double-write the same window.
	if host := os.Getenv("REDIS_HOST"); host != "" {
		rc, err := cache.NewRedisClient(host, os.Getenv("REDIS_PORT"), os.Getenv("REDIS_PASSWORD"))
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rc.Close()
	}

	result, skipped, err := trending.RunExclusive(context.Background(), cache.GetRedisClient(), trending.NewRecomputer(store), opts)
	if err != nil {
		return fmt.Errorf("recompute trending scores: %w", err)
	}
	if skipped {
		fmt.Println("another recompute holds the lock; nothing to do")
		return nil
	}
	printResult(result)
	return nil
}

func printResult(result trending.Result) {
	fmt.Printf("processed=%d updated=%d reset=%d duration=%s\n",
		result.Processed, result.Updated, result.Reset, result.Duration)
}

// readOnlyStore pages like the real store but swallows writes
type readOnlyStore struct {
	trending.RecomputeStore
}

func (readOnlyStore) ApplyScores(ctx context.Context, updates []trending.ScoreUpdate) error {
	return nil
}

func (readOnlyStore) ResetStaleScores(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
