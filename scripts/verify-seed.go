package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/models"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Initialize database connection
	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	fmt.Println("Verifying seed data...")
	fmt.Println()

	// Count records
	var userCount, guestCount, communityCount, postCount, voteCount, commentCount, muteCount int64

	database.DB.Model(&models.User{}).Where("is_guest = false").Count(&userCount)
	database.DB.Model(&models.User{}).Where("is_guest = true").Count(&guestCount)
	database.DB.Model(&models.Community{}).Where("is_deleted = false").Count(&communityCount)
	database.DB.Model(&models.Post{}).Where("is_deleted = false").Count(&postCount)
	database.DB.Model(&models.PostVote{}).Count(&voteCount)
	database.DB.Model(&models.Comment{}).Where("is_deleted = false").Count(&commentCount)
	database.DB.Model(&models.UserMute{}).Count(&muteCount)

	fmt.Println("Record counts:")
	fmt.Printf("  Registered users: %d\n", userCount)
	fmt.Printf("  Guests:           %d\n", guestCount)
	fmt.Printf("  Communities:      %d\n", communityCount)
	fmt.Printf("  Posts:            %d\n", postCount)
	fmt.Printf("  Post votes:       %d\n", voteCount)
	fmt.Printf("  Comments:         %d\n", commentCount)
	fmt.Printf("  Mutes:            %d\n", muteCount)
	fmt.Println()

	// Counter consistency: the stored score/votes_total pair on every
	// post must match its vote rows
	var drifted int64
	database.DB.Raw(`
		SELECT COUNT(*) FROM posts p
		WHERE p.is_deleted = false
		  AND (p.score, p.votes_total) <> (
			SELECT (COALESCE(SUM(v.value), 0), COUNT(v.id))
			FROM post_votes v WHERE v.post_id = p.id
		  )
	`).Scan(&drifted)
	if drifted > 0 {
		fmt.Printf("WARNING: %d posts have counters out of sync with their vote rows\n", drifted)
	} else {
		fmt.Println("Vote counters consistent with vote rows")
	}
	fmt.Println()

	// Top trending posts
	var posts []models.Post
	database.DB.
		Where("is_deleted = false AND trending_score > 0").
		Order("trending_score DESC").
		Limit(5).
		Find(&posts)

	fmt.Println("Top trending posts:")
	for _, p := range posts {
		fmt.Printf("  %.4f  score=%-4d votes=%-4d  %s\n", p.TrendingScore, p.Score, p.VotesTotal, p.Title)
	}
}
