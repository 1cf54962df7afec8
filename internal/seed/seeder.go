package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/models"
	"github.com/quorumsocial/quorum/internal/trending"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// SeedDev seeds the development database with realistic data
func (s *Seeder) SeedDev() error {
	log := func(msg string) {
		logger.Log.Info(msg)
	}

	log("Creating users...")
	users, err := s.seedUsers(100, 20)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	log("Creating communities...")
	communities, err := s.seedCommunities(users, 12)
	if err != nil {
		return fmt.Errorf("failed to seed communities: %w", err)
	}

	log("Creating memberships...")
	if err := s.seedMemberships(users, communities); err != nil {
		return fmt.Errorf("failed to seed memberships: %w", err)
	}

	log("Creating posts and votes...")
	posts, err := s.seedPosts(users, communities, 500)
	if err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}

	log("Creating comments...")
	if err := s.seedComments(users, posts, 1500); err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}

	log("Creating mutes...")
	if err := s.seedMutes(users, 30); err != nil {
		return fmt.Errorf("failed to seed mutes: %w", err)
	}

	log("Computing trending scores...")
	if err := s.refreshTrendingScores(); err != nil {
		return fmt.Errorf("failed to compute trending scores: %w", err)
	}

	return nil
}

// SeedTest seeds the test database with a small fixed cast
func (s *Seeder) SeedTest() error {
	testUserSpecs := []struct {
		username string
		email    string
	}{
		{"alice", "alice@example.com"},
		{"bob", "bob@example.com"},
		{"charlie", "charlie@example.com"},
	}

	var users []models.User
	for _, spec := range testUserSpecs {
		var user models.User
		err := s.db.Where("username = ? OR email = ?", spec.username, spec.email).First(&user).Error
		if err == nil {
			users = append(users, user)
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hashStr := string(hash)
		email := spec.email
		user = models.User{
			Username:     spec.username,
			DisplayName:  strings.Title(spec.username),
			Email:        &email,
			PasswordHash: &hashStr,
			Karma:        10,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create test user %s: %w", spec.username, err)
		}
		users = append(users, user)
	}

	communities, err := s.seedCommunities(users, 2)
	if err != nil {
		return err
	}
	if err := s.seedMemberships(users, communities); err != nil {
		return err
	}
	posts, err := s.seedPosts(users, communities, 10)
	if err != nil {
		return err
	}
	if err := s.seedComments(users, posts, 20); err != nil {
		return err
	}
	return s.refreshTrendingScores()
}

// Clean removes all seeded rows. Order matters for foreign keys.
func (s *Seeder) Clean() error {
	tables := []string{
		"comment_votes",
		"post_votes",
		"comments",
		"posts",
		"community_memberships",
		"communities",
		"user_mutes",
		"users",
	}
	for _, table := range tables {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) seedUsers(registered, guests int) ([]models.User, error) {
	var users []models.User

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	hashStr := string(hash)

	for i := 0; i < registered; i++ {
		email := gofakeit.Email()
		user := models.User{
			Username:     fmt.Sprintf("%s%d", strings.ToLower(gofakeit.Username()), i),
			DisplayName:  gofakeit.Name(),
			Email:        &email,
			PasswordHash: &hashStr,
			Karma:        rand.Intn(500),
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	for i := 0; i < guests; i++ {
		token := gofakeit.UUID()
		user := models.User{
			Username:   fmt.Sprintf("guest_%d_%s", i, gofakeit.LetterN(6)),
			IsGuest:    true,
			GuestToken: &token,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, nil
}

func (s *Seeder) seedCommunities(users []models.User, count int) ([]models.Community, error) {
	visibilities := []models.CommunityVisibility{
		models.VisibilityPublic,
		models.VisibilityPublic,
		models.VisibilityPublic,
		models.VisibilityRestricted,
		models.VisibilityPrivate,
	}
	joinPolicies := []models.JoinPolicy{
		models.JoinPolicyOpen,
		models.JoinPolicyOpen,
		models.JoinPolicyLogin,
		models.JoinPolicyApproval,
		models.JoinPolicyInvite,
	}

	var communities []models.Community
	for i := 0; i < count; i++ {
		creator := pickRegistered(users)
		name := fmt.Sprintf("%s %s", gofakeit.HipsterWord(), gofakeit.NounAbstract())
		community := models.Community{
			Name:           name,
			Slug:           fmt.Sprintf("%s-%d", strings.ToLower(strings.ReplaceAll(name, " ", "-")), i),
			Description:    gofakeit.Sentence(12),
			Visibility:     visibilities[rand.Intn(len(visibilities))],
			JoinPolicy:     joinPolicies[rand.Intn(len(joinPolicies))],
			KarmaThreshold: rand.Intn(3) * 10,
			CreatorID:      creator.ID,
		}
		if err := s.db.Create(&community).Error; err != nil {
			return nil, err
		}

		membership := models.CommunityMembership{
			CommunityID: community.ID,
			UserID:      creator.ID,
			Role:        models.RoleOwner,
			Status:      models.MembershipApproved,
		}
		if err := s.db.Create(&membership).Error; err != nil {
			return nil, err
		}
		s.db.Model(&community).Update("members_count", 1)

		communities = append(communities, community)
	}
	return communities, nil
}

func (s *Seeder) seedMemberships(users []models.User, communities []models.Community) error {
	for i := range communities {
		community := &communities[i]
		joined := 0
		for _, user := range users {
			if user.IsGuest || user.ID == community.CreatorID {
				continue
			}
			if rand.Float64() > 0.3 {
				continue
			}

			status := models.MembershipApproved
			if community.JoinPolicy == models.JoinPolicyApproval && rand.Float64() < 0.3 {
				status = models.MembershipPending
			}
			role := models.RoleMember
			if status == models.MembershipApproved && rand.Float64() < 0.05 {
				role = models.RoleModerator
			}

			membership := models.CommunityMembership{
				CommunityID: community.ID,
				UserID:      user.ID,
				Role:        role,
				Status:      status,
			}
			if err := s.db.Create(&membership).Error; err != nil {
				return err
			}
			if status == models.MembershipApproved {
				joined++
			}
		}
		if err := s.db.Model(community).
			Update("members_count", gorm.Expr("members_count + ?", joined)).Error; err != nil {
			return err
		}
	}
	return nil
}

// seedPosts creates posts with vote rows and keeps the denormalized
// score and votes_total counters consistent with those rows
func (s *Seeder) seedPosts(users []models.User, communities []models.Community, count int) ([]models.Post, error) {
	postTypes := []models.PostType{models.PostTypeText, models.PostTypeText, models.PostTypeLink}

	var posts []models.Post
	for i := 0; i < count; i++ {
		author := pickRegistered(users)
		community := communities[rand.Intn(len(communities))]

		// Spread posts across the last ten days so some fall outside
		// the trending lookback window
		age := time.Duration(rand.Intn(240)) * time.Hour
		createdAt := time.Now().UTC().Add(-age)

		post := models.Post{
			CommunityID: community.ID,
			AuthorID:    author.ID,
			Title:       gofakeit.Sentence(6),
			Body:        gofakeit.Paragraph(1, 3, 12, " "),
			PostType:    postTypes[rand.Intn(len(postTypes))],
			CreatedAt:   createdAt,
		}
		if err := s.db.Create(&post).Error; err != nil {
			return nil, err
		}
		s.db.Model(&post).Update("created_at", createdAt)

		score, votesTotal, err := s.seedVotes(&post, users)
		if err != nil {
			return nil, err
		}
		if err := s.db.Model(&post).Updates(map[string]interface{}{
			"score":       score,
			"votes_total": votesTotal,
		}).Error; err != nil {
			return nil, err
		}
		post.Score = score
		post.VotesTotal = votesTotal

		posts = append(posts, post)
	}
	return posts, nil
}

func (s *Seeder) seedVotes(post *models.Post, users []models.User) (score, votesTotal int, err error) {
	voterCount := rand.Intn(15)
	seen := map[string]bool{post.AuthorID: true}

	for i := 0; i < voterCount; i++ {
		voter := users[rand.Intn(len(users))]
		if seen[voter.ID] {
			continue
		}
		seen[voter.ID] = true

		value := 1
		if rand.Float64() < 0.25 {
			value = -1
		}
		vote := models.PostVote{PostID: post.ID, UserID: voter.ID, Value: value}
		if err := s.db.Create(&vote).Error; err != nil {
			return 0, 0, err
		}
		score += value
		votesTotal++
	}
	return score, votesTotal, nil
}

func (s *Seeder) seedComments(users []models.User, posts []models.Post, count int) error {
	for i := 0; i < count; i++ {
		post := posts[rand.Intn(len(posts))]
		author := users[rand.Intn(len(users))]

		comment := models.Comment{
			PostID:      post.ID,
			CommunityID: post.CommunityID,
			AuthorID:    author.ID,
			Body:        gofakeit.Sentence(rand.Intn(20) + 3),
		}
		if err := s.db.Create(&comment).Error; err != nil {
			return err
		}

		// Occasionally reply to it
		if rand.Float64() < 0.25 {
			reply := models.Comment{
				PostID:      post.ID,
				CommunityID: post.CommunityID,
				AuthorID:    users[rand.Intn(len(users))].ID,
				ParentID:    &comment.ID,
				Body:        gofakeit.Sentence(rand.Intn(12) + 2),
			}
			if err := s.db.Create(&reply).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) seedMutes(users []models.User, count int) error {
	for i := 0; i < count; i++ {
		muter := pickRegistered(users)
		target := users[rand.Intn(len(users))]
		if muter.ID == target.ID {
			continue
		}
		mute := models.UserMute{UserID: muter.ID, TargetID: target.ID}
		// Unique index makes repeats a no-op
		s.db.Where("user_id = ? AND target_id = ?", muter.ID, target.ID).
			FirstOrCreate(&mute)
	}
	return nil
}

// refreshTrendingScores runs the batch recomputer so seeded feeds rank
// sensibly without waiting for the background service
func (s *Seeder) refreshTrendingScores() error {
	now := time.Now().UTC()
	var posts []models.Post
	if err := s.db.Where("is_deleted = ?", false).Find(&posts).Error; err != nil {
		return err
	}
	for _, post := range posts {
		var commentCount int64
		s.db.Model(&models.Comment{}).
			Where("post_id = ? AND is_deleted = ?", post.ID, false).
			Count(&commentCount)

		fresh := trending.ScorePost(
			post.Score, post.VotesTotal, post.CreatedAt, int(commentCount),
			now, trending.DefaultHalfLifeHours, trending.DefaultCommentWeight,
		)
		if err := s.db.Model(&post).Update("trending_score", fresh).Error; err != nil {
			return err
		}
	}
	return nil
}

func pickRegistered(users []models.User) models.User {
	for {
		u := users[rand.Intn(len(users))]
		if !u.IsGuest {
			return u
		}
	}
}
