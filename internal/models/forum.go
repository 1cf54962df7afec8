package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommunityVisibility controls who can see a community and its posts
type CommunityVisibility string

const (
	VisibilityPublic     CommunityVisibility = "public"
	VisibilityRestricted CommunityVisibility = "restricted"
	VisibilityPrivate    CommunityVisibility = "private"
)

// JoinPolicy controls how users become members of a community
type JoinPolicy string

const (
	JoinPolicyOpen     JoinPolicy = "open"
	JoinPolicyApproval JoinPolicy = "approval"
	JoinPolicyInvite   JoinPolicy = "invite"
	JoinPolicyLogin    JoinPolicy = "login"
)

// MembershipRole is a member's role within a community
type MembershipRole string

const (
	RoleOwner     MembershipRole = "owner"
	RoleModerator MembershipRole = "moderator"
	RoleMember    MembershipRole = "member"
)

// MembershipStatus is the approval state of a membership
type MembershipStatus string

const (
	MembershipPending  MembershipStatus = "pending"
	MembershipApproved MembershipStatus = "approved"
	MembershipRejected MembershipStatus = "rejected"
	MembershipBanned   MembershipStatus = "banned"
)

// PostType distinguishes post content kinds
type PostType string

const (
	PostTypeText PostType = "text"
	PostTypeLink PostType = "link"
	PostTypePoll PostType = "poll"
)

// User represents an account, either registered or guest
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Email       *string `gorm:"uniqueIndex" json:"email,omitempty"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `json:"display_name"`
	Bio         string `gorm:"type:text" json:"bio"`

	PasswordHash *string `gorm:"type:text" json:"-"`

	// Guest identity: resolved from X-Guest-Token, never created on read paths
	IsGuest    bool    `gorm:"default:false" json:"is_guest"`
	GuestToken *string `gorm:"uniqueIndex" json:"-"`

	// Karma accumulated from votes on this user's posts and comments.
	// Gates guest voting in communities with a karma threshold.
	Karma int `gorm:"default:0" json:"karma"`

	LastActiveAt *time.Time `json:"last_active_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// UserMute hides a target user's posts from the muting user's listings
type UserMute struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string `gorm:"not null;index" json:"user_id"`
	User     User   `gorm:"foreignKey:UserID" json:"-"`
	TargetID string `gorm:"not null;index" json:"target_id"`
	Target   User   `gorm:"foreignKey:TargetID" json:"target,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (UserMute) TableName() string {
	return "user_mutes"
}

// Community is a topic-scoped group that posts belong to
type Community struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `gorm:"type:text" json:"description"`

	Visibility CommunityVisibility `gorm:"type:varchar(16);default:public;index" json:"visibility"`
	JoinPolicy JoinPolicy          `gorm:"type:varchar(16);default:open" json:"join_policy"`
	IsNSFW     bool                `gorm:"default:false" json:"is_nsfw"`

	// Minimum karma a guest needs before voting here
	KarmaThreshold int `gorm:"default:0" json:"karma_threshold"`

	// Pinned post shown first in this community's trending listing
	ClipPostID *string `gorm:"type:uuid" json:"clip_post_id,omitempty"`

	CreatorID string `gorm:"not null;index" json:"creator_id"`
	Creator   User   `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`

	MembersCount int  `gorm:"default:0" json:"members_count"`
	IsDeleted    bool `gorm:"default:false;index" json:"is_deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommunityMembership links a user to a community with a role and approval state
type CommunityMembership struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	CommunityID string    `gorm:"not null;index" json:"community_id"`
	Community   Community `gorm:"foreignKey:CommunityID" json:"-"`
	UserID      string    `gorm:"not null;index" json:"user_id"`
	User        User      `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Role   MembershipRole   `gorm:"type:varchar(16);default:member" json:"role"`
	Status MembershipStatus `gorm:"type:varchar(16);default:approved" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Post is a submission to a community.
//
// Score and VotesTotal are the two stored vote counters: Score is the net
// signed total (up - down) and VotesTotal the count of cast votes regardless
// of direction. Upvote/downvote splits are derived, never stored — see
// trending.DeriveVotes. The voting handlers must keep both counters in
// lockstep (±1 on cast, symmetric decrement on toggle-off, ±2 on switch)
// or the derivation breaks.
type Post struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	CommunityID string    `gorm:"not null;index:idx_posts_community_created,priority:1" json:"community_id"`
	Community   Community `gorm:"foreignKey:CommunityID" json:"community,omitempty"`
	AuthorID    string    `gorm:"not null;index" json:"author_id"`
	Author      User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`

	Title    string   `gorm:"size:200;not null" json:"title"`
	Body     string   `gorm:"type:text" json:"body"`
	PostType PostType `gorm:"type:varchar(10);default:text" json:"post_type"`

	Score      int `gorm:"default:0" json:"score"`
	VotesTotal int `gorm:"default:0" json:"votes_total"`

	// Persisted trending score, written only by the batch recomputer.
	// Starts at 0, reset to 0 when the post ages out of the lookback window.
	TrendingScore float64 `gorm:"default:0" json:"trending_score"`

	IsDeleted bool       `gorm:"default:false;index" json:"is_deleted"`
	IsEdited  bool       `gorm:"default:false" json:"is_edited"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *string    `gorm:"type:uuid" json:"deleted_by,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_posts_community_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostVote is a single user's vote on a post, value +1 or -1
type PostVote struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	PostID string `gorm:"not null;uniqueIndex:idx_post_votes_unique,priority:1" json:"post_id"`
	Post   Post   `gorm:"foreignKey:PostID" json:"-"`
	UserID string `gorm:"not null;uniqueIndex:idx_post_votes_unique,priority:2" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`

	Value int `gorm:"not null" json:"value"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment is a threaded reply on a post. Soft-deleted comments stay in place
// for thread structure but are excluded from live counts.
type Comment struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	PostID      string    `gorm:"not null;index" json:"post_id"`
	Post        Post      `gorm:"foreignKey:PostID" json:"-"`
	CommunityID string    `gorm:"not null;index" json:"community_id"`
	Community   Community `gorm:"foreignKey:CommunityID" json:"-"`
	AuthorID    string    `gorm:"not null;index" json:"author_id"`
	Author      User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`

	ParentID *string    `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Parent   *Comment   `gorm:"foreignKey:ParentID" json:"-"`
	Replies  []*Comment `gorm:"foreignKey:ParentID" json:"replies,omitempty"`

	Body string `gorm:"type:text" json:"body"`

	Score      int `gorm:"default:0" json:"score"`
	VotesTotal int `gorm:"default:0" json:"votes_total"`

	IsDeleted bool       `gorm:"default:false" json:"is_deleted"`
	IsEdited  bool       `gorm:"default:false" json:"is_edited"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *string    `gorm:"type:uuid" json:"deleted_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommentVote is a single user's vote on a comment, value +1 or -1
type CommentVote struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	CommentID string  `gorm:"not null;uniqueIndex:idx_comment_votes_unique,priority:1" json:"comment_id"`
	Comment   Comment `gorm:"foreignKey:CommentID" json:"-"`
	UserID    string  `gorm:"not null;uniqueIndex:idx_comment_votes_unique,priority:2" json:"user_id"`
	User      User    `gorm:"foreignKey:UserID" json:"-"`

	Value int `gorm:"not null" json:"value"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hooks for GORM

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = generateUUID()
	}
	return nil
}

func (m *UserMute) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	return nil
}

func (c *Community) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

func (m *CommunityMembership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	return nil
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

func (v *PostVote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = generateUUID()
	}
	return nil
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

func (v *CommentVote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = generateUUID()
	}
	return nil
}

// Helper function for UUID generation
func generateUUID() string {
	return uuid.New().String()
}
