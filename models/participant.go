package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Participant is an influencer's entry in one challenge.
type Participant struct {
	ID             string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ChallengeID    string          `json:"challenge_id" gorm:"not null;uniqueIndex:idx_participant_challenge_user"`
	UserID         string          `json:"user_id" gorm:"not null;uniqueIndex:idx_participant_challenge_user"` // ExternalUserID
	Wallet         string          `json:"wallet" gorm:"not null"`
	SocialHandle   string          `json:"social_handle" gorm:"not null"`
	BountyReceived decimal.Decimal `json:"bounty_received" gorm:"type:decimal(38,18);not null;default:0"`
	IsActive       bool            `json:"is_active" gorm:"not null"`
	JoinedAt       time.Time       `json:"joined_at" gorm:"not null"`

	Metrics []ParticipantMetric `json:"metrics,omitempty" gorm:"foreignKey:ParticipantID"`

	Timestamps
}

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ParticipantMetric is the latest snapshot for one (participant, platform).
type ParticipantMetric struct {
	ID            string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ParticipantID string `json:"participant_id" gorm:"not null;uniqueIndex:idx_metric_participant_platform"`
	Platform      string `json:"platform" gorm:"type:varchar(16);not null;uniqueIndex:idx_metric_participant_platform"`

	Posts          int64   `json:"posts" gorm:"not null;default:0"`
	Likes          int64   `json:"likes" gorm:"not null;default:0"`
	Shares         int64   `json:"shares" gorm:"not null;default:0"`
	Comments       int64   `json:"comments" gorm:"not null;default:0"`
	Views          int64   `json:"views" gorm:"not null;default:0"`
	Impressions    int64   `json:"impressions" gorm:"not null;default:0"`
	EngagementRate float64 `json:"engagement_rate" gorm:"not null;default:0"`

	PostPrice       decimal.Decimal `json:"post_price" gorm:"type:decimal(38,18);not null;default:0"`
	LikePrice       decimal.Decimal `json:"like_price" gorm:"type:decimal(38,18);not null;default:0"`
	SharePrice      decimal.Decimal `json:"share_price" gorm:"type:decimal(38,18);not null;default:0"`
	CommentPrice    decimal.Decimal `json:"comment_price" gorm:"type:decimal(38,18);not null;default:0"`
	ViewPrice       decimal.Decimal `json:"view_price" gorm:"type:decimal(38,18);not null;default:0"`
	ImpressionPrice decimal.Decimal `json:"impression_price" gorm:"type:decimal(38,18);not null;default:0"`
	TotalPrice      decimal.Decimal `json:"total_price" gorm:"type:decimal(38,18);not null;default:0"`

	FetchedAt time.Time `json:"fetched_at" gorm:"not null"`

	Timestamps
}

func (m *ParticipantMetric) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// RawTotal is the sum of counted metrics, engagement rate excluded.
func (m *ParticipantMetric) RawTotal() int64 {
	return m.Posts + m.Likes + m.Shares + m.Comments + m.Views + m.Impressions
}
