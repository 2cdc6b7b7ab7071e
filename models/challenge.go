// models/challenge.go
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bounty-challenge-system/bounty"
)

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// Challenge is a brand-funded bounty campaign.
type Challenge struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	BrandUserID string `json:"brand_user_id" gorm:"index;not null"` // external user id of the creator
	Hashtag     string `json:"hashtag" gorm:"index"`
	Platforms   string `json:"platforms"` // comma separated

	Status bounty.ChallengeStatus `json:"status" gorm:"type:varchar(16);index;not null"`

	BountyOffered decimal.Decimal `json:"bounty_offered" gorm:"type:decimal(38,18);not null"`
	StartDate     time.Time       `json:"start_date" gorm:"index;not null"`
	EndDate       time.Time       `json:"end_date" gorm:"index;not null"`

	Funded        bool       `json:"funded" gorm:"default:false"`
	FunderWallet  string     `json:"funder_wallet"`
	FundingTxHash string     `json:"funding_tx_hash,omitempty"`
	FundedAt      *time.Time `json:"funded_at,omitempty"`

	SettlementAttempts  int        `json:"settlement_attempts" gorm:"default:0"`
	LastSettlementError string     `json:"last_settlement_error,omitempty" gorm:"type:text"`
	SettlementTxHash    string     `json:"settlement_tx_hash,omitempty"`
	SettledAt           *time.Time `json:"settled_at,omitempty"`

	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:ChallengeID"`

	// Calculated fields (not stored in DB)
	ParticipantsCount int64 `json:"participants_count,omitempty" gorm:"-"`

	Timestamps
}

func (c *Challenge) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = bounty.StatusCreated
	}
	return nil
}

// PlatformList splits the stored platform list.
func (c *Challenge) PlatformList() []bounty.Platform {
	var out []bounty.Platform
	for _, p := range strings.Split(c.Platforms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, bounty.Platform(p))
		}
	}
	return out
}

// ToBounty is the engine's view of the challenge.
func (c *Challenge) ToBounty() *bounty.Challenge {
	return &bounty.Challenge{
		ID:            c.ID,
		BountyOffered: c.BountyOffered,
		Status:        c.Status,
		Funded:        c.Funded,
		FunderWallet:  c.FunderWallet,
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
	}
}
