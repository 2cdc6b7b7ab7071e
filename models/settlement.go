package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Settlement is the audit record of one settled distribution.
type Settlement struct {
	ID             string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ChallengeID    string          `json:"challenge_id" gorm:"uniqueIndex;not null"`
	TxHash         string          `json:"tx_hash" gorm:"index"`
	IdempotencyKey string          `json:"idempotency_key" gorm:"not null"`
	FinalStatus    string          `json:"final_status" gorm:"type:varchar(16);not null"`
	TotalAmount    decimal.Decimal `json:"total_amount" gorm:"type:decimal(38,18);not null"`
	SettledAt      time.Time       `json:"settled_at" gorm:"not null"`

	Entries     []SettlementEntry  `json:"entries,omitempty" gorm:"foreignKey:SettlementID"`
	Commissions []CommissionRecord `json:"commissions,omitempty" gorm:"foreignKey:SettlementID"`

	Timestamps
}

func (s *Settlement) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// SettlementEntry is one wallet line of the settled manifest.
type SettlementEntry struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SettlementID string          `json:"settlement_id" gorm:"index;not null"`
	Wallet       string          `json:"wallet" gorm:"not null"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(38,18);not null"`
	BaseUnits    string          `json:"base_units" gorm:"not null"`
}

func (e *SettlementEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// CommissionRecord keeps the agency commissions earned on one participant share.
type CommissionRecord struct {
	ID               string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SettlementID     string          `json:"settlement_id" gorm:"index;not null"`
	ChallengeID      string          `json:"challenge_id" gorm:"index;not null"`
	ParticipantID    string          `json:"participant_id" gorm:"index;not null"`
	Share            decimal.Decimal `json:"share" gorm:"type:decimal(38,18);not null"`
	AgencyWallet     string          `json:"agency_wallet" gorm:"not null"`
	AgencyAmount     decimal.Decimal `json:"agency_amount" gorm:"type:decimal(38,18);not null"`
	IntroducerWallet string          `json:"introducer_wallet,omitempty"`
	IntroducerAmount decimal.Decimal `json:"introducer_amount" gorm:"type:decimal(38,18);not null;default:0"`
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (r *CommissionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
