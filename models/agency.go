package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Agency represents talent agencies. An agency may itself have been introduced
// by another agency, which then earns a cut of its commission.
type Agency struct {
	ID                  string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name                string  `json:"name" gorm:"uniqueIndex;not null"`
	Wallet              string  `json:"wallet" gorm:"not null"`
	CommissionEligible  bool    `json:"commission_eligible" gorm:"not null"`
	IntroducingAgencyID *string `json:"introducing_agency_id,omitempty" gorm:"index"`

	IntroducingAgency *Agency `json:"introducing_agency,omitempty" gorm:"foreignKey:IntroducingAgencyID"`

	Timestamps
}

func (a *Agency) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Influencer mirrors a user profile from the sync service.
type Influencer struct {
	ID             string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ExternalUserID string  `json:"external_user_id" gorm:"uniqueIndex;not null"` // links to profile service
	Username       string  `json:"username" gorm:"index"`
	Email          string  `json:"email"`
	Wallet         string  `json:"wallet"`
	AgencyID       *string `json:"agency_id,omitempty" gorm:"index"`

	Agency *Agency `json:"agency,omitempty" gorm:"foreignKey:AgencyID"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (i *Influencer) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
