// models/wallet_mirror.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// WalletMirror mirrors payout wallet data from sync service.
// Table name: wallet_mirrors
type WalletMirror struct {
	ID        string    `gorm:"primaryKey;type:varchar(36);not null" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;index" json:"user_id"` // External user ID
	Chain     string    `gorm:"type:varchar(64);not null;index" json:"chain"`
	Token     string    `gorm:"type:varchar(64);not null" json:"token"`
	Address   string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"address"` // Primary lookup key
	IsPayout  bool      `gorm:"not null" json:"is_payout"`                             // wallet that receives bounty payouts
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
