package workers

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/models"
)

const (
	walletA = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	walletB = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedChallenge(t *testing.T, db *gorm.DB, slug string, mutate func(*models.Challenge)) *models.Challenge {
	t.Helper()
	ch := &models.Challenge{
		Slug:          slug,
		Title:         slug,
		BrandUserID:   "brand-1",
		Hashtag:       "summerglow",
		Platforms:     "instagram,tiktok",
		Status:        bounty.StatusStarted,
		BountyOffered: decimal.NewFromInt(1000),
		StartDate:     baseTime.Add(-48 * time.Hour),
		EndDate:       baseTime.Add(-time.Hour),
		Funded:        true,
		FunderWallet:  walletB,
	}
	if mutate != nil {
		mutate(ch)
	}
	require.NoError(t, db.Create(ch).Error)
	return ch
}

func seedParticipant(t *testing.T, db *gorm.DB, challengeID, userID, handle string) *models.Participant {
	t.Helper()
	p := &models.Participant{
		ChallengeID:    challengeID,
		UserID:         userID,
		Wallet:         walletA,
		SocialHandle:   handle,
		BountyReceived: decimal.Zero,
		IsActive:       true,
		JoinedAt:       baseTime.Add(-24 * time.Hour),
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func reloadChallenge(t *testing.T, db *gorm.DB, id string) models.Challenge {
	t.Helper()
	var ch models.Challenge
	require.NoError(t, db.First(&ch, "id = ?", id).Error)
	return ch
}
