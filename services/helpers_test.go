package services

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
	walletC = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
	walletD = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
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

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedChallenge(t *testing.T, db *gorm.DB, mutate func(*models.Challenge)) *models.Challenge {
	t.Helper()
	ch := &models.Challenge{
		Slug:          "summer-glow",
		Title:         "Summer Glow",
		BrandUserID:   "brand-1",
		Hashtag:       "summerglow",
		Platforms:     "instagram,tiktok",
		Status:        bounty.StatusStarted,
		BountyOffered: dec("1000"),
		StartDate:     baseTime.Add(-48 * time.Hour),
		EndDate:       baseTime.Add(-time.Hour),
		Funded:        true,
		FunderWallet:  walletD,
	}
	if mutate != nil {
		mutate(ch)
	}
	require.NoError(t, db.Create(ch).Error)
	return ch
}

func seedParticipant(t *testing.T, db *gorm.DB, challengeID, userID, wallet string, joinedOffset time.Duration, metrics ...models.ParticipantMetric) *models.Participant {
	t.Helper()
	p := &models.Participant{
		ChallengeID:    challengeID,
		UserID:         userID,
		Wallet:         wallet,
		SocialHandle:   "@" + userID,
		BountyReceived: decimal.Zero,
		IsActive:       true,
		JoinedAt:       baseTime.Add(joinedOffset),
	}
	require.NoError(t, db.Create(p).Error)
	for i := range metrics {
		metrics[i].ParticipantID = p.ID
		metrics[i].FetchedAt = baseTime
		require.NoError(t, db.Create(&metrics[i]).Error)
	}
	return p
}

func strPtr(s string) *string {
	return &s
}
