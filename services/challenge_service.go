// services/challenge_service.go
package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gookit/validate"
	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/middleware"
	"bounty-challenge-system/models"
)

type ChallengeService struct {
	DB     *gorm.DB
	Store  *ChallengeStore
	Engine *bounty.Engine
	Log    *slog.Logger
	Clock  clockwork.Clock
}

func NewChallengeService(store *ChallengeStore, engine *bounty.Engine, log *slog.Logger) *ChallengeService {
	return &ChallengeService{DB: store.DB, Store: store, Engine: engine, Log: log, Clock: store.Clock}
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, bounty.ErrChallengeNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, bounty.ErrInvalidWallet),
		errors.Is(err, bounty.ErrUnknownPlatform),
		errors.Is(err, bounty.ErrNegativeMetric):
		return fiber.StatusBadRequest
	case errors.Is(err, bounty.ErrNotSettleable),
		errors.Is(err, bounty.ErrInvalidTransition),
		errors.Is(err, bounty.ErrPoolOverdrawn),
		errors.Is(err, bounty.ErrBrokenReferralChain),
		errors.Is(err, bounty.ErrSettlementInProgress):
		return fiber.StatusConflict
	case errors.Is(err, bounty.ErrSettlementFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

// NormalizeHashtag folds a hashtag to lower-case ASCII without '#' or spaces.
func NormalizeHashtag(tag string) string {
	tag = strings.ToLower(unidecode.Unidecode(tag))
	return strings.Map(func(r rune) rune {
		switch {
		case r == '#', r == ' ', r == '\t':
			return -1
		}
		return r
	}, tag)
}

type createChallengeRequest struct {
	Title         string          `json:"title" validate:"required|minLen:3|maxLen:120"`
	Description   string          `json:"description" validate:"maxLen:5000"`
	Hashtag       string          `json:"hashtag" validate:"required"`
	Platforms     []string        `json:"platforms" validate:"required|minLen:1"`
	BountyOffered decimal.Decimal `json:"bounty_offered"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
}

// CreateChallenge creates a challenge owned by the calling brand.
func (s *ChallengeService) CreateChallenge(c *fiber.Ctx) error {
	var req createChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if v := validate.Struct(&req); !v.Validate() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": v.Errors.One()})
	}
	if !req.BountyOffered.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bounty_offered must be positive"})
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "start_date and end_date are required"})
	}
	if !req.EndDate.After(req.StartDate) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_date must be after start_date"})
	}

	platforms := make([]string, 0, len(req.Platforms))
	for _, raw := range req.Platforms {
		p, err := bounty.ParsePlatform(raw)
		if err != nil {
			return errorJSON(c, err)
		}
		platforms = append(platforms, string(p))
	}

	hashtag := NormalizeHashtag(req.Hashtag)
	if hashtag == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "hashtag must not be empty"})
	}

	ch := &models.Challenge{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		BrandUserID:   middleware.UserID(c),
		Hashtag:       hashtag,
		Platforms:     strings.Join(platforms, ","),
		Status:        bounty.StatusCreated,
		BountyOffered: req.BountyOffered.Round(2),
		StartDate:     req.StartDate.UTC(),
		EndDate:       req.EndDate.UTC(),
	}

	var err error
	if ch.Slug, err = s.uniqueSlug(ch.Title); err != nil {
		s.Log.Error("challenges: slug lookup failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if err := s.DB.WithContext(c.UserContext()).Create(ch).Error; err != nil {
		s.Log.Error("challenges: create failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create challenge"})
	}

	s.Log.Info("challenges: created", "challenge_id", ch.ID, "slug", ch.Slug, "bounty", bounty.FormatUSD(ch.BountyOffered))
	return c.Status(fiber.StatusCreated).JSON(ch)
}

func (s *ChallengeService) uniqueSlug(title string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "challenge"
	}
	var count int64
	if err := s.DB.Unscoped().Model(&models.Challenge{}).Where("slug = ?", base).Count(&count).Error; err != nil {
		return "", err
	}
	if count == 0 {
		return base, nil
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// GetChallenge returns one challenge with its active participant count.
func (s *ChallengeService) GetChallenge(c *fiber.Ctx) error {
	ch, err := s.loadChallenge(c)
	if err != nil {
		return errorJSON(c, err)
	}
	if err := s.DB.Model(&models.Participant{}).
		Where("challenge_id = ? AND is_active = ?", ch.ID, true).
		Count(&ch.ParticipantsCount).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(ch)
}

// ListParticipants lists every participant with their latest metric snapshots.
func (s *ChallengeService) ListParticipants(c *fiber.Ctx) error {
	ch, err := s.loadChallenge(c)
	if err != nil {
		return errorJSON(c, err)
	}
	var participants []models.Participant
	if err := s.DB.Preload("Metrics").
		Where("challenge_id = ?", ch.ID).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(fiber.Map{"participants": participants, "count": len(participants)})
}

func (s *ChallengeService) loadChallenge(c *fiber.Ctx) (*models.Challenge, error) {
	id := c.Params("id")
	var ch models.Challenge
	if err := s.DB.WithContext(c.UserContext()).First(&ch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", bounty.ErrChallengeNotFound, id)
		}
		return nil, err
	}
	return &ch, nil
}

// FundChallenge records the brand's escrow deposit.
func (s *ChallengeService) FundChallenge(c *fiber.Ctx) error {
	var req struct {
		Wallet string `json:"wallet" validate:"required"`
		TxHash string `json:"tx_hash" validate:"required|regex:^0x[0-9a-fA-F]{64}$"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if v := validate.Struct(&req); !v.Validate() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": v.Errors.One()})
	}
	wallet, err := bounty.ChecksumWallet(req.Wallet)
	if err != nil {
		return errorJSON(c, err)
	}

	ch, err := s.loadChallenge(c)
	if err != nil {
		return errorJSON(c, err)
	}
	if ch.BrandUserID != middleware.UserID(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only the challenge creator can fund it"})
	}
	if ch.Funded {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "challenge already funded"})
	}
	if ch.Status != bounty.StatusCreated && ch.Status != bounty.StatusStarted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": fmt.Sprintf("cannot fund a %s challenge", ch.Status)})
	}

	now := s.Clock.Now().UTC()
	res := s.DB.Model(&models.Challenge{}).
		Where("id = ? AND funded = ?", ch.ID, false).
		Updates(map[string]any{
			"funded":          true,
			"funder_wallet":   wallet,
			"funding_tx_hash": strings.ToLower(req.TxHash),
			"funded_at":       &now,
		})
	if res.Error != nil {
		s.Log.Error("challenges: fund failed", "challenge_id", ch.ID, "error", res.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fund challenge"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "challenge already funded"})
	}

	s.Log.Info("challenges: funded", "challenge_id", ch.ID, "wallet", wallet)
	return c.JSON(fiber.Map{"message": "Challenge funded", "challenge_id": ch.ID, "funder_wallet": wallet})
}

// JoinChallenge enrols the caller. The wallet falls back to the mirrored influencer wallet.
func (s *ChallengeService) JoinChallenge(c *fiber.Ctx) error {
	var req struct {
		Wallet       string `json:"wallet"`
		SocialHandle string `json:"social_handle" validate:"required|maxLen:64"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if v := validate.Struct(&req); !v.Validate() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": v.Errors.One()})
	}
	userID := middleware.UserID(c)

	ch, err := s.loadChallenge(c)
	if err != nil {
		return errorJSON(c, err)
	}
	now := s.Clock.Now()
	if ch.Status != bounty.StatusCreated && ch.Status != bounty.StatusStarted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": fmt.Sprintf("cannot join a %s challenge", ch.Status)})
	}
	if !now.Before(ch.EndDate) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "challenge has ended"})
	}

	walletIn := req.Wallet
	if walletIn == "" {
		var inf models.Influencer
		if err := s.DB.Where("external_user_id = ?", userID).First(&inf).Error; err == nil {
			walletIn = inf.Wallet
		}
	}
	if walletIn == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "a payout wallet is required"})
	}
	wallet, err := bounty.ChecksumWallet(walletIn)
	if err != nil {
		return errorJSON(c, err)
	}

	var existing int64
	if err := s.DB.Model(&models.Participant{}).
		Where("challenge_id = ? AND user_id = ?", ch.ID, userID).
		Count(&existing).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already joined"})
	}

	p := &models.Participant{
		ChallengeID:    ch.ID,
		UserID:         userID,
		Wallet:         wallet,
		SocialHandle:   strings.TrimSpace(req.SocialHandle),
		BountyReceived: decimal.Zero,
		IsActive:       true,
		JoinedAt:       now.UTC(),
	}
	if err := s.DB.Create(p).Error; err != nil {
		s.Log.Error("challenges: join failed", "challenge_id", ch.ID, "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to join challenge"})
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// CancelChallenge lets the creator withdraw a challenge that has not started.
func (s *ChallengeService) CancelChallenge(c *fiber.Ctx) error {
	ch, err := s.loadChallenge(c)
	if err != nil {
		return errorJSON(c, err)
	}
	if ch.BrandUserID != middleware.UserID(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only the challenge creator can cancel it"})
	}
	if ch.Status != bounty.StatusCreated {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": fmt.Sprintf("cannot cancel a %s challenge", ch.Status)})
	}
	if err := s.Store.SetChallengeStatus(c.UserContext(), ch.ID, bounty.StatusCancelled); err != nil {
		return errorJSON(c, err)
	}
	s.Log.Info("challenges: cancelled by creator", "challenge_id", ch.ID)
	return c.JSON(fiber.Map{"message": "Challenge cancelled", "challenge_id": ch.ID})
}

// --- Admin Handlers ---

// PreviewManifest computes the distribution without settling anything.
func (s *ChallengeService) PreviewManifest(c *fiber.Ctx) error {
	res, err := s.Engine.Preview(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(res)
}

// SettleNow runs the distribution immediately instead of waiting for the job.
func (s *ChallengeService) SettleNow(c *fiber.Ctx) error {
	id := c.Params("id")
	res, err := s.Engine.Run(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, bounty.ErrSettlementFailed) {
			if recErr := s.Store.RecordSettlementFailure(c.UserContext(), id, err); recErr != nil {
				s.Log.Error("challenges: record settlement failure", "challenge_id", id, "error", recErr)
			}
		}
		return errorJSON(c, err)
	}
	return c.JSON(res)
}
