// services/agency_service.go
package services

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gookit/validate"
	"gorm.io/gorm"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/models"
)

// AgencyService manages agencies and the influencer -> agency referral links
// that drive commission payouts.
type AgencyService struct {
	DB  *gorm.DB
	Log *slog.Logger
}

func NewAgencyService(db *gorm.DB, log *slog.Logger) *AgencyService {
	return &AgencyService{DB: db, Log: log}
}

// CreateAgency registers an agency (Admin only)
func (s *AgencyService) CreateAgency(c *fiber.Ctx) error {
	var req struct {
		Name                string  `json:"name" validate:"required|minLen:2|maxLen:120"`
		Wallet              string  `json:"wallet" validate:"required"`
		CommissionEligible  *bool   `json:"commission_eligible"`
		IntroducingAgencyID *string `json:"introducing_agency_id"`
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

	agency := &models.Agency{
		Name:               strings.TrimSpace(req.Name),
		Wallet:             wallet,
		CommissionEligible: true,
	}
	if req.CommissionEligible != nil {
		agency.CommissionEligible = *req.CommissionEligible
	}

	if req.IntroducingAgencyID != nil && *req.IntroducingAgencyID != "" {
		var introducer models.Agency
		if err := s.DB.First(&introducer, "id = ?", *req.IntroducingAgencyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "introducing agency not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		agency.IntroducingAgencyID = &introducer.ID
	}

	var dup int64
	if err := s.DB.Model(&models.Agency{}).Where("name = ?", agency.Name).Count(&dup).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if dup > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "agency name already taken"})
	}

	if err := s.DB.Create(agency).Error; err != nil {
		s.Log.Error("agencies: create failed", "name", agency.Name, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create agency"})
	}
	s.Log.Info("agencies: created", "agency_id", agency.ID, "eligible", agency.CommissionEligible)
	return c.Status(fiber.StatusCreated).JSON(agency)
}

// SetInfluencerAgency links (or with a null agency_id, unlinks) an influencer.
func (s *AgencyService) SetInfluencerAgency(c *fiber.Ctx) error {
	var req struct {
		AgencyID *string `json:"agency_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	userID := c.Params("user_id")
	var inf models.Influencer
	if err := s.DB.First(&inf, "external_user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Influencer not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var agencyID *string
	if req.AgencyID != nil && *req.AgencyID != "" {
		var agency models.Agency
		if err := s.DB.First(&agency, "id = ?", *req.AgencyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Agency not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		agencyID = &agency.ID
	}

	if err := s.DB.Model(&inf).Update("agency_id", agencyID).Error; err != nil {
		s.Log.Error("agencies: link influencer failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update influencer"})
	}
	inf.AgencyID = agencyID
	return c.JSON(inf)
}
