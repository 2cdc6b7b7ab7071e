// services/challenge_store.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/models"
)

// ChallengeStore is the gorm-backed bounty.Store, plus the queries the jobs need.
type ChallengeStore struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

func NewChallengeStore(db *gorm.DB, clock clockwork.Clock) *ChallengeStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ChallengeStore{DB: db, Clock: clock}
}

var _ bounty.Store = (*ChallengeStore)(nil)

func (s *ChallengeStore) GetChallenge(ctx context.Context, id string) (*bounty.Challenge, error) {
	var ch models.Challenge
	if err := s.DB.WithContext(ctx).First(&ch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", bounty.ErrChallengeNotFound, id)
		}
		return nil, fmt.Errorf("load challenge %s: %w", id, err)
	}
	return ch.ToBounty(), nil
}

// GetParticipantTotals aggregates active participants' metric snapshots.
func (s *ChallengeStore) GetParticipantTotals(ctx context.Context, challengeID string) (*bounty.ParticipantTotals, error) {
	var participants []models.Participant
	if err := s.DB.WithContext(ctx).
		Preload("Metrics").
		Where("challenge_id = ? AND is_active = ?", challengeID, true).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("load participants for %s: %w", challengeID, err)
	}

	totals := &bounty.ParticipantTotals{
		Participants: make([]bounty.ParticipantTotal, 0, len(participants)),
		GrandTotal:   decimal.Zero,
	}
	for _, p := range participants {
		var raw int64
		initial := decimal.Zero
		for _, m := range p.Metrics {
			raw += m.RawTotal()
			initial = initial.Add(m.TotalPrice)
		}
		rawTotal := decimal.NewFromInt(raw)
		totals.Participants = append(totals.Participants, bounty.ParticipantTotal{
			ParticipantID:  p.ID,
			UserID:         p.UserID,
			Wallet:         p.Wallet,
			RawTotal:       rawTotal,
			InitialBounty:  initial,
			BountyReceived: p.BountyReceived,
		})
		totals.GrandTotal = totals.GrandTotal.Add(rawTotal)
	}
	return totals, nil
}

func (s *ChallengeStore) UpdateParticipant(ctx context.Context, participantID string, upd bounty.ParticipantUpdate) error {
	fields := map[string]any{}
	if upd.BountyReceived != nil {
		fields["bounty_received"] = *upd.BountyReceived
	}
	if upd.IsActive != nil {
		fields["is_active"] = *upd.IsActive
	}
	if len(fields) == 0 {
		return nil
	}

	res := s.DB.WithContext(ctx).Model(&models.Participant{}).Where("id = ?", participantID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update participant %s: %w", participantID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("participant %s not found", participantID)
	}
	return nil
}

// SetChallengeStatus moves a challenge along the status machine. Setting the
// status a challenge already has is a no-op so retried runs do not fail here.
func (s *ChallengeStore) SetChallengeStatus(ctx context.Context, id string, status bounty.ChallengeStatus) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ch models.Challenge
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ch, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", bounty.ErrChallengeNotFound, id)
			}
			return err
		}
		if ch.Status == status {
			return nil
		}
		if !bounty.CanTransition(ch.Status, status) {
			return fmt.Errorf("%w: %s -> %s", bounty.ErrInvalidTransition, ch.Status, status)
		}
		return tx.Model(&ch).Update("status", status).Error
	})
}

// ResolveAgencyChain walks influencer -> agency -> introducing agency. A user
// without an influencer profile or agency link has an empty chain; a link to a
// missing agency is a broken chain.
func (s *ChallengeStore) ResolveAgencyChain(ctx context.Context, userID string) (bounty.AgencyChain, error) {
	db := s.DB.WithContext(ctx)

	var influencer models.Influencer
	if err := db.Where("external_user_id = ?", userID).First(&influencer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bounty.AgencyChain{}, nil
		}
		return bounty.AgencyChain{}, fmt.Errorf("load influencer %s: %w", userID, err)
	}
	if influencer.AgencyID == nil || *influencer.AgencyID == "" {
		return bounty.AgencyChain{}, nil
	}

	agency, err := s.loadAgency(db, *influencer.AgencyID)
	if err != nil {
		return bounty.AgencyChain{}, err
	}
	chain := bounty.AgencyChain{Agency: toBountyAgency(agency)}

	if agency.IntroducingAgencyID == nil || *agency.IntroducingAgencyID == "" {
		return chain, nil
	}
	introducer, err := s.loadAgency(db, *agency.IntroducingAgencyID)
	if err != nil {
		return bounty.AgencyChain{}, err
	}
	chain.IntroducingAgency = toBountyAgency(introducer)
	return chain, nil
}

func (s *ChallengeStore) loadAgency(db *gorm.DB, id string) (*models.Agency, error) {
	var agency models.Agency
	if err := db.First(&agency, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: agency %s does not exist", bounty.ErrBrokenReferralChain, id)
		}
		return nil, fmt.Errorf("load agency %s: %w", id, err)
	}
	return &agency, nil
}

func toBountyAgency(a *models.Agency) *bounty.Agency {
	return &bounty.Agency{
		ID:                 a.ID,
		Name:               a.Name,
		Wallet:             a.Wallet,
		CommissionEligible: a.CommissionEligible,
	}
}

// RecordSettlement writes the audit trail and deactivates the challenge's
// participants in one transaction. Recording the same settlement twice is a no-op.
func (s *ChallengeStore) RecordSettlement(ctx context.Context, rec bounty.SettlementRecord) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Settlement
		err := tx.Where("challenge_id = ?", rec.ChallengeID).First(&existing).Error
		if err == nil {
			if existing.IdempotencyKey == rec.IdempotencyKey {
				return nil
			}
			return fmt.Errorf("challenge %s already settled with a different manifest", rec.ChallengeID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		total := decimal.Zero
		entries := make([]models.SettlementEntry, 0, len(rec.Payouts))
		for _, p := range rec.Payouts {
			total = total.Add(p.Amount)
			entries = append(entries, models.SettlementEntry{
				Wallet:    p.Wallet,
				Amount:    p.Amount,
				BaseUnits: p.BaseUnits,
			})
		}
		commissions := make([]models.CommissionRecord, 0, len(rec.Commissions))
		for _, c := range rec.Commissions {
			commissions = append(commissions, models.CommissionRecord{
				ChallengeID:      rec.ChallengeID,
				ParticipantID:    c.ParticipantID,
				Share:            c.Share,
				AgencyWallet:     c.AgencyWallet,
				AgencyAmount:     c.AgencyAmount,
				IntroducerWallet: c.IntroducerWallet,
				IntroducerAmount: c.IntroducerAmount,
			})
		}

		settlement := models.Settlement{
			ChallengeID:    rec.ChallengeID,
			TxHash:         rec.TxHash,
			IdempotencyKey: rec.IdempotencyKey,
			FinalStatus:    string(rec.FinalStatus),
			TotalAmount:    total,
			SettledAt:      rec.SettledAt,
			Entries:        entries,
			Commissions:    commissions,
		}
		if err := tx.Create(&settlement).Error; err != nil {
			return fmt.Errorf("create settlement: %w", err)
		}

		if err := tx.Model(&models.Participant{}).
			Where("challenge_id = ?", rec.ChallengeID).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivate participants: %w", err)
		}

		settledAt := rec.SettledAt
		return tx.Model(&models.Challenge{}).Where("id = ?", rec.ChallengeID).Updates(map[string]any{
			"settlement_tx_hash":    rec.TxHash,
			"settled_at":            &settledAt,
			"last_settlement_error": "",
		}).Error
	})
}

// --- job queries ---

// ListDueForActivation returns created challenges whose start date has passed.
func (s *ChallengeStore) ListDueForActivation(ctx context.Context, now time.Time) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := s.DB.WithContext(ctx).
		Where("status = ? AND start_date <= ?", bounty.StatusCreated, now.UTC()).
		Order("start_date ASC").
		Find(&challenges).Error
	return challenges, err
}

// ListDueForSettlement returns started challenges past their end date that
// still have settlement attempts left.
func (s *ChallengeStore) ListDueForSettlement(ctx context.Context, now time.Time, maxAttempts int) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := s.DB.WithContext(ctx).
		Where("status = ? AND end_date <= ? AND settlement_attempts < ?", bounty.StatusStarted, now.UTC(), maxAttempts).
		Order("end_date ASC").
		Find(&challenges).Error
	return challenges, err
}

func (s *ChallengeStore) RecordSettlementFailure(ctx context.Context, challengeID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.DB.WithContext(ctx).Model(&models.Challenge{}).Where("id = ?", challengeID).Updates(map[string]any{
		"settlement_attempts":   gorm.Expr("settlement_attempts + ?", 1),
		"last_settlement_error": msg,
	}).Error
}

// ErrMetricsWindowClosed is returned for participants whose challenge has ended
// or left the started state. Their bounty belongs to settlement from then on.
var ErrMetricsWindowClosed = errors.New("challenge no longer accepts metrics")

// ActiveChallenges returns started challenges that have not reached their end
// date, with their active participants.
func (s *ChallengeStore) ActiveChallenges(ctx context.Context, now time.Time) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := s.DB.WithContext(ctx).
		Preload("Participants", "is_active = ?", true).
		Where("status = ? AND end_date > ?", bounty.StatusStarted, now.UTC()).
		Find(&challenges).Error
	return challenges, err
}

// ActiveParticipants returns the active participants of one started challenge.
func (s *ChallengeStore) ActiveParticipants(ctx context.Context, challengeID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.DB.WithContext(ctx).
		Where("challenge_id = ? AND is_active = ?", challengeID, true).
		Order("joined_at ASC").
		Find(&participants).Error
	return participants, err
}

// UpsertParticipantMetrics stores the latest per-platform snapshots and resets
// the participant's running bounty to the priced sum across all platforms.
// Nothing is written once the challenge has ended.
func (s *ChallengeStore) UpsertParticipantMetrics(ctx context.Context, participantID string, snapshots []models.ParticipantMetric) error {
	if len(snapshots) == 0 {
		return nil
	}
	now := s.Clock.Now().UTC()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&models.Participant{}).
			Where("id = ? AND is_active = ?", participantID, true).
			Where("challenge_id IN (?)", s.DB.Model(&models.Challenge{}).
				Select("id").
				Where("status = ? AND end_date > ?", bounty.StatusStarted, now)).
			Count(&open).Error; err != nil {
			return fmt.Errorf("check metrics window for participant %s: %w", participantID, err)
		}
		if open == 0 {
			return fmt.Errorf("%w: participant %s", ErrMetricsWindowClosed, participantID)
		}

		for i := range snapshots {
			snapshots[i].ParticipantID = participantID
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "participant_id"}, {Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"posts", "likes", "shares", "comments", "views", "impressions", "engagement_rate",
				"post_price", "like_price", "share_price", "comment_price", "view_price", "impression_price",
				"total_price", "fetched_at", "updated_at",
			}),
		}).Create(&snapshots).Error; err != nil {
			return fmt.Errorf("upsert metrics for participant %s: %w", participantID, err)
		}

		var all []models.ParticipantMetric
		if err := tx.Where("participant_id = ?", participantID).Find(&all).Error; err != nil {
			return err
		}
		sum := decimal.Zero
		for _, m := range all {
			sum = sum.Add(m.TotalPrice)
		}
		return tx.Model(&models.Participant{}).Where("id = ?", participantID).Update("bounty_received", sum).Error
	})
}
