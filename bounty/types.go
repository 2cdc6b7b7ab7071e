// bounty/types.go
package bounty

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeMetric      = errors.New("metric count must not be negative")
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrNotSettleable       = errors.New("challenge is not ready for settlement")
	ErrBrokenReferralChain = errors.New("broken referral chain")
	ErrPoolOverdrawn       = errors.New("distribution exceeds funded bounty")
	ErrInvalidWallet       = errors.New("invalid wallet address")
	ErrSettlementFailed    = errors.New("settlement failed")
	ErrInvalidTransition   = errors.New("invalid challenge status transition")
	ErrUnknownPlatform     = errors.New("unknown platform")
	ErrTokenPrecision      = errors.New("token decimals below cent precision")

	ErrSettlementInProgress = errors.New("settlement already in progress")
)

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

const (
	StatusCreated   ChallengeStatus = "created"
	StatusStarted   ChallengeStatus = "started"
	StatusCompleted ChallengeStatus = "completed"
	StatusCancelled ChallengeStatus = "cancelled"
)

var transitions = map[ChallengeStatus][]ChallengeStatus{
	StatusCreated: {StatusStarted, StatusCancelled},
	StatusStarted: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether a challenge may move from one status to another.
func CanTransition(from, to ChallengeStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Challenge is the engine's view of a funded challenge.
type Challenge struct {
	ID            string
	BountyOffered decimal.Decimal
	Status        ChallengeStatus
	Funded        bool
	FunderWallet  string
	StartDate     time.Time
	EndDate       time.Time
}

// ParticipantTotal is one participant's aggregate across all platforms.
type ParticipantTotal struct {
	ParticipantID  string
	UserID         string
	Wallet         string
	RawTotal       decimal.Decimal // sum of raw metric counts
	InitialBounty  decimal.Decimal // sum of per-metric prices
	BountyReceived decimal.Decimal
}

// ParticipantTotals is the result of the participant aggregation for one challenge.
type ParticipantTotals struct {
	Participants []ParticipantTotal
	GrandTotal   decimal.Decimal
}

// ParticipantUpdate is a partial update; nil fields are left untouched.
type ParticipantUpdate struct {
	BountyReceived *decimal.Decimal
	IsActive       *bool
}

// Agency is one referring entity in a participant's chain.
type Agency struct {
	ID                 string
	Name               string
	Wallet             string
	CommissionEligible bool
}

// AgencyChain is the resolved referral chain, at most two levels deep.
type AgencyChain struct {
	Agency            *Agency
	IntroducingAgency *Agency
}

// CommissionDetail records the commissions earned on one participant's share.
type CommissionDetail struct {
	ParticipantID    string
	Share            decimal.Decimal
	AgencyWallet     string
	AgencyAmount     decimal.Decimal
	IntroducerWallet string
	IntroducerAmount decimal.Decimal
}

// Payout is a settlement-ready manifest entry.
type Payout struct {
	Wallet    string          `json:"wallet"`
	Amount    decimal.Decimal `json:"amount"`
	BaseUnits string          `json:"base_units"`
}

// SettlementRequest is what the engine hands to the settlement adapter.
type SettlementRequest struct {
	ChallengeID    string   `json:"challenge_id"`
	IdempotencyKey string   `json:"idempotency_key"`
	Payouts        []Payout `json:"payouts"`
}

// SettlementReceipt is the adapter's result for a successful transfer.
type SettlementReceipt struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

// SettlementRecord is persisted after a successful settlement.
type SettlementRecord struct {
	ChallengeID    string
	TxHash         string
	IdempotencyKey string
	FinalStatus    ChallengeStatus
	Payouts        []Payout
	Commissions    []CommissionDetail
	Shares         []ParticipantShare
	SettledAt      time.Time
}

// Store is the data-access collaborator used by the engine.
type Store interface {
	GetChallenge(ctx context.Context, id string) (*Challenge, error)
	GetParticipantTotals(ctx context.Context, challengeID string) (*ParticipantTotals, error)
	UpdateParticipant(ctx context.Context, participantID string, upd ParticipantUpdate) error
	SetChallengeStatus(ctx context.Context, id string, status ChallengeStatus) error
	ResolveAgencyChain(ctx context.Context, userID string) (AgencyChain, error)
	RecordSettlement(ctx context.Context, rec SettlementRecord) error
}

// Settler executes a payment manifest on-chain.
type Settler interface {
	Settle(ctx context.Context, req SettlementRequest) (*SettlementReceipt, error)
}
