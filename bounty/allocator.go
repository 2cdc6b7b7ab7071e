package bounty

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Regime says how the net pool was divided among participants.
type Regime int

const (
	// Undersubscribed: priced engagement fits in the pool, each participant
	// keeps their per-metric bounty.
	Undersubscribed Regime = iota
	// Oversubscribed: raw engagement exceeds the pool, shares are pro-rata.
	Oversubscribed
)

func (r Regime) String() string {
	if r == Oversubscribed {
		return "oversubscribed"
	}
	return "undersubscribed"
}

// ParticipantShare is the allocated share of one participant.
type ParticipantShare struct {
	ParticipantID string
	UserID        string
	Wallet        string
	Share         decimal.Decimal
}

type Allocation struct {
	Regime Regime
	Shares []ParticipantShare
	Total  decimal.Decimal
}

// SplitPlatformCut takes the 20% platform cut off the offered bounty.
// cut + after == offered exactly.
func SplitPlatformCut(bountyOffered decimal.Decimal) (cut, after decimal.Decimal) {
	cut = roundMoney(bountyOffered.Mul(platformCutRate))
	return cut, bountyOffered.Sub(cut)
}

// Allocate divides the net pool among participants.
//
// The regime compares the raw engagement total against the pool value, which
// mixes units (counts vs. money). That comparison is kept as is; payouts in
// the undersubscribed regime follow priced engagement, not raw counts.
func Allocate(afterCut decimal.Decimal, participants []ParticipantTotal, grandRawTotal decimal.Decimal) Allocation {
	alloc := Allocation{
		Regime: Undersubscribed,
		Shares: make([]ParticipantShare, 0, len(participants)),
		Total:  decimal.Zero,
	}
	if grandRawTotal.GreaterThan(afterCut) && grandRawTotal.IsPositive() {
		alloc.Regime = Oversubscribed
	}

	for _, p := range participants {
		var share decimal.Decimal
		switch alloc.Regime {
		case Oversubscribed:
			share = roundMoney(p.RawTotal.Mul(afterCut).Div(grandRawTotal))
		default:
			share = p.InitialBounty
		}
		alloc.Shares = append(alloc.Shares, ParticipantShare{
			ParticipantID: p.ParticipantID,
			UserID:        p.UserID,
			Wallet:        p.Wallet,
			Share:         share,
		})
		alloc.Total = alloc.Total.Add(share)
	}
	return alloc
}

// percentOf is used for log lines only.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}
