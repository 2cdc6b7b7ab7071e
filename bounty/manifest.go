package bounty

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// CreditKind tags where a credit came from. It does not affect merging.
type CreditKind string

const (
	CreditParticipant CreditKind = "participant"
	CreditAgency      CreditKind = "agency"
	CreditIntroducer  CreditKind = "introducing_agency"
	CreditPlatform    CreditKind = "platform_commission"
	CreditRemainder   CreditKind = "bounty_remaining"
	CreditBalance     CreditKind = "commission_balance"
	CreditRefund      CreditKind = "refund"
)

// Credit is one wallet -> amount instruction before merging.
type Credit struct {
	Wallet string
	Amount decimal.Decimal
	Kind   CreditKind
}

// ManifestEntry is a merged credit. Wallet keeps the form it was first seen in.
type ManifestEntry struct {
	Wallet string          `json:"wallet"`
	Amount decimal.Decimal `json:"amount"`
}

// Manifest is ordered by lower-cased wallet.
type Manifest []ManifestEntry

func (m Manifest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range m {
		total = total.Add(e.Amount)
	}
	return total
}

// MergeCredits sums credits per wallet, comparing addresses case-insensitively.
// A wallet that nets below zero fails the merge with ErrPoolOverdrawn. Wallets
// that net to exactly zero are dropped. The result does not depend on input order
// beyond the display form of each wallet.
func MergeCredits(credits []Credit) (Manifest, error) {
	type slot struct {
		wallet string
		amount decimal.Decimal
	}
	byKey := make(map[string]*slot, len(credits))
	for _, c := range credits {
		key := strings.ToLower(strings.TrimSpace(c.Wallet))
		s, ok := byKey[key]
		if !ok {
			s = &slot{wallet: strings.TrimSpace(c.Wallet), amount: decimal.Zero}
			byKey[key] = s
		}
		s.amount = s.amount.Add(c.Amount)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Manifest, 0, len(keys))
	for _, k := range keys {
		s := byKey[k]
		if s.amount.IsNegative() {
			return nil, fmt.Errorf("%w: wallet %q nets %s", ErrPoolOverdrawn, s.wallet, s.amount)
		}
		if s.amount.IsZero() {
			continue
		}
		out = append(out, ManifestEntry{Wallet: s.wallet, Amount: s.amount})
	}
	return out, nil
}

// ChecksumWallet returns the EIP-55 form of a hex address.
func ChecksumWallet(wallet string) (string, error) {
	w := strings.TrimSpace(wallet)
	if !common.IsHexAddress(w) {
		return "", fmt.Errorf("%w: %q", ErrInvalidWallet, wallet)
	}
	return common.HexToAddress(w).Hex(), nil
}

// ToBaseUnits converts a currency amount into the token's smallest denomination.
// Tokens with fewer decimals than a cent are rejected so no amount is truncated.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (string, error) {
	if decimals < moneyPlaces {
		return "", fmt.Errorf("%w: %d", ErrTokenPrecision, decimals)
	}
	return amount.Shift(decimals).Truncate(0).String(), nil
}

// BuildPayouts checksums every wallet and converts amounts to base units.
func BuildPayouts(m Manifest, decimals int32) ([]Payout, error) {
	payouts := make([]Payout, 0, len(m))
	for _, e := range m {
		wallet, err := ChecksumWallet(e.Wallet)
		if err != nil {
			return nil, err
		}
		units, err := ToBaseUnits(e.Amount, decimals)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, Payout{
			Wallet:    wallet,
			Amount:    e.Amount,
			BaseUnits: units,
		})
	}
	return payouts, nil
}

// IdempotencyKey is a keccak digest of the challenge and its payouts, so a
// retried settlement of the same manifest carries the same key.
func IdempotencyKey(challengeID string, payouts []Payout) string {
	var b strings.Builder
	b.WriteString(challengeID)
	for _, p := range payouts {
		b.WriteByte('|')
		b.WriteString(strings.ToLower(p.Wallet))
		b.WriteByte('=')
		b.WriteString(p.BaseUnits)
	}
	return crypto.Keccak256Hash([]byte(b.String())).Hex()
}
