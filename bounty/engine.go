// bounty/engine.go
package bounty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bounty-challenge-system/metrics"
)

const DefaultConcurrency = 8

type EngineConfig struct {
	Logger  *slog.Logger
	Store   Store
	Settler Settler

	// AdminWallet receives the platform commission and any leftovers.
	AdminWallet   string
	// TokenDecimals has no default; a token with fewer than two decimals
	// cannot carry cent amounts.
	TokenDecimals int32
	Concurrency   int
	Clock         clockwork.Clock
}

func (cfg *EngineConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Settler == nil {
		return errors.New("settler is required")
	}
	if _, err := ChecksumWallet(cfg.AdminWallet); err != nil {
		return fmt.Errorf("admin wallet: %w", err)
	}
	if cfg.TokenDecimals < moneyPlaces {
		return fmt.Errorf("%w: %d", ErrTokenPrecision, cfg.TokenDecimals)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Engine turns a finished challenge into a settled payment manifest.
type Engine struct {
	log *slog.Logger
	cfg EngineConfig

	// running holds the ids of challenges with a Run in flight.
	running sync.Map
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{log: cfg.Logger, cfg: cfg}, nil
}

// Result describes one distribution, settled or previewed.
type Result struct {
	ChallengeID           string             `json:"challenge_id"`
	Status                ChallengeStatus    `json:"status"`
	Regime                string             `json:"regime,omitempty"`
	BountyOffered         decimal.Decimal    `json:"bounty_offered"`
	PlatformCut           decimal.Decimal    `json:"platform_cut"`
	BountyAfterCommission decimal.Decimal    `json:"bounty_after_commission"`
	PlatformCommission    decimal.Decimal    `json:"platform_commission"`
	BountyRemaining       decimal.Decimal    `json:"bounty_remaining"`
	CommissionBalance     decimal.Decimal    `json:"commission_balance"`
	Shares                []ParticipantShare `json:"shares"`
	Commissions           []CommissionDetail `json:"commissions"`
	Manifest              Manifest           `json:"manifest"`
	Payouts               []Payout           `json:"payouts"`
	IdempotencyKey        string             `json:"idempotency_key"`
	TxHash                string             `json:"tx_hash,omitempty"`
}

// Run computes and settles the distribution for a challenge. Nothing is recorded
// and the status is left as is unless settlement succeeds.
// A second Run for a challenge that is already settling fails with
// ErrSettlementInProgress.
func (e *Engine) Run(ctx context.Context, challengeID string) (*Result, error) {
	if _, busy := e.running.LoadOrStore(challengeID, struct{}{}); busy {
		e.log.Warn("engine: distribution already running", "challenge_id", challengeID)
		return nil, fmt.Errorf("%w: %s", ErrSettlementInProgress, challengeID)
	}
	defer e.running.Delete(challengeID)

	start := e.cfg.Clock.Now()
	res, err := e.run(ctx, challengeID)
	metrics.DistributionRunDuration.Observe(e.cfg.Clock.Since(start).Seconds())
	if err != nil {
		metrics.DistributionRunsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		e.log.Error("engine: distribution failed", "challenge_id", challengeID, "error", err)
		return nil, err
	}
	metrics.DistributionRunsTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.ManifestEntries.Observe(float64(len(res.Payouts)))
	if f, _ := res.Manifest.Total().Float64(); f > 0 {
		metrics.SettledAmountTotal.Add(f)
	}
	e.log.Info("engine: distribution settled",
		"challenge_id", challengeID,
		"status", res.Status,
		"amount", FormatUSD(res.Manifest.Total()),
		"wallets", len(res.Payouts),
		"tx_hash", res.TxHash)
	return res, nil
}

// Preview computes the manifest a Run would settle, without persisting anything.
func (e *Engine) Preview(ctx context.Context, challengeID string) (*Result, error) {
	ch, err := e.loadSettleable(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	totals, err := e.cfg.Store.GetParticipantTotals(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("load participant totals: %w", err)
	}
	if len(totals.Participants) == 0 {
		return e.refund(ch)
	}

	res, alloc, err := e.allocate(ch, totals)
	if err != nil {
		return nil, err
	}
	if err := e.distribute(ctx, res, alloc.Shares); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) run(ctx context.Context, challengeID string) (*Result, error) {
	ch, err := e.loadSettleable(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	totals, err := e.cfg.Store.GetParticipantTotals(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("load participant totals: %w", err)
	}

	if len(totals.Participants) == 0 {
		e.log.Info("engine: no participants, refunding funder", "challenge_id", challengeID, "wallet", ch.FunderWallet)
		res, err := e.refund(ch)
		if err != nil {
			return nil, err
		}
		return res, e.settle(ctx, res, nil)
	}

	res, alloc, err := e.allocate(ch, totals)
	if err != nil {
		return nil, err
	}
	for _, s := range alloc.Shares {
		share := s.Share
		if err := e.cfg.Store.UpdateParticipant(ctx, s.ParticipantID, ParticipantUpdate{BountyReceived: &share}); err != nil {
			return nil, fmt.Errorf("persist share for participant %s: %w", s.ParticipantID, err)
		}
	}

	// Shares are taken from the store after the write so the manifest matches
	// what is recorded.
	reloaded, err := e.cfg.Store.GetParticipantTotals(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("reload participant totals: %w", err)
	}
	shares := make([]ParticipantShare, 0, len(reloaded.Participants))
	for _, p := range reloaded.Participants {
		shares = append(shares, ParticipantShare{
			ParticipantID: p.ParticipantID,
			UserID:        p.UserID,
			Wallet:        p.Wallet,
			Share:         p.BountyReceived,
		})
	}

	if err := e.distribute(ctx, res, shares); err != nil {
		return nil, err
	}
	return res, e.settle(ctx, res, shares)
}

func (e *Engine) loadSettleable(ctx context.Context, challengeID string) (*Challenge, error) {
	ch, err := e.cfg.Store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: %s", ErrChallengeNotFound, challengeID)
	}
	if ch.Status != StatusStarted || !ch.Funded {
		return nil, fmt.Errorf("%w: status=%s funded=%t", ErrNotSettleable, ch.Status, ch.Funded)
	}
	return ch, nil
}

// refund builds the single-entry manifest that returns the whole bounty to the funder.
func (e *Engine) refund(ch *Challenge) (*Result, error) {
	manifest, err := MergeCredits([]Credit{{Wallet: ch.FunderWallet, Amount: ch.BountyOffered, Kind: CreditRefund}})
	if err != nil {
		return nil, err
	}
	res := &Result{
		ChallengeID:           ch.ID,
		Status:                StatusCancelled,
		BountyOffered:         ch.BountyOffered,
		PlatformCut:           decimal.Zero,
		BountyAfterCommission: decimal.Zero,
		PlatformCommission:    decimal.Zero,
		BountyRemaining:       decimal.Zero,
		CommissionBalance:     decimal.Zero,
		Shares:                []ParticipantShare{},
		Commissions:           []CommissionDetail{},
		Manifest:              manifest,
	}
	if err := e.finalize(res); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) allocate(ch *Challenge, totals *ParticipantTotals) (*Result, Allocation, error) {
	cut, after := SplitPlatformCut(ch.BountyOffered)
	alloc := Allocate(after, totals.Participants, totals.GrandTotal)
	e.log.Debug("engine: allocated",
		"challenge_id", ch.ID,
		"regime", alloc.Regime.String(),
		"participants", len(alloc.Shares),
		"pool", FormatUSD(after),
		"allocated_pct", percentOf(alloc.Total, after).String())

	return &Result{
		ChallengeID:           ch.ID,
		Status:                StatusCompleted,
		Regime:                alloc.Regime.String(),
		BountyOffered:         ch.BountyOffered,
		PlatformCut:           cut,
		BountyAfterCommission: after,
	}, alloc, nil
}

// distribute resolves commissions, computes the leftovers and builds the manifest.
func (e *Engine) distribute(ctx context.Context, res *Result, shares []ParticipantShare) error {
	details, err := e.resolveCommissions(ctx, shares)
	if err != nil {
		return err
	}

	platformCommission, err := PlatformCommission(res.BountyAfterCommission)
	if err != nil {
		return err
	}

	credits := make([]Credit, 0, len(shares)+2*len(details)+3)
	sumShares := decimal.Zero
	for _, s := range shares {
		sumShares = sumShares.Add(s.Share)
		credits = append(credits, Credit{Wallet: s.Wallet, Amount: s.Share, Kind: CreditParticipant})
	}
	paidCommissions := platformCommission
	for _, d := range details {
		paidCommissions = paidCommissions.Add(d.AgencyAmount).Add(d.IntroducerAmount)
		credits = append(credits, Credit{Wallet: d.AgencyWallet, Amount: d.AgencyAmount, Kind: CreditAgency})
		if d.IntroducerWallet != "" {
			credits = append(credits, Credit{Wallet: d.IntroducerWallet, Amount: d.IntroducerAmount, Kind: CreditIntroducer})
		}
	}

	res.Shares = shares
	res.Commissions = details
	res.PlatformCommission = platformCommission
	res.BountyRemaining = res.BountyAfterCommission.Sub(sumShares)
	res.CommissionBalance = res.PlatformCut.Sub(paidCommissions)

	credits = append(credits,
		Credit{Wallet: e.cfg.AdminWallet, Amount: platformCommission, Kind: CreditPlatform},
		Credit{Wallet: e.cfg.AdminWallet, Amount: res.BountyRemaining, Kind: CreditRemainder},
		Credit{Wallet: e.cfg.AdminWallet, Amount: res.CommissionBalance, Kind: CreditBalance},
	)

	res.Manifest, err = MergeCredits(credits)
	if err != nil {
		return err
	}
	return e.finalize(res)
}

// resolveCommissions fans out agency resolution per participant. Results land in
// per-index slots and are read only after Wait.
func (e *Engine) resolveCommissions(ctx context.Context, shares []ParticipantShare) ([]CommissionDetail, error) {
	slots := make([]*CommissionDetail, len(shares))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, s := range shares {
		g.Go(func() error {
			detail, err := e.commissionFor(gctx, s)
			if err != nil {
				return err
			}
			slots[i] = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	details := make([]CommissionDetail, 0, len(slots))
	for _, d := range slots {
		if d != nil {
			details = append(details, *d)
		}
	}
	return details, nil
}

// commissionFor returns nil when the participant earns nobody a commission.
func (e *Engine) commissionFor(ctx context.Context, s ParticipantShare) (*CommissionDetail, error) {
	chain, err := e.cfg.Store.ResolveAgencyChain(ctx, s.UserID)
	if errors.Is(err, ErrBrokenReferralChain) {
		e.log.Warn("engine: broken referral chain, paying without agency", "user_id", s.UserID, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve agency chain for user %s: %w", s.UserID, err)
	}

	agency := chain.Agency
	if agency == nil {
		return nil, nil
	}
	if !agency.CommissionEligible {
		e.log.Debug("engine: agency not commission eligible", "user_id", s.UserID, "agency", agency.Name)
		return nil, nil
	}
	introducer := chain.IntroducingAgency
	if introducer != nil && !introducer.CommissionEligible {
		introducer = nil
	}

	agencyAmount, introducerAmount, err := AgencyCommission(s.Share, introducer != nil)
	if err != nil {
		return nil, fmt.Errorf("agency commission for participant %s: %w", s.ParticipantID, err)
	}
	detail := &CommissionDetail{
		ParticipantID:    s.ParticipantID,
		Share:            s.Share,
		AgencyWallet:     agency.Wallet,
		AgencyAmount:     agencyAmount,
		IntroducerAmount: decimal.Zero,
	}
	if introducer != nil {
		detail.IntroducerWallet = introducer.Wallet
		detail.IntroducerAmount = introducerAmount
	}
	return detail, nil
}

// finalize checks the manifest reconciles with the offered bounty and converts it
// into payouts.
func (e *Engine) finalize(res *Result) error {
	if total := res.Manifest.Total(); !total.Equal(res.BountyOffered) {
		return fmt.Errorf("manifest total %s does not match bounty offered %s", total, res.BountyOffered)
	}
	payouts, err := BuildPayouts(res.Manifest, e.cfg.TokenDecimals)
	if err != nil {
		return err
	}
	res.Payouts = payouts
	res.IdempotencyKey = IdempotencyKey(res.ChallengeID, payouts)
	return nil
}

func (e *Engine) settle(ctx context.Context, res *Result, shares []ParticipantShare) error {
	if len(res.Payouts) > 0 {
		receipt, err := e.cfg.Settler.Settle(ctx, SettlementRequest{
			ChallengeID:    res.ChallengeID,
			IdempotencyKey: res.IdempotencyKey,
			Payouts:        res.Payouts,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSettlementFailed, err)
		}
		res.TxHash = receipt.TxHash
	}

	rec := SettlementRecord{
		ChallengeID:    res.ChallengeID,
		TxHash:         res.TxHash,
		IdempotencyKey: res.IdempotencyKey,
		FinalStatus:    res.Status,
		Payouts:        res.Payouts,
		Commissions:    res.Commissions,
		Shares:         shares,
		SettledAt:      e.cfg.Clock.Now().UTC(),
	}
	if err := e.cfg.Store.RecordSettlement(ctx, rec); err != nil {
		return fmt.Errorf("record settlement (tx %s): %w", res.TxHash, err)
	}
	if err := e.cfg.Store.SetChallengeStatus(ctx, res.ChallengeID, res.Status); err != nil {
		return fmt.Errorf("set challenge status %s: %w", res.Status, err)
	}
	return nil
}
