// workers/challenge_jobs.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/metrics"
	"bounty-challenge-system/models"
	"bounty-challenge-system/services"
	"bounty-challenge-system/utils"
)

// Distributor is implemented by *bounty.Engine.
type Distributor interface {
	Run(ctx context.Context, challengeID string) (*bounty.Result, error)
}

// ChallengeJobs moves challenges through their lifecycle on a schedule.
type ChallengeJobs struct {
	Store       *services.ChallengeStore
	Engine      Distributor
	Fetcher     services.MetricsFetcher
	Log         *slog.Logger
	Clock       clockwork.Clock
	MaxAttempts int
	Concurrency int
}

// ActivateDue starts created challenges whose start date has passed.
func (j *ChallengeJobs) ActivateDue(ctx context.Context) error {
	due, err := j.Store.ListDueForActivation(ctx, j.Clock.Now())
	if err != nil {
		return fmt.Errorf("list challenges due for activation: %w", err)
	}

	var errs []error
	for _, ch := range due {
		if err := j.Store.SetChallengeStatus(ctx, ch.ID, bounty.StatusStarted); err != nil {
			errs = append(errs, fmt.Errorf("activate %s: %w", ch.ID, err))
			continue
		}
		j.Log.Info("jobs: challenge started", "challenge_id", ch.ID, "slug", ch.Slug, "funded", ch.Funded)
	}
	return errors.Join(errs...)
}

// FetchMetrics refreshes every active participant's snapshots and running bounty.
// A failed fetch for one platform does not stop the others.
func (j *ChallengeJobs) FetchMetrics(ctx context.Context) error {
	challenges, err := j.Store.ActiveChallenges(ctx, j.Clock.Now())
	if err != nil {
		return fmt.Errorf("list active challenges: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency())
	for _, ch := range challenges {
		for _, p := range ch.Participants {
			g.Go(func() error {
				if err := j.refreshParticipant(gctx, &ch, &p); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (j *ChallengeJobs) concurrency() int {
	if j.Concurrency <= 0 {
		return bounty.DefaultConcurrency
	}
	return j.Concurrency
}

// refreshParticipant only returns store errors. Analytics failures and rejected
// snapshots are counted and logged.
func (j *ChallengeJobs) refreshParticipant(ctx context.Context, ch *models.Challenge, p *models.Participant) error {
	now := j.Clock.Now().UTC()
	var snapshots []models.ParticipantMetric

	for _, raw := range ch.PlatformList() {
		platform, err := bounty.ParsePlatform(string(raw))
		if err != nil {
			j.Log.Warn("jobs: skipping unknown platform", "challenge_id", ch.ID, "platform", raw)
			continue
		}

		m, err := j.Fetcher.FetchMetrics(ctx, services.MetricsQuery{
			Platform: platform,
			Handle:   p.SocialHandle,
			Hashtag:  ch.Hashtag,
			Since:    ch.StartDate,
			Until:    ch.EndDate,
		})
		if err != nil {
			metrics.MetricsFetchTotal.WithLabelValues(string(platform), metrics.OutcomeError).Inc()
			j.Log.Warn("jobs: metrics fetch failed", "participant_id", p.ID, "platform", platform, "error", err)
			continue
		}

		prices, err := bounty.PriceMetrics(platform, m)
		if err != nil {
			metrics.MetricsFetchTotal.WithLabelValues(string(platform), metrics.OutcomeSkipped).Inc()
			j.Log.Warn("jobs: rejected metrics snapshot", "participant_id", p.ID, "platform", platform, "error", err)
			continue
		}
		metrics.MetricsFetchTotal.WithLabelValues(string(platform), metrics.OutcomeSuccess).Inc()

		snapshots = append(snapshots, models.ParticipantMetric{
			Platform:        string(platform),
			Posts:           m.Posts,
			Likes:           m.Likes,
			Shares:          m.Shares,
			Comments:        m.Comments,
			Views:           m.Views,
			Impressions:     m.Impressions,
			EngagementRate:  m.EngagementRate,
			PostPrice:       prices.ByKind[bounty.MetricPost],
			LikePrice:       prices.ByKind[bounty.MetricLike],
			SharePrice:      prices.ByKind[bounty.MetricShare],
			CommentPrice:    prices.ByKind[bounty.MetricComment],
			ViewPrice:       prices.ByKind[bounty.MetricView],
			ImpressionPrice: prices.ByKind[bounty.MetricImpression],
			TotalPrice:      prices.Total,
			FetchedAt:       now,
		})
	}

	err := j.Store.UpsertParticipantMetrics(ctx, p.ID, snapshots)
	if errors.Is(err, services.ErrMetricsWindowClosed) {
		j.Log.Info("jobs: challenge closed during fetch, dropping snapshots", "challenge_id", ch.ID, "participant_id", p.ID)
		return nil
	}
	return err
}

// SettleDue settles challenges past their end date. Unfunded ones are cancelled;
// a failed run is recorded and retried on the next tick until attempts run out.
func (j *ChallengeJobs) SettleDue(ctx context.Context) error {
	due, err := j.Store.ListDueForSettlement(ctx, j.Clock.Now(), j.MaxAttempts)
	if err != nil {
		return fmt.Errorf("list challenges due for settlement: %w", err)
	}

	var errs []error
	for _, ch := range due {
		if !ch.Funded {
			if err := j.Store.SetChallengeStatus(ctx, ch.ID, bounty.StatusCancelled); err != nil {
				errs = append(errs, fmt.Errorf("cancel unfunded %s: %w", ch.ID, err))
				continue
			}
			j.Log.Info("jobs: unfunded challenge cancelled", "challenge_id", ch.ID)
			continue
		}

		res, err := j.Engine.Run(ctx, ch.ID)
		if errors.Is(err, bounty.ErrSettlementInProgress) {
			j.Log.Info("jobs: settlement already running, skipping", "challenge_id", ch.ID)
			continue
		}
		if err != nil {
			if recErr := j.Store.RecordSettlementFailure(ctx, ch.ID, err); recErr != nil {
				j.Log.Error("jobs: record settlement failure", "challenge_id", ch.ID, "error", recErr)
			}
			attempt := ch.SettlementAttempts + 1
			j.Log.Error("jobs: settlement failed", "challenge_id", ch.ID, "attempt", attempt, "max_attempts", j.MaxAttempts, "error", err)
			utils.ReportError(ctx, err, map[string]string{"job": "settlement", "challenge_id": ch.ID})
			errs = append(errs, fmt.Errorf("settle %s: %w", ch.ID, err))
			continue
		}
		j.Log.Info("jobs: challenge settled", "challenge_id", ch.ID, "status", res.Status, "tx_hash", res.TxHash)
	}
	return errors.Join(errs...)
}
