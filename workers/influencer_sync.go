// workers/influencer_sync.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bounty-challenge-system/models"
	"bounty-challenge-system/utils"
)

// MirroredProfile matches the JSON response from the sync service.
type MirroredProfile struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	AccountStatus string    `json:"account_status"`
	AgencyID      *string   `json:"agency_id,omitempty"` // referral link to a talent agency
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []MirroredProfile `json:"users"`
}

// InfluencerSync mirrors influencer profiles and their agency links.
type InfluencerSync struct {
	db           *gorm.DB
	log          *slog.Logger
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewInfluencerSync(db *gorm.DB, log *slog.Logger, baseURL, serviceToken string) *InfluencerSync {
	return &InfluencerSync{
		db:           db,
		log:          log,
		baseURL:      baseURL,
		endpointPath: "/api/v1/public/profiles",
		serviceToken: serviceToken,
		httpClient:   utils.NewHTTPClient(30 * time.Second),
	}
}

// Run pulls every profile changed since the newest local mirror.
func (w *InfluencerSync) Run(ctx context.Context) error {
	return w.syncBatch(ctx, w.lastSyncTime(ctx))
}

// lastSyncTime is the newest mirrored update, or the zero time to backfill.
func (w *InfluencerSync) lastSyncTime(ctx context.Context) time.Time {
	var latest models.Influencer
	err := w.db.WithContext(ctx).Unscoped().Order("updated_at DESC").Limit(1).Take(&latest).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			w.log.Warn("sync: failed to read last influencer update", "error", err)
		}
		return time.Time{}
	}
	return latest.UpdatedAt
}

func (w *InfluencerSync) syncBatch(ctx context.Context, since time.Time) error {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base sync service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", endpointURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer utils.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync service non-200 response: %d: %s", resp.StatusCode, utils.ReadErrorBody(resp))
	}

	var response profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode sync service response: %w", err)
	}
	if len(response.Users) == 0 {
		w.log.Debug("sync: no profile changes", "since", since)
		return nil
	}

	var upserted, failed int
	for _, remote := range response.Users {
		local := models.Influencer{
			ExternalUserID: remote.ExternalID,
			Username:       remote.Username,
			Email:          remote.Email,
			AgencyID:       remote.AgencyID,
			CreatedAt:      remote.CreatedAt,
			UpdatedAt:      remote.UpdatedAt,
		}
		if remote.AccountStatus == "deactivated" || remote.AccountStatus == "suspended" {
			local.DeletedAt = gorm.DeletedAt{Time: remote.UpdatedAt, Valid: true}
		}

		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "email", "agency_id", "updated_at", "deleted_at",
			}),
		}).Create(&local).Error; err != nil {
			failed++
			w.log.Warn("sync: failed to upsert influencer", "external_id", remote.ExternalID, "error", err)
			continue
		}
		upserted++
	}

	w.log.Info("sync: influencers mirrored", "received", len(response.Users), "upserted", upserted, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("failed to upsert %d of %d influencer(s)", failed, len(response.Users))
	}
	return nil
}
