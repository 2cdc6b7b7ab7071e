package workers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/models"
	"bounty-challenge-system/utils"
)

// WalletSync mirrors wallet addresses from the sync service and copies each
// user's active payout wallet onto their influencer profile.
type WalletSync struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB

	log      *slog.Logger
	clock    clockwork.Clock
	lastSync time.Time
}

func NewWalletSync(db *gorm.DB, log *slog.Logger, clock clockwork.Clock, baseURL, token string) *WalletSync {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WalletSync{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.NewHTTPClient(30 * time.Second),
		DB:         db,
		log:        log,
		clock:      clock,
		lastSync:   clock.Now().UTC().Add(-24 * time.Hour),
	}
}

func (c *WalletSync) GetChangedWallets(ctx context.Context, since time.Time) ([]models.WalletMirror, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	u = u.JoinPath("/api/v1/public/wallets")
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer utils.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, utils.ReadErrorBody(resp))
	}

	var response struct {
		Wallets []models.WalletMirror `json:"wallets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Wallets, nil
}

// Run pulls wallet changes since the last successful poll. On failure the same
// window is retried next tick.
func (c *WalletSync) Run(ctx context.Context) error {
	pollTime := c.clock.Now().UTC()
	wallets, err := c.GetChangedWallets(ctx, c.lastSync)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		c.lastSync = pollTime
		return nil
	}

	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id", "chain", "token", "is_payout", "is_active", "updated_at",
			}),
		}).Create(&wallets).Error; err != nil {
			return fmt.Errorf("failed to upsert %d wallet(s): %w", len(wallets), err)
		}

		for _, w := range wallets {
			if !w.IsPayout || !w.IsActive {
				continue
			}
			address, err := bounty.ChecksumWallet(w.Address)
			if err != nil {
				c.log.Warn("sync: skipping non-EVM payout wallet", "user_id", w.UserID, "address", w.Address)
				continue
			}
			if err := tx.Model(&models.Influencer{}).
				Where("external_user_id = ?", w.UserID).
				Update("wallet", address).Error; err != nil {
				return fmt.Errorf("set payout wallet for %s: %w", w.UserID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.lastSync = pollTime
	c.log.Info("sync: wallets mirrored", "count", len(wallets))
	return nil
}
