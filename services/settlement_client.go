package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/utils"
)

// SettlementClient hands payment manifests to the chain relayer.
type SettlementClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

var _ bounty.Settler = (*SettlementClient)(nil)

func NewSettlementClient(baseURL, token string, timeout time.Duration) *SettlementClient {
	return &SettlementClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  utils.NewHTTPClient(timeout),
	}
}

type settlePayout struct {
	Wallet string `json:"wallet"`
	Amount string `json:"amount"` // base units
}

type settleRequest struct {
	ChallengeID string         `json:"challenge_id"`
	Payouts     []settlePayout `json:"payouts"`
}

// Settle POSTs /v1/settlements. The relayer dedupes on Idempotency-Key, so a
// retried call for the same manifest returns the original transaction.
func (c *SettlementClient) Settle(ctx context.Context, req bounty.SettlementRequest) (*bounty.SettlementReceipt, error) {
	body := settleRequest{ChallengeID: req.ChallengeID, Payouts: make([]settlePayout, 0, len(req.Payouts))}
	for _, p := range req.Payouts {
		body.Payouts = append(body.Payouts, settlePayout{Wallet: p.Wallet, Amount: p.BaseUnits})
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode settlement request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/settlements", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("settlement relayer request failed: %w", err)
	}
	defer utils.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("settlement relayer returned %d: %s", resp.StatusCode, utils.ReadErrorBody(resp))
	}

	var receipt bounty.SettlementReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("failed to decode settlement receipt: %w", err)
	}
	if receipt.TxHash == "" {
		return nil, fmt.Errorf("settlement relayer returned no transaction hash (status %q)", receipt.Status)
	}
	return &receipt, nil
}
