package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/utils"
)

// MetricsQuery selects one influencer's posts on one platform.
type MetricsQuery struct {
	Platform bounty.Platform
	Handle   string
	Hashtag  string
	Since    time.Time
	Until    time.Time
}

// MetricsFetcher is implemented by AnalyticsClient.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context, q MetricsQuery) (bounty.Metrics, error)
}

type AnalyticsClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	limiter *rate.Limiter
}

type analyticsResponse struct {
	Posts          int64   `json:"posts"`
	Likes          int64   `json:"likes"`
	Shares         int64   `json:"shares"`
	Comments       int64   `json:"comments"`
	Views          int64   `json:"views"`
	Impressions    int64   `json:"impressions"`
	EngagementRate float64 `json:"engagement_rate"`
}

// NewAnalyticsClient limits outgoing calls to rps requests per second.
func NewAnalyticsClient(baseURL, apiKey string, rps float64) *AnalyticsClient {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &AnalyticsClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  utils.NewHTTPClient(20 * time.Second),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// FetchMetrics calls GET /v1/metrics on the analytics API.
func (c *AnalyticsClient) FetchMetrics(ctx context.Context, q MetricsQuery) (bounty.Metrics, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return bounty.Metrics{}, fmt.Errorf("analytics rate limiter: %w", err)
	}

	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return bounty.Metrics{}, fmt.Errorf("invalid analytics URL '%s': %w", c.BaseURL, err)
	}
	endpoint := base.JoinPath("/v1/metrics")
	params := endpoint.Query()
	params.Set("platform", string(q.Platform))
	params.Set("handle", q.Handle)
	params.Set("hashtag", q.Hashtag)
	params.Set("since", q.Since.UTC().Format(time.RFC3339))
	if !q.Until.IsZero() {
		params.Set("until", q.Until.UTC().Format(time.RFC3339))
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return bounty.Metrics{}, fmt.Errorf("failed to create analytics request: %w", err)
	}
	req.Header.Set("X-API-Key", c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return bounty.Metrics{}, fmt.Errorf("analytics request failed: %w", err)
	}
	defer utils.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return bounty.Metrics{}, fmt.Errorf("analytics returned %d: %s", resp.StatusCode, utils.ReadErrorBody(resp))
	}

	var out analyticsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return bounty.Metrics{}, fmt.Errorf("failed to decode analytics response: %w", err)
	}
	return bounty.Metrics{
		Posts:          out.Posts,
		Likes:          out.Likes,
		Shares:         out.Shares,
		Comments:       out.Comments,
		Views:          out.Views,
		Impressions:    out.Impressions,
		EngagementRate: out.EngagementRate,
	}, nil
}
