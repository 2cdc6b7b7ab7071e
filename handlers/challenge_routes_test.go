package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/middleware"
	"bounty-challenge-system/models"
	"bounty-challenge-system/services"
)

const (
	adminWallet  = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	brandWallet  = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	playerWallet = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
	agencyWallet = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"

	gatewayToken = "gw-token"
)

var now = time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

type recordingSettler struct {
	requests []bounty.SettlementRequest
}

func (s *recordingSettler) Settle(_ context.Context, req bounty.SettlementRequest) (*bounty.SettlementReceipt, error) {
	s.requests = append(s.requests, req)
	return &bounty.SettlementReceipt{TxHash: "0xfeed", Status: "confirmed"}, nil
}

type testApp struct {
	app     *fiber.App
	db      *gorm.DB
	settler *recordingSettler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(now)
	store := services.NewChallengeStore(db, clock)
	settler := &recordingSettler{}
	engine, err := bounty.NewEngine(bounty.EngineConfig{
		Logger:        log,
		Store:         store,
		Settler:       settler,
		AdminWallet:   adminWallet,
		TokenDecimals: 6,
		Clock:         clock,
	})
	require.NoError(t, err)

	app := fiber.New(fiber.Config{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal})
	SetupSystemRoutes(app, db, true)
	app.Use(middleware.GatewayAuthMiddleware(gatewayToken, log))
	SetupChallengeRoutes(app, log,
		services.NewChallengeService(store, engine, log),
		services.NewAgencyService(db, log))

	return &testApp{app: app, db: db, settler: settler}
}

// do sends a gateway-authenticated request. An empty user sends no user context.
func (ta *testApp) do(t *testing.T, method, path, user, roles string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+gatewayToken)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (ta *testApp) seedEndedChallenge(t *testing.T) *models.Challenge {
	t.Helper()
	ch := &models.Challenge{
		Slug:          "ended",
		Title:         "Ended",
		BrandUserID:   "brand-1",
		Hashtag:       "ended",
		Platforms:     "instagram",
		Status:        bounty.StatusStarted,
		BountyOffered: decimal.NewFromInt(1000),
		StartDate:     now.Add(-72 * time.Hour),
		EndDate:       now.Add(-time.Hour),
		Funded:        true,
		FunderWallet:  brandWallet,
	}
	require.NoError(t, ta.db.Create(ch).Error)

	p := &models.Participant{
		ChallengeID:    ch.ID,
		UserID:         "creator-1",
		Wallet:         playerWallet,
		SocialHandle:   "@creator",
		BountyReceived: decimal.Zero,
		IsActive:       true,
		JoinedAt:       now.Add(-48 * time.Hour),
	}
	require.NoError(t, ta.db.Create(p).Error)
	require.NoError(t, ta.db.Create(&models.ParticipantMetric{
		ParticipantID: p.ID,
		Platform:      "instagram",
		Posts:         2,
		Likes:         48,
		TotalPrice:    decimal.NewFromInt(100),
		FetchedAt:     now,
	}).Error)
	return ch
}

func TestGatewayAuthRequired(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/challenges/x", nil)
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err = ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCreateChallenge(t *testing.T) {
	ta := newTestApp(t)
	body := map[string]any{
		"title":          "Summer Glow Up",
		"hashtag":        "#Été Glow",
		"platforms":      []string{"Instagram", "tiktok"},
		"bounty_offered": "1000",
		"start_date":     "2026-03-06T00:00:00Z",
		"end_date":       "2026-03-20T00:00:00Z",
	}

	status, _ := ta.do(t, http.MethodPost, "/challenges", "", "", body)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, out := ta.do(t, http.MethodPost, "/challenges", "brand-1", "", body)
	require.Equal(t, fiber.StatusCreated, status, out)
	assert.Equal(t, "summer-glow-up", out["slug"])
	assert.Equal(t, "eteglow", out["hashtag"])
	assert.Equal(t, "instagram,tiktok", out["platforms"])
	assert.Equal(t, "created", out["status"])
	assert.Equal(t, "brand-1", out["brand_user_id"])

	// same title gets a suffixed slug
	status, out = ta.do(t, http.MethodPost, "/challenges", "brand-1", "", body)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Contains(t, out["slug"], "summer-glow-up-")

	body["platforms"] = []string{"myspace"}
	status, _ = ta.do(t, http.MethodPost, "/challenges", "brand-1", "", body)
	assert.Equal(t, fiber.StatusBadRequest, status)

	body["platforms"] = []string{"youtube"}
	body["end_date"] = "2026-03-01T00:00:00Z"
	status, _ = ta.do(t, http.MethodPost, "/challenges", "brand-1", "", body)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestFundJoinAndCancel(t *testing.T) {
	ta := newTestApp(t)
	status, out := ta.do(t, http.MethodPost, "/challenges", "brand-1", "", map[string]any{
		"title":          "Dance Off",
		"hashtag":        "danceoff",
		"platforms":      []string{"tiktok"},
		"bounty_offered": 500,
		"start_date":     "2026-03-06T00:00:00Z",
		"end_date":       "2026-03-20T00:00:00Z",
	})
	require.Equal(t, fiber.StatusCreated, status, out)
	id := out["id"].(string)

	fund := map[string]any{
		"wallet":  "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359",
		"tx_hash": "0x" + string(bytes.Repeat([]byte("ab"), 32)),
	}
	status, _ = ta.do(t, http.MethodPost, "/challenges/"+id+"/fund", "someone-else", "", fund)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, out = ta.do(t, http.MethodPost, "/challenges/"+id+"/fund", "brand-1", "", fund)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, brandWallet, out["funder_wallet"])

	status, _ = ta.do(t, http.MethodPost, "/challenges/"+id+"/fund", "brand-1", "", fund)
	assert.Equal(t, fiber.StatusConflict, status)

	join := map[string]any{"wallet": playerWallet, "social_handle": "@creator"}
	status, out = ta.do(t, http.MethodPost, "/challenges/"+id+"/join", "creator-1", "", join)
	require.Equal(t, fiber.StatusCreated, status, out)
	assert.Equal(t, true, out["is_active"])

	status, _ = ta.do(t, http.MethodPost, "/challenges/"+id+"/join", "creator-1", "", join)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = ta.do(t, http.MethodPost, "/challenges/"+id+"/join", "creator-2", "", map[string]any{
		"wallet": "0x1234", "social_handle": "@two",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, out = ta.do(t, http.MethodGet, "/challenges/"+id, "", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, out["participants_count"])
	assert.Equal(t, true, out["funded"])

	status, out = ta.do(t, http.MethodGet, "/challenges/"+id+"/participants", "", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, out["count"])

	status, _ = ta.do(t, http.MethodPost, "/challenges/"+id+"/cancel", "creator-1", "", nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = ta.do(t, http.MethodPost, "/challenges/"+id+"/cancel", "brand-1", "", nil)
	require.Equal(t, fiber.StatusOK, status)

	var ch models.Challenge
	require.NoError(t, ta.db.First(&ch, "id = ?", id).Error)
	assert.Equal(t, bounty.StatusCancelled, ch.Status)

	status, _ = ta.do(t, http.MethodPost, "/challenges/"+id+"/cancel", "brand-1", "", nil)
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestGetChallenge_NotFound(t *testing.T) {
	ta := newTestApp(t)
	status, out := ta.do(t, http.MethodGet, "/challenges/missing", "", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Contains(t, out["error"], "challenge not found")
}

func TestAdminRoutesRequireRole(t *testing.T) {
	ta := newTestApp(t)
	ch := ta.seedEndedChallenge(t)

	status, _ := ta.do(t, http.MethodGet, "/admin/challenges/"+ch.ID+"/manifest", "", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = ta.do(t, http.MethodGet, "/admin/challenges/"+ch.ID+"/manifest", "ops-1", "support", nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = ta.do(t, http.MethodGet, "/admin/challenges/"+ch.ID+"/manifest", "ops-1", "support, admin", nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestPreviewThenSettle(t *testing.T) {
	ta := newTestApp(t)
	ch := ta.seedEndedChallenge(t)

	status, preview := ta.do(t, http.MethodGet, "/admin/challenges/"+ch.ID+"/manifest", "ops-1", "admin", nil)
	require.Equal(t, fiber.StatusOK, status, preview)
	assert.Equal(t, "completed", preview["status"])
	assert.Len(t, preview["payouts"], 2)
	assert.Empty(t, ta.settler.requests)

	status, res := ta.do(t, http.MethodPost, "/admin/challenges/"+ch.ID+"/settle", "ops-1", "admin", nil)
	require.Equal(t, fiber.StatusOK, status, res)
	assert.Equal(t, "0xfeed", res["tx_hash"])
	assert.Equal(t, preview["idempotency_key"], res["idempotency_key"])

	require.Len(t, ta.settler.requests, 1)
	amounts := map[string]string{}
	for _, p := range ta.settler.requests[0].Payouts {
		amounts[p.Wallet] = p.BaseUnits
	}
	assert.Equal(t, "900000000", amounts[adminWallet])
	assert.Equal(t, "100000000", amounts[playerWallet])

	var stored models.Challenge
	require.NoError(t, ta.db.First(&stored, "id = ?", ch.ID).Error)
	assert.Equal(t, bounty.StatusCompleted, stored.Status)
	assert.Equal(t, "0xfeed", stored.SettlementTxHash)

	// a settled challenge cannot be settled again
	status, _ = ta.do(t, http.MethodPost, "/admin/challenges/"+ch.ID+"/settle", "ops-1", "admin", nil)
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestAgencyAdmin(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.db.Create(&models.Influencer{ExternalUserID: "creator-1", Username: "creator"}).Error)

	status, root := ta.do(t, http.MethodPost, "/admin/agencies", "ops-1", "admin", map[string]any{
		"name": "Root Talent", "wallet": agencyWallet,
	})
	require.Equal(t, fiber.StatusCreated, status, root)
	assert.Equal(t, true, root["commission_eligible"])

	status, child := ta.do(t, http.MethodPost, "/admin/agencies", "ops-1", "admin", map[string]any{
		"name": "Child Talent", "wallet": brandWallet, "commission_eligible": false,
		"introducing_agency_id": root["id"],
	})
	require.Equal(t, fiber.StatusCreated, status, child)
	assert.Equal(t, false, child["commission_eligible"])
	assert.Equal(t, root["id"], child["introducing_agency_id"])

	status, _ = ta.do(t, http.MethodPost, "/admin/agencies", "ops-1", "admin", map[string]any{
		"name": "Root Talent", "wallet": agencyWallet,
	})
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = ta.do(t, http.MethodPost, "/admin/agencies", "ops-1", "admin", map[string]any{
		"name": "Ghost", "wallet": agencyWallet, "introducing_agency_id": "nope",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, inf := ta.do(t, http.MethodPut, "/admin/influencers/creator-1/agency", "ops-1", "admin", map[string]any{
		"agency_id": child["id"],
	})
	require.Equal(t, fiber.StatusOK, status, inf)
	assert.Equal(t, child["id"], inf["agency_id"])

	status, _ = ta.do(t, http.MethodPut, "/admin/influencers/nobody/agency", "ops-1", "admin", map[string]any{
		"agency_id": child["id"],
	})
	assert.Equal(t, fiber.StatusNotFound, status)
}
