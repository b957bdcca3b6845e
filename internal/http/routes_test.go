package httpapp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonearm/royaltyd/internal/app"
	"github.com/tonearm/royaltyd/internal/domain"
	"github.com/tonearm/royaltyd/internal/fx"
	"github.com/tonearm/royaltyd/internal/gateway"
	"github.com/tonearm/royaltyd/internal/logger"
	"github.com/tonearm/royaltyd/internal/store"
)

type testServer struct {
	*httptest.Server
	DB   *store.DB
	Keys *app.ApiKeyService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.New(logger.Config{Level: "error"})
	minimum := decimal.RequireFromString("25.00")
	keys := app.NewApiKeyService(db, log)

	handler := NewHandler(
		app.NewRoyaltyService(db, log),
		app.NewPayoutService(db, &gateway.Mock{}, log),
		app.NewAggregationService(db, fx.NewStatic(), "USD", minimum, 30*24*time.Hour, log),
		app.NewAnalyticsService(db, log),
		keys,
		db,
		log,
	)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, DB: db, Keys: keys}
}

func (ts *testServer) seedAdmin(t *testing.T, scopes ...string) string {
	t.Helper()
	now := time.Now().UTC()
	user := &domain.User{
		ID:             "admin-1",
		Email:          "admin@example.com",
		Name:           "admin",
		Role:           domain.RoleAdmin,
		Status:         domain.UserStatusActive,
		PayoutMethod:   domain.PayoutMethodBankTransfer,
		PayoutCurrency: "USD",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, ts.DB.CreateUser(context.Background(), user))

	key, err := ts.Keys.Issue(context.Background(), user.ID, "test", scopes, nil)
	require.NoError(t, err)
	return key.Key
}

func (ts *testServer) do(t *testing.T, method, path, apiKey string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthIsOpen(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/v1/royalties", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/royalties", "rk_bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScopeEnforcement(t *testing.T) {
	ts := newTestServer(t)
	readOnly := ts.seedAdmin(t, "tracks:read")

	resp := ts.do(t, http.MethodGet, "/api/v1/royalties", readOnly, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A valid key without the write scope is forbidden, not unauthorized.
	resp = ts.do(t, http.MethodPost, "/api/v1/royalties", readOnly, map[string]interface{}{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRoyaltyIngestEndpoint(t *testing.T) {
	ts := newTestServer(t)
	key := ts.seedAdmin(t, "tracks:read", "tracks:write")

	body := map[string]interface{}{
		"track_id":        "track-1",
		"store_id":        "spotify",
		"period_start":    "2026-06-01T00:00:00Z",
		"period_end":      "2026-06-30T00:00:00Z",
		"quantity":        1000,
		"unit_rate":       "0.004",
		"gross_amount":    "4.00",
		"source_currency": "USD",
		"exchange_rate":   "1",
	}
	resp := ts.do(t, http.MethodPost, "/api/v1/royalties", key, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var royalty domain.Royalty
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&royalty))
	assert.Equal(t, domain.RoyaltyStatusPending, royalty.Status)
	assert.True(t, royalty.NetAmount.Equal(decimal.RequireFromString("4.00")))

	resp = ts.do(t, http.MethodGet, "/api/v1/royalties/"+royalty.ID, key, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoyaltyIngestEndpoint_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	key := ts.seedAdmin(t, "tracks:write")

	resp := ts.do(t, http.MethodPost, "/api/v1/royalties", key, map[string]interface{}{
		"track_id": "track-1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Fields, "store_id")
	assert.Contains(t, body.Fields, "exchange_rate")
}

func TestUnknownRoyaltyIs404(t *testing.T) {
	ts := newTestServer(t)
	key := ts.seedAdmin(t, "tracks:read")

	resp := ts.do(t, http.MethodGet, "/api/v1/royalties/does-not-exist", key, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventIngestEndpoint(t *testing.T) {
	ts := newTestServer(t)
	key := ts.seedAdmin(t, "tracks:write", "analytics:read")

	events := []map[string]interface{}{
		{"id": "ev-1", "type": "play", "user_id": "u1", "occurred_at": "2026-07-14T10:00:00Z"},
		{"id": "ev-2", "type": "play", "user_id": "u2", "occurred_at": "2026-07-14T11:00:00Z"},
		{"id": "ev-1", "type": "play", "user_id": "u1", "occurred_at": "2026-07-14T10:00:00Z"},
	}
	resp := ts.do(t, http.MethodPost, "/api/v1/events", key, events)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var report app.IngestReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 1, report.Duplicates)

	resp = ts.do(t, http.MethodGet, "/api/v1/analytics/daily/2026-07-14", key, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary domain.AnalyticsSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, int64(2), summary.TotalEvents)
}

func TestApiKeyEndpoints(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.seedAdmin(t, "profile:read", "profile:write")

	resp := ts.do(t, http.MethodPost, "/api/v1/users/admin-1/keys", admin, map[string]interface{}{
		"name":   "ci",
		"scopes": []string{"tracks:read"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var issued issuedKeyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issued))
	require.NotEmpty(t, issued.Key.Key)

	// Listing never echoes the plaintext value back.
	resp = ts.do(t, http.MethodGet, "/api/v1/users/admin-1/keys", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var keys []*domain.ApiKey
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&keys))
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.Empty(t, k.Key)
	}

	resp = ts.do(t, http.MethodDelete, "/api/v1/keys/"+issued.Key.ID, admin, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The revoked key no longer authenticates.
	resp = ts.do(t, http.MethodGet, "/api/v1/royalties", issued.Key.Key, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
