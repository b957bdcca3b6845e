package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tonearm/royaltyd/internal/domain"
	"github.com/tonearm/royaltyd/internal/fx"
	"github.com/tonearm/royaltyd/internal/gateway"
	"github.com/tonearm/royaltyd/internal/logger"
	"github.com/tonearm/royaltyd/internal/store"
)

// testEnv wires the services against a real SQLite store, a static rate
// table and the mock gateway.
type testEnv struct {
	DB        *store.DB
	Gateway   *gateway.Mock
	Rates     *fx.Static
	Royalties *RoyaltyService
	Payouts   *PayoutService
	Agg       *AggregationService
	Analytics *AnalyticsService
	Keys      *ApiKeyService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.New(logger.Config{Level: "error"})
	gw := &gateway.Mock{}
	rates := fx.NewStatic()

	return &testEnv{
		DB:        db,
		Gateway:   gw,
		Rates:     rates,
		Royalties: NewRoyaltyService(db, log),
		Payouts:   NewPayoutService(db, gw, log),
		Agg:       NewAggregationService(db, rates, "USD", dec(t, "25.00"), 30*24*time.Hour, log),
		Analytics: NewAnalyticsService(db, log),
		Keys:      NewApiKeyService(db, log),
	}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func seedUser(t *testing.T, env *testEnv, id, minimum string) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	user := &domain.User{
		ID:                  id,
		Email:               id + "@example.com",
		Name:                id,
		Role:                domain.RoleArtist,
		Status:              domain.UserStatusActive,
		PayoutMethod:        domain.PayoutMethodBankTransfer,
		PayoutCurrency:      "USD",
		MinimumPayoutAmount: dec(t, minimum),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	require.NoError(t, env.DB.CreateUser(context.Background(), user))
	return user
}

// processedRoyalty ingests a royalty and processes it with a single 100%
// split, so the recipient's split net equals the given amount.
func processedRoyalty(t *testing.T, env *testEnv, recipientID, net string) *domain.Royalty {
	t.Helper()
	ctx := context.Background()

	royalty, err := env.Royalties.Ingest(ctx, RoyaltyInput{
		TrackID:        "track-1",
		StoreID:        "store-1",
		PeriodStart:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		Quantity:       100,
		UnitRate:       dec(t, "0.004"),
		GrossAmount:    dec(t, net),
		SourceCurrency: "USD",
		ExchangeRate:   decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	royalty, err = env.Royalties.Process(ctx, royalty.ID, []SplitInput{
		{RecipientID: recipientID, Percentage: decimal.NewFromInt(100)},
	})
	require.NoError(t, err)
	return royalty
}

func getUser(t *testing.T, env *testEnv, id string) *domain.User {
	t.Helper()
	user, err := env.DB.GetUser(context.Background(), id)
	require.NoError(t, err)
	return user
}
