package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tonearm/royaltyd/internal/domain"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	cleanup := func() {
		if cErr := db.Close(); cErr != nil {
			t.Logf("db.Close error: %v", cErr)
		}
	}
	return db, cleanup
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func seedUser(t *testing.T, db *DB, id string, totalEarnings, available string) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:                  id,
		Email:               id + "@example.com",
		Name:                id,
		Role:                domain.RoleArtist,
		Status:              domain.UserStatusActive,
		TotalEarnings:       dec(t, totalEarnings),
		AvailableBalance:    dec(t, available),
		PendingPayouts:      decimal.Zero,
		PayoutMethod:        domain.PayoutMethodBankTransfer,
		PayoutCurrency:      "USD",
		MinimumPayoutAmount: dec(t, "20.00"),
		CreatedAt:           time.Now().UTC(),
		UpdatedAt:           time.Now().UTC(),
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func seedRoyalty(t *testing.T, db *DB, id, recipientID, net string) *domain.Royalty {
	t.Helper()
	netAmount := dec(t, net)
	royalty := &domain.Royalty{
		ID:             id,
		TrackID:        "trk_1",
		StoreID:        "store_spotify",
		PeriodStart:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		Quantity:       100,
		UnitRate:       dec(t, "0.004"),
		GrossAmount:    netAmount,
		SourceCurrency: "USD",
		ExchangeRate:   decimal.NewFromInt(1),
		Amount:         netAmount,
		TaxAmount:      decimal.Zero,
		NetAmount:      netAmount,
		Status:         domain.RoyaltyStatusPending,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := db.CreateRoyalty(context.Background(), royalty); err != nil {
		t.Fatalf("CreateRoyalty failed: %v", err)
	}
	splits := domain.SplitList{{
		RecipientID: recipientID,
		Percentage:  decimal.NewFromInt(100),
		Amount:      netAmount,
		NetAmount:   netAmount,
	}}
	credits := map[string]domain.StatsDelta{
		recipientID: {TotalEarnings: netAmount, AvailableBalance: netAmount},
	}
	if err := db.ProcessRoyalty(context.Background(), id, splits, credits); err != nil {
		t.Fatalf("ProcessRoyalty failed: %v", err)
	}
	royalty.Splits = splits
	royalty.Status = domain.RoyaltyStatusProcessed
	return royalty
}

func draftPayout(royaltyIDs []string, recipientID, amount string) *domain.Payout {
	items := make(domain.ItemList, 0, len(royaltyIDs))
	per := decimal.RequireFromString(amount).Div(decimal.NewFromInt(int64(len(royaltyIDs))))
	for _, id := range royaltyIDs {
		items = append(items, domain.PayoutItem{
			RoyaltyID:              id,
			NetAmount:              per,
			ExchangeRate:           decimal.NewFromInt(1),
			AmountInPayoutCurrency: per,
		})
	}
	return &domain.Payout{
		ID:          "pay_" + royaltyIDs[0],
		RecipientID: recipientID,
		Currency:    "USD",
		Amount:      items.Sum(),
		FeeAmount:   decimal.Zero,
		TaxAmount:   decimal.Zero,
		NetAmount:   items.Sum(),
		Method:      domain.PayoutMethodBankTransfer,
		Status:      domain.PayoutStatusDraft,
		Items:       items,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func TestDB_Users(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seedUser(t, db, "user_a", "100.00", "100.00")

	fetched, err := db.GetUser(ctx, "user_a")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !fetched.TotalEarnings.Equal(dec(t, "100.00")) {
		t.Errorf("Expected total earnings 100.00, got %s", fetched.TotalEarnings)
	}

	if _, err := db.GetUser(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := db.UpdateUserStatus(ctx, "user_a", domain.UserStatusSuspended); err != nil {
		t.Errorf("UpdateUserStatus failed: %v", err)
	}
	fetched, _ = db.GetUser(ctx, "user_a")
	if fetched.Status != domain.UserStatusSuspended {
		t.Errorf("Expected status suspended, got %s", fetched.Status)
	}
}

func TestDB_ProcessRoyalty(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seedUser(t, db, "user_a", "0", "0")
	seedRoyalty(t, db, "roy_1", "user_a", "12.50")

	fetched, err := db.GetRoyalty(ctx, "roy_1")
	if err != nil {
		t.Fatalf("GetRoyalty failed: %v", err)
	}
	if fetched.Status != domain.RoyaltyStatusProcessed {
		t.Errorf("Expected status processed, got %s", fetched.Status)
	}
	if len(fetched.Splits) != 1 || fetched.Splits[0].RecipientID != "user_a" {
		t.Errorf("Expected one split for user_a, got %+v", fetched.Splits)
	}

	// Processing credits the recipient's stats.
	user, _ := db.GetUser(ctx, "user_a")
	if !user.AvailableBalance.Equal(dec(t, "12.50")) {
		t.Errorf("Expected available balance 12.50, got %s", user.AvailableBalance)
	}

	// Re-processing an already processed royalty is a conflict.
	err = db.ProcessRoyalty(ctx, "roy_1", fetched.Splits, nil)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
}

func TestDB_AttachExclusivity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seedUser(t, db, "user_a", "0", "0")
	seedRoyalty(t, db, "roy_1", "user_a", "25.00")

	first := draftPayout([]string{"roy_1"}, "user_a", "25.00")
	delta := domain.StatsDelta{AvailableBalance: dec(t, "-25.00"), PendingPayouts: dec(t, "25.00")}
	if err := db.CreateDraftPayout(ctx, first, delta); err != nil {
		t.Fatalf("CreateDraftPayout failed: %v", err)
	}

	// A second payout claiming the same royalty must fail and roll back.
	second := draftPayout([]string{"roy_1"}, "user_a", "25.00")
	second.ID = "pay_second"
	err := db.CreateDraftPayout(ctx, second, delta)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}
	if _, err := db.GetPayout(ctx, "pay_second"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected conflicting payout to roll back, got %v", err)
	}

	royalty, _ := db.GetRoyalty(ctx, "roy_1")
	if royalty.AttachedPayoutID == nil || *royalty.AttachedPayoutID != first.ID {
		t.Errorf("Expected royalty attached to %s, got %v", first.ID, royalty.AttachedPayoutID)
	}
}

func TestDB_TransitionReleasesRoyalties(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seedUser(t, db, "user_a", "0", "0")
	seedRoyalty(t, db, "roy_1", "user_a", "10.00")
	seedRoyalty(t, db, "roy_2", "user_a", "8.00")
	seedRoyalty(t, db, "roy_3", "user_a", "7.00")

	payout := draftPayout([]string{"roy_1", "roy_2", "roy_3"}, "user_a", "25.00")
	delta := domain.StatsDelta{AvailableBalance: dec(t, "-25.00"), PendingPayouts: dec(t, "25.00")}
	if err := db.CreateDraftPayout(ctx, payout, delta); err != nil {
		t.Fatalf("CreateDraftPayout failed: %v", err)
	}

	payout.Status = domain.PayoutStatusPending
	if err := db.TransitionPayout(ctx, payout, domain.PayoutStatusDraft, domain.StatsDelta{}); err != nil {
		t.Fatalf("draft->pending failed: %v", err)
	}
	payout.Status = domain.PayoutStatusProcessing
	if err := db.TransitionPayout(ctx, payout, domain.PayoutStatusPending, domain.StatsDelta{}); err != nil {
		t.Fatalf("pending->processing failed: %v", err)
	}

	// Failure releases all three royalties for the next cycle.
	reason := "gateway rejected"
	payout.Status = domain.PayoutStatusFailed
	payout.FailureReason = &reason
	back := domain.StatsDelta{AvailableBalance: dec(t, "25.00"), PendingPayouts: dec(t, "-25.00")}
	if err := db.TransitionPayout(ctx, payout, domain.PayoutStatusProcessing, back); err != nil {
		t.Fatalf("processing->failed failed: %v", err)
	}

	for _, id := range []string{"roy_1", "roy_2", "roy_3"} {
		royalty, err := db.GetRoyalty(ctx, id)
		if err != nil {
			t.Fatalf("GetRoyalty failed: %v", err)
		}
		if royalty.AttachedPayoutID != nil {
			t.Errorf("Expected %s released, still attached to %s", id, *royalty.AttachedPayoutID)
		}
		if !royalty.Eligible(time.Now(), 0) {
			t.Errorf("Expected %s eligible again", id)
		}
	}

	if n, err := db.CountAttached(ctx, payout.ID); err != nil || n != 0 {
		t.Errorf("Expected no attachments left, got %d (err %v)", n, err)
	}

	user, _ := db.GetUser(ctx, "user_a")
	if !user.PendingPayouts.IsZero() {
		t.Errorf("Expected pending payouts back to zero, got %s", user.PendingPayouts)
	}
}

func TestDB_TransitionConflict(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seedUser(t, db, "user_a", "0", "0")
	seedRoyalty(t, db, "roy_1", "user_a", "25.00")

	payout := draftPayout([]string{"roy_1"}, "user_a", "25.00")
	delta := domain.StatsDelta{AvailableBalance: dec(t, "-25.00"), PendingPayouts: dec(t, "25.00")}
	if err := db.CreateDraftPayout(ctx, payout, delta); err != nil {
		t.Fatalf("CreateDraftPayout failed: %v", err)
	}

	// Illegal transition rejected by the validity table.
	payout.Status = domain.PayoutStatusPaid
	err := db.TransitionPayout(ctx, payout, domain.PayoutStatusDraft, domain.StatsDelta{})
	if err == nil || !domain.IsValidation(err) {
		t.Fatalf("Expected validation error for draft->paid, got %v", err)
	}

	// Stale status guard: the row is still draft, claiming pending loses.
	payout.Status = domain.PayoutStatusProcessing
	err = db.TransitionPayout(ctx, payout, domain.PayoutStatusPending, domain.StatsDelta{})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Expected ErrConflict for stale status, got %v", err)
	}
}

func TestDB_ReversalStampsCooldown(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seedUser(t, db, "user_a", "0", "0")
	seedRoyalty(t, db, "roy_1", "user_a", "25.00")

	payout := draftPayout([]string{"roy_1"}, "user_a", "25.00")
	delta := domain.StatsDelta{AvailableBalance: dec(t, "-25.00"), PendingPayouts: dec(t, "25.00")}
	if err := db.CreateDraftPayout(ctx, payout, delta); err != nil {
		t.Fatalf("CreateDraftPayout failed: %v", err)
	}
	for _, step := range []struct{ from, to domain.PayoutStatus }{
		{domain.PayoutStatusDraft, domain.PayoutStatusPending},
		{domain.PayoutStatusPending, domain.PayoutStatusProcessing},
		{domain.PayoutStatusProcessing, domain.PayoutStatusPaid},
	} {
		payout.Status = step.to
		if step.to == domain.PayoutStatusPaid {
			ref := "ext_ref_1"
			now := time.Now().UTC()
			payout.PaymentReference = &ref
			payout.PaymentDate = &now
		}
		statsDelta := domain.StatsDelta{}
		if step.to == domain.PayoutStatusPaid {
			statsDelta = domain.StatsDelta{PendingPayouts: dec(t, "-25.00")}
		}
		if err := db.TransitionPayout(ctx, payout, step.from, statsDelta); err != nil {
			t.Fatalf("%s->%s failed: %v", step.from, step.to, err)
		}
	}

	reversedAt := time.Now().UTC()
	payout.Status = domain.PayoutStatusReversed
	payout.ReversedAt = &reversedAt
	clawback := domain.StatsDelta{TotalEarnings: dec(t, "-25.00")}
	if err := db.TransitionPayout(ctx, payout, domain.PayoutStatusPaid, clawback); err != nil {
		t.Fatalf("paid->reversed failed: %v", err)
	}

	royalty, _ := db.GetRoyalty(ctx, "roy_1")
	if royalty.AttachedPayoutID != nil {
		t.Error("Expected royalty released after reversal")
	}
	if royalty.ReversedAt == nil {
		t.Fatal("Expected reversal stamp for cooldown")
	}
	if royalty.Eligible(time.Now(), 30*24*time.Hour) {
		t.Error("Expected royalty ineligible during cooldown")
	}
}

func TestDB_ListEligibleRoyalties(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seedUser(t, db, "user_a", "0", "0")
	seedRoyalty(t, db, "roy_1", "user_a", "10.00")
	seedRoyalty(t, db, "roy_2", "user_a", "5.00")

	// A pending royalty is not eligible.
	pending := &domain.Royalty{
		ID: "roy_pending", TrackID: "trk_1", StoreID: "store_x",
		PeriodStart: time.Now().UTC(), PeriodEnd: time.Now().UTC(),
		SourceCurrency: "USD", ExchangeRate: decimal.NewFromInt(1),
		Status:    domain.RoyaltyStatusPending,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := db.CreateRoyalty(ctx, pending); err != nil {
		t.Fatalf("CreateRoyalty failed: %v", err)
	}

	eligible, err := db.ListEligibleRoyalties(ctx, time.Now(), 0)
	if err != nil {
		t.Fatalf("ListEligibleRoyalties failed: %v", err)
	}
	if len(eligible) != 2 {
		t.Fatalf("Expected 2 eligible royalties, got %d", len(eligible))
	}
}

func TestDB_AnalyticsEvents(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	event := &domain.AnalyticsEvent{
		ID:         "ev_1",
		Type:       domain.EventTypePlay,
		UserID:     "user_a",
		Country:    "US",
		Device:     "mobile",
		OccurredAt: time.Date(2026, 7, 4, 9, 30, 0, 0, time.UTC),
	}

	inserted, err := db.InsertEvent(ctx, event)
	if err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if !inserted {
		t.Error("Expected first insert to apply")
	}

	// Replay of the same event is a no-op.
	inserted, err = db.InsertEvent(ctx, event)
	if err != nil {
		t.Fatalf("InsertEvent replay failed: %v", err)
	}
	if inserted {
		t.Error("Expected replay to be ignored")
	}

	events, err := db.ListEventsForDay(ctx, "2026-07-04")
	if err != nil {
		t.Fatalf("ListEventsForDay failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Country != "US" {
		t.Errorf("Expected country US, got %s", events[0].Country)
	}

	days, err := db.ListEventDays(ctx, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListEventDays failed: %v", err)
	}
	if len(days) != 1 || days[0] != "2026-07-04" {
		t.Errorf("Expected [2026-07-04], got %v", days)
	}

	// Same day twice plus a later day: days come back distinct and sorted.
	more := []domain.AnalyticsEvent{
		{ID: "ev_2", Type: domain.EventTypePlay, UserID: "user_a", Country: "US", Device: "mobile",
			OccurredAt: time.Date(2026, 7, 4, 21, 0, 0, 0, time.UTC)},
		{ID: "ev_3", Type: domain.EventTypeDownload, UserID: "user_b", Country: "DE", Device: "desktop",
			OccurredAt: time.Date(2026, 7, 6, 3, 15, 0, 0, time.UTC)},
		{ID: "ev_4", Type: domain.EventTypePlay, UserID: "user_b", Country: "DE", Device: "desktop",
			OccurredAt: time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)},
	}
	for i := range more {
		if _, err := db.InsertEvent(ctx, &more[i]); err != nil {
			t.Fatalf("InsertEvent %s failed: %v", more[i].ID, err)
		}
	}

	days, err = db.ListEventDays(ctx, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListEventDays failed: %v", err)
	}
	if len(days) != 2 || days[0] != "2026-07-04" || days[1] != "2026-07-06" {
		t.Errorf("Expected [2026-07-04 2026-07-06], got %v", days)
	}
}

func TestDB_SummaryUpsert(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	summary := domain.FoldEvents("2026-07-04", []*domain.AnalyticsEvent{
		{ID: "ev_1", Type: domain.EventTypePlay, UserID: "u1", Country: "US",
			OccurredAt: time.Date(2026, 7, 4, 9, 0, 0, 0, time.UTC)},
	})
	summary.UpdatedAt = time.Now().UTC()

	if err := db.UpsertSummary(ctx, summary); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}

	fetched, err := db.GetSummary(ctx, "2026-07-04")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if fetched.TotalPlays != 1 || fetched.UniqueUsers != 1 {
		t.Errorf("Expected 1 play / 1 user, got %+v", fetched)
	}
	if fetched.ByCountry["US"] == nil || fetched.ByCountry["US"].Plays != 1 {
		t.Errorf("Expected by_country US plays 1, got %+v", fetched.ByCountry)
	}
	if fetched.ByHour[9] != 1 {
		t.Errorf("Expected by_hour[9] = 1, got %v", fetched.ByHour)
	}

	// Second upsert replaces the row.
	summary.TotalEvents = 5
	if err := db.UpsertSummary(ctx, summary); err != nil {
		t.Fatalf("UpsertSummary replace failed: %v", err)
	}
	fetched, _ = db.GetSummary(ctx, "2026-07-04")
	if fetched.TotalEvents != 5 {
		t.Errorf("Expected total 5 after upsert, got %d", fetched.TotalEvents)
	}
}

func TestDB_ApiKeys(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seedUser(t, db, "user_a", "0", "0")

	expires := time.Now().UTC().Add(-time.Hour)
	key := &domain.ApiKey{
		ID:        "key_1",
		UserID:    "user_a",
		Name:      "ci",
		Key:       domain.NewKeyValue(),
		Scopes:    domain.StringSlice{string(domain.ScopeTracksRead)},
		ExpiresAt: &expires,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.CreateApiKey(ctx, key); err != nil {
		t.Fatalf("CreateApiKey failed: %v", err)
	}

	fetched, err := db.GetApiKeyByValue(ctx, key.Key)
	if err != nil {
		t.Fatalf("GetApiKeyByValue failed: %v", err)
	}
	if fetched.ID != "key_1" {
		t.Errorf("Expected key_1, got %s", fetched.ID)
	}

	n, err := db.DeactivateExpiredKeys(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("DeactivateExpiredKeys failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 deactivated key, got %d", n)
	}
	fetched, _ = db.GetApiKeyByValue(ctx, key.Key)
	if fetched.Active {
		t.Error("Expected key deactivated")
	}

	// Key value uniqueness across records.
	dup := *key
	dup.ID = "key_2"
	if err := db.CreateApiKey(ctx, &dup); err == nil {
		t.Error("Expected unique constraint violation for duplicate key value")
	}
}
