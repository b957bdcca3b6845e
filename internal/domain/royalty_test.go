package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func validRoyalty() *Royalty {
	return &Royalty{
		ID:             "roy_1",
		TrackID:        "trk_1",
		StoreID:        "store_spotify",
		PeriodStart:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		Quantity:       1000,
		UnitRate:       dec("0.004"),
		GrossAmount:    dec("4.00"),
		SourceCurrency: "EUR",
		ExchangeRate:   dec("1.10"),
		Amount:         dec("4.40"),
		TaxAmount:      dec("0.40"),
		NetAmount:      dec("4.00"),
		Status:         RoyaltyStatusPending,
	}
}

func TestRoyaltyValidate(t *testing.T) {
	r := validRoyalty()
	require.NoError(t, r.Validate())

	r = validRoyalty()
	r.NetAmount = dec("4.10")
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net_amount")

	r = validRoyalty()
	r.ExchangeRate = decimal.Zero
	require.Error(t, r.Validate())

	r = validRoyalty()
	r.PeriodEnd = r.PeriodStart.AddDate(0, 0, -1)
	require.Error(t, r.Validate())
}

func TestRoyaltySplitPercentagesExceed100(t *testing.T) {
	r := validRoyalty()
	r.Splits = SplitList{
		{RecipientID: "user_a", Percentage: dec("60"), Amount: dec("2.40"), NetAmount: dec("2.40")},
		{RecipientID: "user_b", Percentage: dec("50"), Amount: dec("2.00"), NetAmount: dec("2.00")},
	}
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceed 100")
}

func TestRoyaltySplitNetReconciliation(t *testing.T) {
	r := validRoyalty()
	r.Splits = SplitList{
		{RecipientID: "user_a", Percentage: dec("60"), Amount: dec("2.40"), TaxAmount: dec("0.20"), AdvanceRecouped: dec("0.50"), NetAmount: dec("1.70")},
		{RecipientID: "user_b", Percentage: dec("40"), Amount: dec("1.60"), NetAmount: dec("1.60")},
	}
	require.NoError(t, r.Validate())

	// Split net must be amount - tax - recouped, exactly.
	r.Splits[0].NetAmount = dec("2.40")
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net_amount")
}

func TestRoyaltySplitAmountTolerance(t *testing.T) {
	// Allocated amounts may drift from the exact percentage share by one
	// hundredth, the rounding step for system-currency amounts.
	r := validRoyalty()
	r.Splits = SplitList{
		{RecipientID: "user_a", Percentage: dec("50"), Amount: dec("2.01"), NetAmount: dec("2.01")},
		{RecipientID: "user_b", Percentage: dec("50"), Amount: dec("2.00"), NetAmount: dec("2.00")},
	}
	require.NoError(t, r.Validate())

	r.Splits[0].Amount = dec("2.02")
	r.Splits[0].NetAmount = dec("2.02")
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile")
}

func TestRoyaltySplitDuplicateRecipient(t *testing.T) {
	r := validRoyalty()
	r.Splits = SplitList{
		{RecipientID: "user_a", Percentage: dec("50"), Amount: dec("2.00"), NetAmount: dec("2.00")},
		{RecipientID: "user_a", Percentage: dec("50"), Amount: dec("2.00"), NetAmount: dec("2.00")},
	}
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRoyaltyStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RoyaltyStatus
		ok       bool
	}{
		{RoyaltyStatusPending, RoyaltyStatusProcessed, true},
		{RoyaltyStatusPending, RoyaltyStatusHold, true},
		{RoyaltyStatusPending, RoyaltyStatusVoid, true},
		{RoyaltyStatusHold, RoyaltyStatusPending, true},
		{RoyaltyStatusHold, RoyaltyStatusProcessed, false},
		{RoyaltyStatusProcessed, RoyaltyStatusPending, false},
		{RoyaltyStatusVoid, RoyaltyStatusPending, false},
		{RoyaltyStatusDisputed, RoyaltyStatusProcessed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRoyaltyEligible(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 30 * 24 * time.Hour

	r := validRoyalty()
	r.Status = RoyaltyStatusProcessed
	assert.True(t, r.Eligible(now, cooldown))

	attached := "pay_1"
	r.AttachedPayoutID = &attached
	assert.False(t, r.Eligible(now, cooldown))

	r = validRoyalty()
	r.Status = RoyaltyStatusPending
	assert.False(t, r.Eligible(now, cooldown))

	// Reversed royalties sit out the cooldown window.
	r = validRoyalty()
	r.Status = RoyaltyStatusProcessed
	reversed := now.Add(-10 * 24 * time.Hour)
	r.ReversedAt = &reversed
	assert.False(t, r.Eligible(now, cooldown))

	old := now.Add(-40 * 24 * time.Hour)
	r.ReversedAt = &old
	assert.True(t, r.Eligible(now, cooldown))
}

func TestSplitListForRecipient(t *testing.T) {
	splits := SplitList{
		{RecipientID: "user_a", Percentage: dec("60")},
		{RecipientID: "user_b", Percentage: dec("40")},
	}
	split, ok := splits.ForRecipient("user_b")
	require.True(t, ok)
	assert.True(t, split.Percentage.Equal(dec("40")))

	_, ok = splits.ForRecipient("user_c")
	assert.False(t, ok)
}
