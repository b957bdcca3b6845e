package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tonearm/royaltyd/internal/domain"
	"github.com/tonearm/royaltyd/internal/fx"
	"github.com/tonearm/royaltyd/internal/logger"
	"github.com/tonearm/royaltyd/internal/store"
)

// AggregationService rolls processed royalties into draft payouts, one
// recipient at a time.
type AggregationService struct {
	Repo           *store.DB
	Rates          fx.RateSource
	SystemCurrency string
	// DefaultMinimum applies to recipients without their own threshold.
	DefaultMinimum decimal.Decimal
	// Cooldown keeps reversed royalties out of aggregation.
	Cooldown time.Duration
	Logger   *logger.Logger
}

func NewAggregationService(repo *store.DB, rates fx.RateSource, systemCurrency string, defaultMinimum decimal.Decimal, cooldown time.Duration, log *logger.Logger) *AggregationService {
	return &AggregationService{
		Repo:           repo,
		Rates:          rates,
		SystemCurrency: systemCurrency,
		DefaultMinimum: defaultMinimum,
		Cooldown:       cooldown,
		Logger:         log.WithComponent("aggregation"),
	}
}

// AggregationResult is the outcome of one aggregation run. A skipped run
// is not an error: the royalties simply stay eligible for the next cycle.
type AggregationResult struct {
	Payout  *domain.Payout `json:"payout,omitempty"`
	Skipped bool           `json:"skipped"`
	Reason  string         `json:"reason,omitempty"`
}

// Run aggregates one recipient's eligible royalties into a draft payout.
// No payout is created when the converted sum is below the recipient's
// minimum; partial payouts are never produced.
func (s *AggregationService) Run(ctx context.Context, recipientID string) (*AggregationResult, error) {
	user, err := s.Repo.GetUser(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if user.Status != domain.UserStatusActive {
		return &AggregationResult{Skipped: true, Reason: "recipient is not active"}, nil
	}

	minimum := user.MinimumPayoutAmount
	if minimum.IsZero() {
		minimum = s.DefaultMinimum
	}

	now := time.Now().UTC()
	eligible, err := s.Repo.ListEligibleRoyalties(ctx, now, s.Cooldown)
	if err != nil {
		return nil, fmt.Errorf("list eligible royalties: %w", err)
	}

	items := make(domain.ItemList, 0, len(eligible))
	systemTotal := decimal.Zero
	for _, royalty := range eligible {
		split, ok := royalty.Splits.ForRecipient(recipientID)
		if !ok || !split.NetAmount.IsPositive() {
			continue
		}

		rate, err := s.Rates.Rate(ctx, s.SystemCurrency, user.PayoutCurrency, royalty.PeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("convert royalty %s: %w", royalty.ID, err)
		}

		items = append(items, domain.PayoutItem{
			RoyaltyID:              royalty.ID,
			NetAmount:              split.NetAmount,
			ExchangeRate:           rate,
			AmountInPayoutCurrency: domain.RoundToMinorUnit(split.NetAmount.Mul(rate), user.PayoutCurrency),
		})
		systemTotal = systemTotal.Add(split.NetAmount)
	}

	if len(items) == 0 {
		return &AggregationResult{Skipped: true, Reason: "no eligible royalties"}, nil
	}

	amount := items.Sum()
	if amount.LessThan(minimum) {
		s.Logger.Info("Aggregation below minimum, skipping",
			"recipient_id", recipientID, "amount", amount, "minimum", minimum)
		return &AggregationResult{Skipped: true, Reason: "below minimum payout amount"}, nil
	}

	payout := &domain.Payout{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		Currency:    user.PayoutCurrency,
		Amount:      amount,
		FeeAmount:   decimal.Zero,
		TaxAmount:   decimal.Zero,
		NetAmount:   amount,
		Method:      user.PayoutMethod,
		Status:      domain.PayoutStatusDraft,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := payout.Validate(); err != nil {
		return nil, err
	}

	delta := domain.StatsDelta{
		AvailableBalance: systemTotal.Neg(),
		PendingPayouts:   systemTotal,
	}
	if err := s.Repo.CreateDraftPayout(ctx, payout, delta); err != nil {
		return nil, err
	}

	s.Logger.WithPayout(payout.ID, recipientID).Info("Draft payout created",
		"amount", payout.Amount, "currency", payout.Currency, "royalties", len(items))
	return &AggregationResult{Payout: payout}, nil
}

// RunAll aggregates every recipient with eligible royalties. A conflict on
// one recipient (a concurrent run claimed the royalties first) is retried
// once with a refreshed eligible set; other failures are logged and do not
// stop the batch.
func (s *AggregationService) RunAll(ctx context.Context) ([]*AggregationResult, error) {
	now := time.Now().UTC()
	eligible, err := s.Repo.ListEligibleRoyalties(ctx, now, s.Cooldown)
	if err != nil {
		return nil, fmt.Errorf("list eligible royalties: %w", err)
	}

	recipients := make([]string, 0)
	seen := make(map[string]bool)
	for _, royalty := range eligible {
		for _, split := range royalty.Splits {
			if !seen[split.RecipientID] {
				seen[split.RecipientID] = true
				recipients = append(recipients, split.RecipientID)
			}
		}
	}

	results := make([]*AggregationResult, 0, len(recipients))
	for _, recipientID := range recipients {
		result, err := s.Run(ctx, recipientID)
		if errors.Is(err, domain.ErrConflict) {
			result, err = s.Run(ctx, recipientID)
		}
		if err != nil {
			s.Logger.Error("Aggregation failed", "recipient_id", recipientID, "error", err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}
