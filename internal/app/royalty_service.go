package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tonearm/royaltyd/internal/domain"
	"github.com/tonearm/royaltyd/internal/logger"
	"github.com/tonearm/royaltyd/internal/store"
)

// RoyaltyService ingests store-report lines as pending royalties and runs
// the processing step that computes splits and credits recipients.
type RoyaltyService struct {
	Repo   *store.DB
	Logger *logger.Logger
}

func NewRoyaltyService(repo *store.DB, log *logger.Logger) *RoyaltyService {
	return &RoyaltyService{Repo: repo, Logger: log.WithComponent("royalties")}
}

// RoyaltyInput is one ingested store-report line.
type RoyaltyInput struct {
	TrackID        string
	StoreID        string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Quantity       int64
	UnitRate       decimal.Decimal
	GrossAmount    decimal.Decimal
	SourceCurrency string
	ExchangeRate   decimal.Decimal
	TaxAmount      decimal.Decimal
}

// Ingest creates a pending royalty, converting the gross amount into the
// system currency.
func (s *RoyaltyService) Ingest(ctx context.Context, input RoyaltyInput) (*domain.Royalty, error) {
	now := time.Now().UTC()
	amount := input.GrossAmount.Mul(input.ExchangeRate).Round(2)

	royalty := &domain.Royalty{
		ID:             uuid.New().String(),
		TrackID:        input.TrackID,
		StoreID:        input.StoreID,
		PeriodStart:    input.PeriodStart,
		PeriodEnd:      input.PeriodEnd,
		Quantity:       input.Quantity,
		UnitRate:       input.UnitRate,
		GrossAmount:    input.GrossAmount,
		SourceCurrency: input.SourceCurrency,
		ExchangeRate:   input.ExchangeRate,
		Amount:         amount,
		TaxAmount:      input.TaxAmount,
		NetAmount:      amount.Sub(input.TaxAmount),
		Status:         domain.RoyaltyStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := royalty.Validate(); err != nil {
		return nil, err
	}
	if err := s.Repo.CreateRoyalty(ctx, royalty); err != nil {
		return nil, fmt.Errorf("create royalty: %w", err)
	}

	s.Logger.Info("Royalty ingested", "royalty_id", royalty.ID, "track_id", royalty.TrackID, "store_id", royalty.StoreID, "net", royalty.NetAmount)
	return royalty, nil
}

// SplitInput assigns one recipient a percentage share, with an optional
// advance balance to recoup out of that share.
type SplitInput struct {
	RecipientID     string
	Percentage      decimal.Decimal
	AdvanceRecouped decimal.Decimal
	TaxAmount       decimal.Decimal
}

// Process computes split amounts from the requested percentages and moves
// the royalty from pending to processed, crediting each recipient's
// earnings stats in the same transaction.
func (s *RoyaltyService) Process(ctx context.Context, royaltyID string, inputs []SplitInput) (*domain.Royalty, error) {
	royalty, err := s.Repo.GetRoyalty(ctx, royaltyID)
	if err != nil {
		return nil, err
	}
	if !royalty.Status.CanTransition(domain.RoyaltyStatusProcessed) {
		return nil, domain.ValidationErrors{{Field: "status", Message: string(royalty.Status) + " royalties cannot be processed"}}
	}

	splits, err := ComputeSplits(royalty.NetAmount, inputs)
	if err != nil {
		return nil, err
	}

	royalty.Splits = splits
	if err := royalty.Validate(); err != nil {
		return nil, err
	}

	credits := make(map[string]domain.StatsDelta, len(splits))
	for _, split := range splits {
		credits[split.RecipientID] = domain.StatsDelta{
			TotalEarnings:    split.NetAmount,
			AvailableBalance: split.NetAmount,
		}
	}

	if err := s.Repo.ProcessRoyalty(ctx, royaltyID, splits, credits); err != nil {
		return nil, err
	}
	royalty.Status = domain.RoyaltyStatusProcessed

	s.Logger.Info("Royalty processed", "royalty_id", royaltyID, "splits", len(splits))
	return royalty, nil
}

// ComputeSplits allocates the royalty net amount across recipients by
// percentage. Each share is rounded to the minor unit; any rounding
// remainder goes to the largest share so the allocation reconciles
// exactly.
func ComputeSplits(netAmount decimal.Decimal, inputs []SplitInput) (domain.SplitList, error) {
	if len(inputs) == 0 {
		return nil, domain.ValidationErrors{{Field: "splits", Message: "cannot be empty"}}
	}

	hundred := decimal.NewFromInt(100)
	totalPct := decimal.Zero
	for _, in := range inputs {
		totalPct = totalPct.Add(in.Percentage)
	}
	if totalPct.GreaterThan(hundred) {
		return nil, domain.ValidationErrors{{Field: "splits", Message: "split percentages exceed 100"}}
	}

	splits := make(domain.SplitList, 0, len(inputs))
	allocated := decimal.Zero
	largest := 0
	for i, in := range inputs {
		share := netAmount.Mul(in.Percentage).Div(hundred).Round(2)
		splits = append(splits, domain.RoyaltySplit{
			RecipientID:     in.RecipientID,
			Percentage:      in.Percentage,
			Amount:          share,
			TaxAmount:       in.TaxAmount,
			AdvanceRecouped: in.AdvanceRecouped,
		})
		allocated = allocated.Add(share)
		if in.Percentage.GreaterThan(inputs[largest].Percentage) {
			largest = i
		}
	}

	// Rounding remainder between the exact allocation and the rounded
	// shares lands on the largest share.
	exact := netAmount.Mul(totalPct).Div(hundred).Round(2)
	remainder := exact.Sub(allocated)
	if !remainder.IsZero() {
		splits[largest].Amount = splits[largest].Amount.Add(remainder)
	}

	for i := range splits {
		splits[i].NetAmount = splits[i].Amount.Sub(splits[i].TaxAmount).Sub(splits[i].AdvanceRecouped)
		if splits[i].NetAmount.IsNegative() {
			return nil, domain.ValidationErrors{{
				Field:   fmt.Sprintf("splits[%d]", i),
				Message: "tax and recouped advance exceed the split amount",
			}}
		}
	}

	return splits, nil
}

// UpdateStatus applies a manual royalty status change (hold, dispute, void,
// release from hold). Processing must go through Process.
func (s *RoyaltyService) UpdateStatus(ctx context.Context, royaltyID string, to domain.RoyaltyStatus) error {
	if to == domain.RoyaltyStatusProcessed {
		return domain.ValidationErrors{{Field: "status", Message: "use the processing step to mark royalties processed"}}
	}
	royalty, err := s.Repo.GetRoyalty(ctx, royaltyID)
	if err != nil {
		return err
	}
	if err := s.Repo.UpdateRoyaltyStatus(ctx, royaltyID, royalty.Status, to); err != nil {
		return err
	}
	s.Logger.Info("Royalty status changed", "royalty_id", royaltyID, "from", royalty.Status, "to", to)
	return nil
}

func (s *RoyaltyService) Get(ctx context.Context, id string) (*domain.Royalty, error) {
	return s.Repo.GetRoyalty(ctx, id)
}

func (s *RoyaltyService) List(ctx context.Context, status domain.RoyaltyStatus, limit int) ([]*domain.Royalty, error) {
	return s.Repo.ListRoyalties(ctx, status, limit)
}
