package httpapp

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tonearm/royaltyd/internal/app"
	"github.com/tonearm/royaltyd/internal/domain"
)

type ingestRoyaltyRequest struct {
	TrackID        string          `json:"track_id"`
	StoreID        string          `json:"store_id"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`
	Quantity       int64           `json:"quantity"`
	UnitRate       decimal.Decimal `json:"unit_rate"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	SourceCurrency string          `json:"source_currency"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
}

func (req *ingestRoyaltyRequest) Validate() error {
	var errs domain.ValidationErrors
	if req.TrackID == "" {
		errs = append(errs, domain.ValidationError{Field: "track_id", Message: "cannot be empty"})
	}
	if req.StoreID == "" {
		errs = append(errs, domain.ValidationError{Field: "store_id", Message: "cannot be empty"})
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
		errs = append(errs, domain.ValidationError{Field: "period", Message: "period_start and period_end are required"})
	}
	if req.ExchangeRate.Sign() <= 0 {
		errs = append(errs, domain.ValidationError{Field: "exchange_rate", Message: "must be positive"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (req *ingestRoyaltyRequest) toInput() app.RoyaltyInput {
	return app.RoyaltyInput{
		TrackID:        req.TrackID,
		StoreID:        req.StoreID,
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		Quantity:       req.Quantity,
		UnitRate:       req.UnitRate,
		GrossAmount:    req.GrossAmount,
		SourceCurrency: req.SourceCurrency,
		ExchangeRate:   req.ExchangeRate,
		TaxAmount:      req.TaxAmount,
	}
}

type processRoyaltyRequest struct {
	Splits []struct {
		RecipientID     string          `json:"recipient_id"`
		Percentage      decimal.Decimal `json:"percentage"`
		AdvanceRecouped decimal.Decimal `json:"advance_recouped"`
		TaxAmount       decimal.Decimal `json:"tax_amount"`
	} `json:"splits"`
}

func (req *processRoyaltyRequest) toInputs() []app.SplitInput {
	inputs := make([]app.SplitInput, 0, len(req.Splits))
	for _, s := range req.Splits {
		inputs = append(inputs, app.SplitInput{
			RecipientID:     s.RecipientID,
			Percentage:      s.Percentage,
			AdvanceRecouped: s.AdvanceRecouped,
			TaxAmount:       s.TaxAmount,
		})
	}
	return inputs
}

type royaltyStatusRequest struct {
	Status domain.RoyaltyStatus `json:"status"`
}

type aggregationRequest struct {
	RecipientID string `json:"recipient_id"`
}

type payoutActionRequest struct {
	Reason string `json:"reason"`
}

type createUserRequest struct {
	Email               string              `json:"email"`
	Name                string              `json:"name"`
	Role                domain.Role         `json:"role"`
	PayoutMethod        domain.PayoutMethod `json:"payout_method"`
	PayoutCurrency      string              `json:"payout_currency"`
	MinimumPayoutAmount decimal.Decimal     `json:"minimum_payout_amount"`
}

type issueKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// issuedKeyResponse is the only place the plaintext key value appears.
type issuedKeyResponse struct {
	Key *domain.ApiKey `json:"key"`
}
