package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RoyaltyStatus string

const (
	RoyaltyStatusPending   RoyaltyStatus = "pending"
	RoyaltyStatusProcessed RoyaltyStatus = "processed"
	RoyaltyStatusHold      RoyaltyStatus = "hold"
	RoyaltyStatusDisputed  RoyaltyStatus = "disputed"
	RoyaltyStatusVoid      RoyaltyStatus = "void"
)

// splitReconcileTolerance is one hundredth, the smallest step in
// system-currency amounts. Ingestion and split computation both round to
// two decimal places, independent of the configured system currency, so
// split totals may differ from the exact percentage share by at most one
// step.
var splitReconcileTolerance = decimal.New(1, -2)

// royaltyTransitions is the closed transition table. Disputed and void are
// absorbing; only pending royalties may become processed.
var royaltyTransitions = map[RoyaltyStatus]map[RoyaltyStatus]bool{
	RoyaltyStatusPending: {
		RoyaltyStatusProcessed: true,
		RoyaltyStatusHold:      true,
		RoyaltyStatusDisputed:  true,
		RoyaltyStatusVoid:      true,
	},
	RoyaltyStatusHold: {
		RoyaltyStatusPending: true,
		RoyaltyStatusVoid:    true,
	},
	RoyaltyStatusProcessed: {},
	RoyaltyStatusDisputed:  {},
	RoyaltyStatusVoid:      {},
}

func (s RoyaltyStatus) Valid() bool {
	_, ok := royaltyTransitions[s]
	return ok
}

// CanTransition reports whether s -> to is a legal royalty status change.
func (s RoyaltyStatus) CanTransition(to RoyaltyStatus) bool {
	return royaltyTransitions[s][to]
}

// RoyaltySplit is one recipient's percentage share of a royalty's earnings.
type RoyaltySplit struct {
	RecipientID string          `json:"recipient_id"`
	Percentage  decimal.Decimal `json:"percentage"`
	// Amounts are in the system currency, computed by the processing step.
	Amount          decimal.Decimal `json:"amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	AdvanceRecouped decimal.Decimal `json:"advance_recouped"`
	NetAmount       decimal.Decimal `json:"net_amount"`
}

// SplitList stores royalty splits as a JSON TEXT column.
type SplitList []RoyaltySplit

func (s SplitList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *SplitList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}

	if len(data) == 0 || string(data) == "null" {
		*s = nil
		return nil
	}

	return json.Unmarshal(data, s)
}

// ForRecipient returns the split owed to one recipient, if any.
func (s SplitList) ForRecipient(recipientID string) (RoyaltySplit, bool) {
	for _, split := range s {
		if split.RecipientID == recipientID {
			return split, true
		}
	}
	return RoyaltySplit{}, false
}

// Royalty is one unit of earned revenue: one track, one store, one
// reporting period. Created pending from an ingested store report; the
// processing step computes splits and sets it processed; a payout then
// claims it via AttachedPayoutID.
type Royalty struct {
	ID          string    `json:"id" db:"id"`
	TrackID     string    `json:"track_id" db:"track_id"`
	StoreID     string    `json:"store_id" db:"store_id"`
	PeriodStart time.Time `json:"period_start" db:"period_start"`
	PeriodEnd   time.Time `json:"period_end" db:"period_end"`

	Quantity int64           `json:"quantity" db:"quantity"`
	UnitRate decimal.Decimal `json:"unit_rate" db:"unit_rate"`

	GrossAmount    decimal.Decimal `json:"gross_amount" db:"gross_amount"`
	SourceCurrency string          `json:"source_currency" db:"source_currency"`
	// ExchangeRate converts the gross amount into the system currency.
	ExchangeRate decimal.Decimal `json:"exchange_rate" db:"exchange_rate"`
	// Amount, TaxAmount and NetAmount are in the system currency.
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	TaxAmount decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	NetAmount decimal.Decimal `json:"net_amount" db:"net_amount"`

	Splits SplitList     `json:"splits" db:"splits"`
	Status RoyaltyStatus `json:"status" db:"status"`

	// AttachedPayoutID is set while a live payout claims this royalty.
	AttachedPayoutID *string `json:"attached_payout_id,omitempty" db:"attached_payout_id"`
	// ReversedAt marks royalties released by a payout reversal; they stay
	// out of aggregation for a cooldown window.
	ReversedAt *time.Time `json:"reversed_at,omitempty" db:"reversed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks field ranges and amount reconciliation. Splits are only
// validated when present; pending royalties have none yet.
func (r *Royalty) Validate() error {
	var errs ValidationErrors

	if r.TrackID == "" {
		errs = append(errs, ValidationError{Field: "track_id", Message: "cannot be empty"})
	}
	if r.StoreID == "" {
		errs = append(errs, ValidationError{Field: "store_id", Message: "cannot be empty"})
	}
	if r.PeriodEnd.Before(r.PeriodStart) {
		errs = append(errs, ValidationError{Field: "period_end", Message: "cannot precede period_start"})
	}
	if r.Quantity < 0 {
		errs = append(errs, ValidationError{Field: "quantity", Message: "cannot be negative"})
	}
	if len(r.SourceCurrency) != 3 {
		errs = append(errs, ValidationError{Field: "source_currency", Message: "must be a 3-letter ISO code"})
	}
	if r.GrossAmount.IsNegative() {
		errs = append(errs, ValidationError{Field: "gross_amount", Message: "cannot be negative"})
	}
	if !r.ExchangeRate.IsPositive() {
		errs = append(errs, ValidationError{Field: "exchange_rate", Message: "must be positive"})
	}
	if r.TaxAmount.IsNegative() {
		errs = append(errs, ValidationError{Field: "tax_amount", Message: "cannot be negative"})
	}
	if !r.NetAmount.Equal(r.Amount.Sub(r.TaxAmount)) {
		errs = append(errs, ValidationError{Field: "net_amount", Message: "must equal amount minus tax_amount"})
	}
	if !r.Status.Valid() {
		errs = append(errs, ValidationError{Field: "status", Message: "unknown status"})
	}
	if len(r.Splits) > 0 {
		errs = append(errs, r.validateSplits()...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r *Royalty) validateSplits() ValidationErrors {
	var errs ValidationErrors

	total := decimal.Zero
	seen := make(map[string]bool, len(r.Splits))
	allocated := decimal.Zero
	for i, split := range r.Splits {
		if split.RecipientID == "" {
			errs = append(errs, ValidationError{Field: splitField(i, "recipient_id"), Message: "cannot be empty"})
		}
		if seen[split.RecipientID] {
			errs = append(errs, ValidationError{Field: splitField(i, "recipient_id"), Message: "duplicate recipient"})
		}
		seen[split.RecipientID] = true
		if !split.Percentage.IsPositive() || split.Percentage.GreaterThan(decimal.NewFromInt(100)) {
			errs = append(errs, ValidationError{Field: splitField(i, "percentage"), Message: "must be in (0, 100]"})
		}
		want := split.Amount.Sub(split.TaxAmount).Sub(split.AdvanceRecouped)
		if !split.NetAmount.Equal(want) {
			errs = append(errs, ValidationError{Field: splitField(i, "net_amount"), Message: "must equal amount minus tax minus recouped advance"})
		}
		total = total.Add(split.Percentage)
		allocated = allocated.Add(split.Amount)
	}

	if total.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, ValidationError{Field: "splits", Message: "split percentages exceed 100"})
	}

	// Split amounts must reconcile against the allocated share of the
	// royalty net within splitReconcileTolerance. A percentage total
	// below 100 leaves the remainder with the platform.
	allowed := r.NetAmount.Mul(total).Div(decimal.NewFromInt(100))
	if allocated.Sub(allowed).Abs().GreaterThan(splitReconcileTolerance) {
		errs = append(errs, ValidationError{Field: "splits", Message: "split amounts do not reconcile with royalty net amount"})
	}

	return errs
}

func splitField(i int, name string) string {
	return fmt.Sprintf("splits[%d].%s", i, name)
}

// Eligible reports whether the royalty can be picked up by payout
// aggregation at time now: processed, unattached, and past any reversal
// cooldown.
func (r *Royalty) Eligible(now time.Time, cooldown time.Duration) bool {
	if r.Status != RoyaltyStatusProcessed || r.AttachedPayoutID != nil {
		return false
	}
	if r.ReversedAt != nil && now.Before(r.ReversedAt.Add(cooldown)) {
		return false
	}
	return true
}
