package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusDraft      PayoutStatus = "draft"
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
	PayoutStatusReversed   PayoutStatus = "reversed"
)

// payoutTransitions is the closed transition table for the payout lifecycle.
var payoutTransitions = map[PayoutStatus]map[PayoutStatus]bool{
	PayoutStatusDraft: {
		PayoutStatusPending:   true,
		PayoutStatusCancelled: true,
	},
	PayoutStatusPending: {
		PayoutStatusProcessing: true,
		PayoutStatusFailed:     true,
		PayoutStatusCancelled:  true,
	},
	PayoutStatusProcessing: {
		PayoutStatusPaid:      true,
		PayoutStatusFailed:    true,
		PayoutStatusCancelled: true,
	},
	PayoutStatusPaid: {
		PayoutStatusReversed: true,
	},
	PayoutStatusFailed:    {},
	PayoutStatusCancelled: {},
	PayoutStatusReversed:  {},
}

func (s PayoutStatus) Valid() bool {
	_, ok := payoutTransitions[s]
	return ok
}

// CanTransition reports whether s -> to is a legal payout status change.
func (s PayoutStatus) CanTransition(to PayoutStatus) bool {
	return payoutTransitions[s][to]
}

// Terminal reports whether no further transitions exist from s.
func (s PayoutStatus) Terminal() bool {
	return len(payoutTransitions[s]) == 0
}

// Live reports whether a payout in this status still claims its royalties.
// Transitions out of the live set must release the attachments.
func (s PayoutStatus) Live() bool {
	switch s {
	case PayoutStatusDraft, PayoutStatusPending, PayoutStatusProcessing, PayoutStatusPaid:
		return true
	}
	return false
}

// ReleasesRoyalties reports whether entering this status frees the
// contributing royalties for the next aggregation cycle.
func (s PayoutStatus) ReleasesRoyalties() bool {
	switch s {
	case PayoutStatusFailed, PayoutStatusCancelled, PayoutStatusReversed:
		return true
	}
	return false
}

// PayoutItem carries one royalty's contribution into a payout: the exchange
// rate used and the resulting amount in the payout currency.
type PayoutItem struct {
	RoyaltyID              string          `json:"royalty_id"`
	NetAmount              decimal.Decimal `json:"net_amount"`
	ExchangeRate           decimal.Decimal `json:"exchange_rate"`
	AmountInPayoutCurrency decimal.Decimal `json:"amount_in_payout_currency"`
}

// ItemList stores payout items as a JSON TEXT column. Append-only once the
// payout leaves draft.
type ItemList []PayoutItem

func (l ItemList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	return json.Marshal(l)
}

func (l *ItemList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
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
		*l = nil
		return nil
	}

	return json.Unmarshal(data, l)
}

// RoyaltyIDs returns the royalty identifiers referenced by the items.
func (l ItemList) RoyaltyIDs() []string {
	ids := make([]string, 0, len(l))
	for _, item := range l {
		ids = append(ids, item.RoyaltyID)
	}
	return ids
}

// Sum returns the exact sum of item amounts in the payout currency.
func (l ItemList) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, item := range l {
		total = total.Add(item.AmountInPayoutCurrency)
	}
	return total
}

// Payout aggregates one or more processed royalties for a single recipient
// in a single currency. Immutable once paid, except for reversal.
type Payout struct {
	ID          string `json:"id" db:"id"`
	RecipientID string `json:"recipient_id" db:"recipient_id"`
	Currency    string `json:"currency" db:"currency"`

	Amount    decimal.Decimal `json:"amount" db:"amount"`
	FeeAmount decimal.Decimal `json:"fee_amount" db:"fee_amount"`
	TaxAmount decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	NetAmount decimal.Decimal `json:"net_amount" db:"net_amount"`

	Method PayoutMethod `json:"method" db:"method"`
	Status PayoutStatus `json:"status" db:"status"`
	Items  ItemList     `json:"items" db:"items"`

	PaymentReference *string    `json:"payment_reference,omitempty" db:"payment_reference"`
	PaymentDate      *time.Time `json:"payment_date,omitempty" db:"payment_date"`
	FailureReason    *string    `json:"failure_reason,omitempty" db:"failure_reason"`
	ReversedAt       *time.Time `json:"reversed_at,omitempty" db:"reversed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks field ranges and amount reconciliation against the items.
func (p *Payout) Validate() error {
	var errs ValidationErrors

	if p.RecipientID == "" {
		errs = append(errs, ValidationError{Field: "recipient_id", Message: "cannot be empty"})
	}
	if len(p.Currency) != 3 {
		errs = append(errs, ValidationError{Field: "currency", Message: "must be a 3-letter ISO code"})
	}
	if !p.Method.Valid() {
		errs = append(errs, ValidationError{Field: "method", Message: "must be one of: bank_transfer, paypal, crypto"})
	}
	if !p.Status.Valid() {
		errs = append(errs, ValidationError{Field: "status", Message: "unknown status"})
	}
	if len(p.Items) == 0 {
		errs = append(errs, ValidationError{Field: "items", Message: "cannot be empty"})
	}
	if p.FeeAmount.IsNegative() {
		errs = append(errs, ValidationError{Field: "fee_amount", Message: "cannot be negative"})
	}
	if p.TaxAmount.IsNegative() {
		errs = append(errs, ValidationError{Field: "tax_amount", Message: "cannot be negative"})
	}

	seen := make(map[string]bool, len(p.Items))
	for i, item := range p.Items {
		if item.RoyaltyID == "" {
			errs = append(errs, ValidationError{Field: itemField(i, "royalty_id"), Message: "cannot be empty"})
		}
		if seen[item.RoyaltyID] {
			errs = append(errs, ValidationError{Field: itemField(i, "royalty_id"), Message: "duplicate royalty"})
		}
		seen[item.RoyaltyID] = true
		if !item.ExchangeRate.IsPositive() {
			errs = append(errs, ValidationError{Field: itemField(i, "exchange_rate"), Message: "must be positive"})
		}
		if item.AmountInPayoutCurrency.IsNegative() {
			errs = append(errs, ValidationError{Field: itemField(i, "amount_in_payout_currency"), Message: "cannot be negative"})
		}
	}

	if !p.Amount.Equal(p.Items.Sum()) {
		errs = append(errs, ValidationError{Field: "amount", Message: "must equal the sum of item amounts"})
	}
	if !p.NetAmount.Equal(p.Amount.Sub(p.FeeAmount).Sub(p.TaxAmount)) {
		errs = append(errs, ValidationError{Field: "net_amount", Message: "must equal amount minus fees minus tax"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}
