// Package fx supplies exchange rates for converting between currencies.
package fx

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateSource looks up the exchange rate from one currency to another on a
// given date.
type RateSource interface {
	Rate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error)
}

// Static is an in-memory rate table, used in tests and as a pinned-rate
// deployment mode. Rates are keyed by currency pair, ignoring the date.
type Static struct {
	rates map[string]decimal.Decimal
}

func NewStatic() *Static {
	return &Static{rates: make(map[string]decimal.Decimal)}
}

// Set registers the rate for a currency pair. The identity rate for equal
// currencies is implicit.
func (s *Static) Set(from, to string, rate decimal.Decimal) *Static {
	s.rates[from+"/"+to] = rate
	return s
}

func (s *Static) Rate(_ context.Context, from, to string, _ time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := s.rates[from+"/"+to]
	if !ok {
		return decimal.Zero, &RateUnavailableError{From: from, To: to}
	}
	return rate, nil
}

// RateUnavailableError indicates no rate exists for a currency pair.
type RateUnavailableError struct {
	From string
	To   string
}

func (e *RateUnavailableError) Error() string {
	return "exchange rate unavailable for " + e.From + "/" + e.To
}
