// Package gateway executes payouts against an external payment provider.
package gateway

import (
	"context"
	"sync"

	"github.com/tonearm/royaltyd/internal/domain"
)

// Result reports the outcome of one payment execution attempt.
type Result struct {
	// Accepted is true when the provider confirmed the payment.
	Accepted bool
	// Reference is the provider's payment reference, set when accepted.
	Reference string
	// Reason describes a rejection, set when not accepted.
	Reason string
}

// PaymentGateway executes a payout and returns the provider's decision. A
// returned error means the outcome is unknown (transport failure); a
// rejection is a successful call with Accepted=false.
type PaymentGateway interface {
	Execute(ctx context.Context, payout *domain.Payout) (Result, error)
}

// Mock is an in-memory gateway for tests. By default every payment is
// accepted with a generated reference.
type Mock struct {
	mu       sync.Mutex
	executed []string
	// RejectWith, when non-empty, rejects every payment with this reason.
	RejectWith string
	// Err, when set, is returned from every call.
	Err error
}

func (m *Mock) Execute(_ context.Context, payout *domain.Payout) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return Result{}, m.Err
	}
	m.executed = append(m.executed, payout.ID)
	if m.RejectWith != "" {
		return Result{Reason: m.RejectWith}, nil
	}
	return Result{Accepted: true, Reference: "mockpay_" + payout.ID}, nil
}

// Executed returns the payout IDs this mock has seen.
func (m *Mock) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.executed))
	copy(out, m.executed)
	return out
}
