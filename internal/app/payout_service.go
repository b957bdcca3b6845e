package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tonearm/royaltyd/internal/domain"
	"github.com/tonearm/royaltyd/internal/gateway"
	"github.com/tonearm/royaltyd/internal/logger"
	"github.com/tonearm/royaltyd/internal/store"
)

// PayoutService drives payouts through their status machine and executes
// payments against the gateway.
type PayoutService struct {
	Repo    *store.DB
	Gateway gateway.PaymentGateway
	Logger  *logger.Logger
}

func NewPayoutService(repo *store.DB, gw gateway.PaymentGateway, log *logger.Logger) *PayoutService {
	return &PayoutService{Repo: repo, Gateway: gw, Logger: log.WithComponent("payouts")}
}

func (s *PayoutService) Get(ctx context.Context, id string) (*domain.Payout, error) {
	return s.Repo.GetPayout(ctx, id)
}

func (s *PayoutService) List(ctx context.Context, recipientID string, limit int) ([]*domain.Payout, error) {
	return s.Repo.ListPayouts(ctx, recipientID, limit)
}

// Submit moves a draft payout into pending, ready for payment.
func (s *PayoutService) Submit(ctx context.Context, id string) (*domain.Payout, error) {
	payout, err := s.Repo.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	from := payout.Status
	payout.Status = domain.PayoutStatusPending
	if err := s.Repo.TransitionPayout(ctx, payout, from, domain.StatsDelta{}); err != nil {
		return nil, err
	}
	s.Logger.WithPayout(payout.ID, payout.RecipientID).Info("Payout submitted")
	return payout, nil
}

// Cancel cancels a payout that has not been paid. The contributing
// royalties are released and the recipient's pending balance moves back
// to available.
func (s *PayoutService) Cancel(ctx context.Context, id string, reason string) (*domain.Payout, error) {
	payout, err := s.Repo.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}

	from := payout.Status
	payout.Status = domain.PayoutStatusCancelled
	if reason != "" {
		payout.FailureReason = &reason
	}

	systemNet := systemNetOf(payout)
	delta := domain.StatsDelta{
		AvailableBalance: systemNet,
		PendingPayouts:   systemNet.Neg(),
	}
	if err := s.Repo.TransitionPayout(ctx, payout, from, delta); err != nil {
		return nil, err
	}
	s.Logger.WithPayout(payout.ID, payout.RecipientID).Info("Payout cancelled", "reason", reason)
	return payout, nil
}

// Execute runs the payment for a pending payout: pending -> processing,
// gateway call, then paid or failed. A transport error leaves the payout
// in processing for the recovery sweep; the gateway call is idempotent on
// the payout ID, so re-driving it cannot pay twice.
func (s *PayoutService) Execute(ctx context.Context, id string) (*domain.Payout, error) {
	payout, err := s.Repo.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}

	from := payout.Status
	payout.Status = domain.PayoutStatusProcessing
	if err := s.Repo.TransitionPayout(ctx, payout, from, domain.StatsDelta{}); err != nil {
		return nil, err
	}

	return s.settle(ctx, payout)
}

// settle calls the gateway for a payout in processing and records the
// outcome.
func (s *PayoutService) settle(ctx context.Context, payout *domain.Payout) (*domain.Payout, error) {
	log := s.Logger.WithPayout(payout.ID, payout.RecipientID)

	result, err := s.Gateway.Execute(ctx, payout)
	if err != nil {
		log.Error("Payment outcome unknown, leaving in processing", "error", err)
		return payout, err
	}

	systemNet := systemNetOf(payout)
	now := time.Now().UTC()

	if result.Accepted {
		payout.Status = domain.PayoutStatusPaid
		payout.PaymentReference = &result.Reference
		payout.PaymentDate = &now
		delta := domain.StatsDelta{PendingPayouts: systemNet.Neg()}
		if err := s.Repo.TransitionPayout(ctx, payout, domain.PayoutStatusProcessing, delta); err != nil {
			return nil, err
		}
		log.Info("Payout paid", "reference", result.Reference)
		return payout, nil
	}

	payout.Status = domain.PayoutStatusFailed
	payout.FailureReason = &result.Reason
	delta := domain.StatsDelta{
		AvailableBalance: systemNet,
		PendingPayouts:   systemNet.Neg(),
	}
	if err := s.Repo.TransitionPayout(ctx, payout, domain.PayoutStatusProcessing, delta); err != nil {
		return nil, err
	}
	log.Warn("Payout failed", "reason", result.Reason)
	return payout, nil
}

// Reverse claws back a paid payout. The royalties are released with a
// reversal stamp so aggregation leaves them alone for the cooldown
// window, and the clawed-back funds return to the available balance.
func (s *PayoutService) Reverse(ctx context.Context, id string, reason string) (*domain.Payout, error) {
	payout, err := s.Repo.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}

	from := payout.Status
	now := time.Now().UTC()
	payout.Status = domain.PayoutStatusReversed
	payout.ReversedAt = &now
	if reason != "" {
		payout.FailureReason = &reason
	}

	delta := domain.StatsDelta{AvailableBalance: systemNetOf(payout)}
	if err := s.Repo.TransitionPayout(ctx, payout, from, delta); err != nil {
		return nil, err
	}
	s.Logger.WithPayout(payout.ID, payout.RecipientID).Warn("Payout reversed", "reason", reason)
	return payout, nil
}

// RecoverStuck re-drives payouts left in processing past the deadline,
// usually after a crash or a gateway timeout. The attachment state and the
// gateway's idempotency on the payout ID make the re-drive safe.
func (s *PayoutService) RecoverStuck(ctx context.Context, deadline time.Duration) (int, error) {
	stuck, err := s.Repo.ListStuckProcessing(ctx, time.Now().UTC().Add(-deadline))
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, payout := range stuck {
		if _, err := s.settle(ctx, payout); err != nil {
			s.Logger.Error("Recovery attempt failed", "payout_id", payout.ID, "error", err)
			continue
		}
		recovered++
	}
	return recovered, nil
}

// systemNetOf sums the items' net amounts in the system currency, the
// figure used for recipient stats adjustments.
func systemNetOf(payout *domain.Payout) decimal.Decimal {
	total := decimal.Zero
	for _, item := range payout.Items {
		total = total.Add(item.NetAmount)
	}
	return total
}
