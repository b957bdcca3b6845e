package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tonearm/royaltyd/internal/domain"
)

// CreateDraftPayout persists a draft payout and claims its royalties in a
// single transaction. statsDelta moves the recipient's available balance
// into pending payouts alongside the claim. If any royalty is already
// claimed, everything rolls back and ErrConflict is returned so the caller
// can retry with a refreshed eligible set.
func (db *DB) CreateDraftPayout(ctx context.Context, payout *domain.Payout, statsDelta domain.StatsDelta) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `INSERT INTO payouts (id, recipient_id, currency, amount, fee_amount, tax_amount,
			net_amount, method, status, items, created_at, updated_at)
			VALUES (:id, :recipient_id, :currency, :amount, :fee_amount, :tax_amount,
			:net_amount, :method, :status, :items, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, payout); err != nil {
			return err
		}

		for _, royaltyID := range payout.Items.RoyaltyIDs() {
			if err := attachRoyalty(ctx, tx, royaltyID, payout.ID); err != nil {
				return fmt.Errorf("attach royalty %s: %w", royaltyID, err)
			}
		}

		return AdjustUserStats(ctx, tx, payout.RecipientID, statsDelta)
	})
}

func (db *DB) GetPayout(ctx context.Context, id string) (*domain.Payout, error) {
	payout := &domain.Payout{}
	err := db.GetContext(ctx, payout, `SELECT * FROM payouts WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func (db *DB) ListPayouts(ctx context.Context, recipientID string, limit int) ([]*domain.Payout, error) {
	var payouts []*domain.Payout
	if recipientID == "" {
		err := db.SelectContext(ctx, &payouts, `SELECT * FROM payouts ORDER BY created_at DESC LIMIT ?`, limit)
		return payouts, err
	}
	err := db.SelectContext(ctx, &payouts,
		`SELECT * FROM payouts WHERE recipient_id = ? ORDER BY created_at DESC LIMIT ?`, recipientID, limit)
	return payouts, err
}

// ListStuckProcessing returns payouts sitting in processing since before
// the deadline, candidates for the recovery sweep.
func (db *DB) ListStuckProcessing(ctx context.Context, deadline time.Time) ([]*domain.Payout, error) {
	var payouts []*domain.Payout
	err := db.SelectContext(ctx, &payouts,
		`SELECT * FROM payouts WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC`,
		domain.PayoutStatusProcessing, deadline)
	return payouts, err
}

// TransitionPayout moves a payout from one status to another, applying the
// payout's current payment fields. The status condition is the optimistic
// guard; a lost race returns ErrConflict. Transitions that release
// royalties do so in the same transaction, and the attachment column, not
// the payout record, is the source of truth for what gets released.
func (db *DB) TransitionPayout(ctx context.Context, payout *domain.Payout, from domain.PayoutStatus, statsDelta domain.StatsDelta) error {
	if !from.CanTransition(payout.Status) {
		return domain.ValidationErrors{{Field: "status", Message: string(from) + " cannot become " + string(payout.Status)}}
	}

	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE payouts
			SET status = ?, payment_reference = ?, payment_date = ?, failure_reason = ?, reversed_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			payout.Status, payout.PaymentReference, payout.PaymentDate,
			payout.FailureReason, payout.ReversedAt, time.Now().UTC(),
			payout.ID, from)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists int
			if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM payouts WHERE id = ?`, payout.ID); err != nil {
				return err
			}
			if exists == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrConflict
		}

		if payout.Status.ReleasesRoyalties() {
			if err := releaseRoyalties(ctx, tx, payout.ID, payout.ReversedAt); err != nil {
				return err
			}
		}

		if !statsDelta.TotalEarnings.IsZero() || !statsDelta.AvailableBalance.IsZero() || !statsDelta.PendingPayouts.IsZero() {
			return AdjustUserStats(ctx, tx, payout.RecipientID, statsDelta)
		}
		return nil
	})
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
