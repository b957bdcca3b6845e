package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tonearm/royaltyd/internal/domain"
)

func (db *DB) CreateRoyalty(ctx context.Context, royalty *domain.Royalty) error {
	query := `INSERT INTO royalties (id, track_id, store_id, period_start, period_end,
		quantity, unit_rate, gross_amount, source_currency, exchange_rate,
		amount, tax_amount, net_amount, splits, status, created_at, updated_at)
		VALUES (:id, :track_id, :store_id, :period_start, :period_end,
		:quantity, :unit_rate, :gross_amount, :source_currency, :exchange_rate,
		:amount, :tax_amount, :net_amount, :splits, :status, :created_at, :updated_at)`

	_, err := db.NamedExecContext(ctx, query, royalty)
	return err
}

func (db *DB) GetRoyalty(ctx context.Context, id string) (*domain.Royalty, error) {
	royalty := &domain.Royalty{}
	err := db.GetContext(ctx, royalty, `SELECT * FROM royalties WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return royalty, nil
}

func (db *DB) ListRoyalties(ctx context.Context, status domain.RoyaltyStatus, limit int) ([]*domain.Royalty, error) {
	var royalties []*domain.Royalty
	if status == "" {
		err := db.SelectContext(ctx, &royalties, `SELECT * FROM royalties ORDER BY created_at DESC LIMIT ?`, limit)
		return royalties, err
	}
	err := db.SelectContext(ctx, &royalties,
		`SELECT * FROM royalties WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status, limit)
	return royalties, err
}

// ListEligibleRoyalties returns processed royalties not claimed by any live
// payout and past any reversal cooldown. Recipient filtering happens in the
// aggregation layer because splits live in a JSON column.
func (db *DB) ListEligibleRoyalties(ctx context.Context, now time.Time, cooldown time.Duration) ([]*domain.Royalty, error) {
	cutoff := now.Add(-cooldown)
	var royalties []*domain.Royalty
	err := db.SelectContext(ctx, &royalties, `SELECT * FROM royalties
		WHERE status = ? AND attached_payout_id IS NULL
		AND (reversed_at IS NULL OR reversed_at <= ?)
		ORDER BY period_end ASC`,
		domain.RoyaltyStatusProcessed, cutoff)
	return royalties, err
}

// ProcessRoyalty stores the computed splits, moves the royalty from
// pending to processed, and credits each recipient's earnings stats, all
// in one transaction.
func (db *DB) ProcessRoyalty(ctx context.Context, id string, splits domain.SplitList, credits map[string]domain.StatsDelta) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := markRoyaltyProcessed(ctx, tx, id, splits); err != nil {
			return err
		}
		for userID, delta := range credits {
			if err := AdjustUserStats(ctx, tx, userID, delta); err != nil {
				return err
			}
		}
		return nil
	})
}

// markRoyaltyProcessed is conditional on the pending status, so concurrent
// processing attempts cannot double-apply.
func markRoyaltyProcessed(ctx context.Context, tx *sqlx.Tx, id string, splits domain.SplitList) error {
	res, err := tx.ExecContext(ctx, `UPDATE royalties
		SET splits = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		splits, domain.RoyaltyStatusProcessed, time.Now().UTC(), id, domain.RoyaltyStatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM royalties WHERE id = ?`, id); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

func (db *DB) UpdateRoyaltyStatus(ctx context.Context, id string, from, to domain.RoyaltyStatus) error {
	if !from.CanTransition(to) {
		return domain.ValidationErrors{{Field: "status", Message: string(from) + " cannot become " + string(to)}}
	}
	res, err := db.ExecContext(ctx, `UPDATE royalties SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM royalties WHERE id = ?`, id); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

// attachRoyalty claims one royalty for a payout with a conditional write.
// Two concurrent aggregation runs cannot both succeed: the second sees
// zero rows affected and the whole payout rolls back with ErrConflict.
func attachRoyalty(ctx context.Context, tx *sqlx.Tx, royaltyID, payoutID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE royalties
		SET attached_payout_id = ?, updated_at = ?
		WHERE id = ? AND status = ? AND attached_payout_id IS NULL`,
		payoutID, time.Now().UTC(), royaltyID, domain.RoyaltyStatusProcessed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

// releaseRoyalties frees every royalty claimed by a payout. The condition
// on attached_payout_id makes release idempotent: a retried transition
// cannot double-release royalties already claimed elsewhere. When the
// payout was reversed, the royalties are stamped for the cooldown window.
func releaseRoyalties(ctx context.Context, tx *sqlx.Tx, payoutID string, reversedAt *time.Time) error {
	var err error
	if reversedAt != nil {
		_, err = tx.ExecContext(ctx, `UPDATE royalties
			SET attached_payout_id = NULL, reversed_at = ?, updated_at = ?
			WHERE attached_payout_id = ?`,
			reversedAt, time.Now().UTC(), payoutID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE royalties
			SET attached_payout_id = NULL, updated_at = ?
			WHERE attached_payout_id = ?`,
			time.Now().UTC(), payoutID)
	}
	return err
}

// CountAttached reports how many royalties a payout still claims.
func (db *DB) CountAttached(ctx context.Context, payoutID string) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM royalties WHERE attached_payout_id = ?`, payoutID)
	return count, err
}
