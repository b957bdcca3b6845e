package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tonearm/royaltyd/internal/domain"
)

func (db *DB) CreateUser(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (id, email, name, role, status, verified,
		total_earnings, available_balance, pending_payouts,
		payout_method, payout_currency, minimum_payout_amount,
		created_at, updated_at)
		VALUES (:id, :email, :name, :role, :status, :verified,
		:total_earnings, :available_balance, :pending_payouts,
		:payout_method, :payout_currency, :minimum_payout_amount,
		:created_at, :updated_at)`

	_, err := db.NamedExecContext(ctx, query, user)
	return err
}

func (db *DB) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user := &domain.User{}
	err := db.GetContext(ctx, user, `SELECT * FROM users WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (db *DB) ListUsers(ctx context.Context, limit int) ([]*domain.User, error) {
	var users []*domain.User
	err := db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY created_at DESC LIMIT ?`, limit)
	return users, err
}

func (db *DB) UpdateUserStatus(ctx context.Context, id string, status domain.UserStatus) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AdjustUserStats applies a stats delta inside tx, re-validating the
// earnings invariant against the stored row. Runs within the caller's
// transaction so the stats move with the financial event that causes them.
func AdjustUserStats(ctx context.Context, tx *sqlx.Tx, userID string, delta domain.StatsDelta) error {
	user := &domain.User{}
	err := tx.GetContext(ctx, user, `SELECT * FROM users WHERE id = ?`, userID)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := user.ApplyStats(delta); err != nil {
		return fmt.Errorf("stats adjustment for user %s: %w", userID, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE users
		SET total_earnings = ?, available_balance = ?, pending_payouts = ?, updated_at = ?
		WHERE id = ?`,
		user.TotalEarnings, user.AvailableBalance, user.PendingPayouts, time.Now().UTC(), userID)
	return err
}
