package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/tonearm/royaltyd/internal/domain"
)

func (db *DB) CreateApiKey(ctx context.Context, key *domain.ApiKey) error {
	query := `INSERT INTO api_keys (id, user_id, name, key, scopes, expires_at, active, created_at)
		VALUES (:id, :user_id, :name, :key, :scopes, :expires_at, :active, :created_at)`

	_, err := db.NamedExecContext(ctx, query, key)
	return err
}

// GetApiKeyByValue looks a key up by its presented value.
func (db *DB) GetApiKeyByValue(ctx context.Context, value string) (*domain.ApiKey, error) {
	key := &domain.ApiKey{}
	err := db.GetContext(ctx, key, `SELECT * FROM api_keys WHERE key = ?`, value)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (db *DB) ListApiKeys(ctx context.Context, userID string) ([]*domain.ApiKey, error) {
	var keys []*domain.ApiKey
	err := db.SelectContext(ctx, &keys,
		`SELECT * FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`, userID)
	return keys, err
}

func (db *DB) CountActiveApiKeys(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM api_keys WHERE user_id = ? AND active = 1`, userID)
	return count, err
}

// TouchApiKey records a successful authenticated use. Concurrent touches
// race last-write-wins, which is acceptable for a usage timestamp.
func (db *DB) TouchApiKey(ctx context.Context, id string, usedAt time.Time) error {
	_, err := db.ExecContext(ctx, `UPDATE api_keys SET last_used = ? WHERE id = ?`, usedAt, id)
	return err
}

func (db *DB) RevokeApiKey(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `UPDATE api_keys SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeactivateExpiredKeys flips the active flag on keys past their expiry.
// Validation independently denies expired keys, so the sweep only has to
// be eventually consistent.
func (db *DB) DeactivateExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE api_keys SET active = 0 WHERE active = 1 AND expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
