package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tonearm/royaltyd/internal/constants"
	"github.com/tonearm/royaltyd/internal/domain"
	"github.com/tonearm/royaltyd/internal/logger"
	"github.com/tonearm/royaltyd/internal/store"
)

// ApiKeyService issues, validates and revokes API keys.
type ApiKeyService struct {
	Repo   *store.DB
	Logger *logger.Logger
}

func NewApiKeyService(repo *store.DB, log *logger.Logger) *ApiKeyService {
	return &ApiKeyService{Repo: repo, Logger: log.WithComponent("apikeys")}
}

// Issue creates a key for a user. The plaintext value is only returned
// here; callers must present it on every request afterwards.
func (s *ApiKeyService) Issue(ctx context.Context, userID, name string, scopes []string, expiresAt *time.Time) (*domain.ApiKey, error) {
	if _, err := s.Repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	active, err := s.Repo.CountActiveApiKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active >= constants.MaxKeysPerUser {
		return nil, domain.ValidationErrors{{Field: "user_id", Message: "active key limit reached"}}
	}

	key := &domain.ApiKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Key:       domain.NewKeyValue(),
		Scopes:    domain.StringSlice(scopes),
		ExpiresAt: expiresAt,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := s.Repo.CreateApiKey(ctx, key); err != nil {
		return nil, err
	}

	s.Logger.Info("API key issued", "key_id", key.ID, "user_id", userID, "name", name)
	return key, nil
}

func (s *ApiKeyService) List(ctx context.Context, userID string) ([]*domain.ApiKey, error) {
	return s.Repo.ListApiKeys(ctx, userID)
}

func (s *ApiKeyService) Revoke(ctx context.Context, id string) error {
	if err := s.Repo.RevokeApiKey(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("API key revoked", "key_id", id)
	return nil
}

// Validate authenticates a key value against a required scope. An unknown,
// inactive or expired key is ErrUnauthorized; a live key without the scope
// is ErrForbidden. Expiry is checked against the clock, so a key past its
// expiry is denied even before the cleanup sweep deactivates it.
func (s *ApiKeyService) Validate(ctx context.Context, value string, scope domain.Scope) (*domain.ApiKey, error) {
	key, err := s.Repo.GetApiKeyByValue(ctx, value)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !key.Usable(now) {
		return nil, domain.ErrUnauthorized
	}
	if !key.HasScope(scope) {
		return nil, domain.ErrForbidden
	}

	// Last-used is advisory; a failed stamp must not fail the request.
	if err := s.Repo.TouchApiKey(ctx, key.ID, now); err != nil {
		s.Logger.Warn("Failed to stamp key usage", "key_id", key.ID, "error", err)
	}
	return key, nil
}

// ExpireKeys deactivates every key whose expiry has passed.
func (s *ApiKeyService) ExpireKeys(ctx context.Context) (int64, error) {
	n, err := s.Repo.DeactivateExpiredKeys(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Logger.Info("Expired keys deactivated", "count", n)
	}
	return n, nil
}
