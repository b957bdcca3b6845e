package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/tonearm/royaltyd/internal/constants"
)

// Scope is a capability an API key grants.
type Scope string

const (
	ScopeTracksRead    Scope = "tracks:read"
	ScopeTracksWrite   Scope = "tracks:write"
	ScopeAnalyticsRead Scope = "analytics:read"
	ScopeProfileRead   Scope = "profile:read"
	ScopeProfileWrite  Scope = "profile:write"
)

// AllScopes lists every grantable scope.
var AllScopes = []Scope{
	ScopeTracksRead,
	ScopeTracksWrite,
	ScopeAnalyticsRead,
	ScopeProfileRead,
	ScopeProfileWrite,
}

func (s Scope) Valid() bool {
	for _, known := range AllScopes {
		if s == known {
			return true
		}
	}
	return false
}

// ApiKey is a capability credential bound to one user. The key value is
// unique across active and historical records so a revoked value can never
// be replayed by a reissue.
type ApiKey struct {
	ID     string      `json:"id" db:"id"`
	UserID string      `json:"user_id" db:"user_id"`
	Name   string      `json:"name" db:"name"`
	Key    string      `json:"key" db:"key"`
	Scopes StringSlice `json:"scopes" db:"scopes"`

	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	Active    bool       `json:"active" db:"active"`
	LastUsed  *time.Time `json:"last_used,omitempty" db:"last_used"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Validate checks the issuance fields.
func (k *ApiKey) Validate() error {
	var errs ValidationErrors

	if k.UserID == "" {
		errs = append(errs, ValidationError{Field: "user_id", Message: "cannot be empty"})
	}
	if k.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "cannot be empty"})
	}
	if len(k.Name) > constants.MaxKeyNameChars {
		errs = append(errs, ValidationError{Field: "name", Message: "too long"})
	}
	if len(k.Scopes) == 0 {
		errs = append(errs, ValidationError{Field: "scopes", Message: "cannot be empty"})
	}
	for _, s := range k.Scopes {
		if !Scope(s).Valid() {
			errs = append(errs, ValidationError{Field: "scopes", Message: "unknown scope: " + s})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Expired reports whether the key's expiry has passed at time now.
func (k *ApiKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// Usable reports whether the key may authenticate at time now. An expired
// key is denied even if cleanup has not deactivated it yet.
func (k *ApiKey) Usable(now time.Time) bool {
	return k.Active && !k.Expired(now)
}

// HasScope reports whether the key grants the required scope.
func (k *ApiKey) HasScope(scope Scope) bool {
	return k.Scopes.Contains(string(scope))
}

// NewKeyValue generates a random high-entropy key value.
func NewKeyValue() string {
	buf := make([]byte, constants.KeyByteLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failure means nothing sensible can run
	}
	return constants.KeyPrefix + hex.EncodeToString(buf)
}
