package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleArtist  Role = "artist"
	RoleLabel   Role = "label"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleArtist, RoleLabel, RoleManager, RoleAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	// UserStatusDeleted is a soft delete. Users with financial history are
	// never hard-deleted.
	UserStatusDeleted UserStatus = "deleted"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusSuspended, UserStatusDeleted:
		return true
	}
	return false
}

type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
	PayoutMethodPayPal       PayoutMethod = "paypal"
	PayoutMethodCrypto       PayoutMethod = "crypto"
)

func (m PayoutMethod) Valid() bool {
	switch m {
	case PayoutMethodBankTransfer, PayoutMethodPayPal, PayoutMethodCrypto:
		return true
	}
	return false
}

// User is a platform account: an artist, label, manager or admin. The
// earnings stats and payout preferences drive royalty aggregation.
type User struct {
	ID       string     `json:"id" db:"id"`
	Email    string     `json:"email" db:"email"`
	Name     string     `json:"name" db:"name"`
	Role     Role       `json:"role" db:"role"`
	Status   UserStatus `json:"status" db:"status"`
	Verified bool       `json:"verified" db:"verified"`

	// Earnings stats, all in the system currency.
	TotalEarnings    decimal.Decimal `json:"total_earnings" db:"total_earnings"`
	AvailableBalance decimal.Decimal `json:"available_balance" db:"available_balance"`
	PendingPayouts   decimal.Decimal `json:"pending_payouts" db:"pending_payouts"`

	PayoutMethod        PayoutMethod    `json:"payout_method" db:"payout_method"`
	PayoutCurrency      string          `json:"payout_currency" db:"payout_currency"`
	MinimumPayoutAmount decimal.Decimal `json:"minimum_payout_amount" db:"minimum_payout_amount"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks field ranges and the earnings invariant:
// available balance plus pending payouts never exceeds total earnings.
func (u *User) Validate() error {
	var errs ValidationErrors

	if u.Email == "" {
		errs = append(errs, ValidationError{Field: "email", Message: "cannot be empty"})
	}
	if !u.Role.Valid() {
		errs = append(errs, ValidationError{Field: "role", Message: "must be one of: artist, label, manager, admin"})
	}
	if !u.Status.Valid() {
		errs = append(errs, ValidationError{Field: "status", Message: "must be one of: active, suspended, deleted"})
	}
	if !u.PayoutMethod.Valid() {
		errs = append(errs, ValidationError{Field: "payout_method", Message: "must be one of: bank_transfer, paypal, crypto"})
	}
	if len(u.PayoutCurrency) != 3 {
		errs = append(errs, ValidationError{Field: "payout_currency", Message: "must be a 3-letter ISO code"})
	}
	if u.MinimumPayoutAmount.IsNegative() {
		errs = append(errs, ValidationError{Field: "minimum_payout_amount", Message: "cannot be negative"})
	}
	errs = append(errs, u.validateStats()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (u *User) validateStats() ValidationErrors {
	var errs ValidationErrors
	if u.TotalEarnings.IsNegative() {
		errs = append(errs, ValidationError{Field: "total_earnings", Message: "cannot be negative"})
	}
	if u.AvailableBalance.IsNegative() {
		errs = append(errs, ValidationError{Field: "available_balance", Message: "cannot be negative"})
	}
	if u.PendingPayouts.IsNegative() {
		errs = append(errs, ValidationError{Field: "pending_payouts", Message: "cannot be negative"})
	}
	if u.AvailableBalance.Add(u.PendingPayouts).GreaterThan(u.TotalEarnings) {
		errs = append(errs, ValidationError{
			Field:   "available_balance",
			Message: "available balance plus pending payouts exceeds total earnings",
		})
	}
	return errs
}

// StatsDelta is a signed adjustment to a user's earnings stats, applied
// atomically with the financial event that causes it.
type StatsDelta struct {
	TotalEarnings    decimal.Decimal
	AvailableBalance decimal.Decimal
	PendingPayouts   decimal.Decimal
}

// ApplyStats applies a delta and re-checks the earnings invariant.
func (u *User) ApplyStats(d StatsDelta) error {
	u.TotalEarnings = u.TotalEarnings.Add(d.TotalEarnings)
	u.AvailableBalance = u.AvailableBalance.Add(d.AvailableBalance)
	u.PendingPayouts = u.PendingPayouts.Add(d.PendingPayouts)
	if errs := u.validateStats(); len(errs) > 0 {
		return errs
	}
	return nil
}
