package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the common failure classes. Callers match with errors.Is.
var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a write lost to a concurrent competing write,
	// e.g. a royalty already attached to a live payout. Callers retry with
	// a refreshed read set.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized indicates a missing, unknown, inactive or expired credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates a valid credential lacking the required scope.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports a single malformed or out-of-range field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates per-field validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// ToMap returns field -> message for API responses.
func (e ValidationErrors) ToMap() map[string]string {
	result := make(map[string]string, len(e))
	for _, v := range e {
		result[v.Field] = v.Message
	}
	return result
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var single *ValidationError
	var multi ValidationErrors
	return errors.As(err, &single) || errors.As(err, &multi)
}

// ExternalError wraps a failure of an external collaborator (exchange-rate
// source, payment gateway). Retryable errors are retried with backoff at the
// batch level before being surfaced.
type ExternalError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is an external failure worth retrying.
func IsRetryable(err error) bool {
	var ext *ExternalError
	return errors.As(err, &ext) && ext.Retryable
}
