/*
errors.go - Centralized error types for the banking engine

PURPOSE:
  All typed failures in one place. Every operation returns one of these
  instead of letting raw errors cross a transport boundary; the HTTP and
  socket adapters map them to status codes / wire error codes.

ERROR CATEGORIES:
  1. Authentication/session errors - login, logout, role gating
  2. Validation errors - rejected before any state is touched
  3. Domain errors - not-found, duplicates, balance floor violations
  4. Persistence errors - commit failures (prior on-disk state stays intact)

USAGE:
  if errors.Is(err, bank.ErrInsufficientFunds) { ... }

  var ife *bank.InsufficientFundsError
  if errors.As(err, &ife) { ... ife.Available ... }

SEE ALSO:
  - ledger.go: Returns these from every mutating operation
  - api/handlers.go: Maps sentinels to HTTP status codes
*/
package bank

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAuthenticationFailed is returned when a credential check fails.
	// No lockout or throttling is applied on repeated attempts.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrSessionInvalid is returned when a session id is unknown or was
	// invalidated by logout. Sessions have no automatic expiry.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrRoleForbidden is returned when the session's role does not permit
	// the requested operation or target account.
	ErrRoleForbidden = errors.New("role forbidden")

	// ErrAccountNotFound is returned when an account number does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrProfileNotFound is returned when a username does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrDuplicateAccount is returned when creating an account with a number
	// that is already in use.
	ErrDuplicateAccount = errors.New("account number already exists")

	// ErrDuplicateProfile is returned when creating a profile with a username
	// that is already taken.
	ErrDuplicateProfile = errors.New("username already exists")

	// ErrDuplicateLink is returned when linking an account that is already
	// owned by a profile. An account has at most one owner.
	ErrDuplicateLink = errors.New("account already linked")

	// ErrInvalidAmount is returned for deposits/withdrawals of zero or
	// negative amounts, or a negative initial balance.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds is returned when a withdrawal would take the
	// balance below the account-type floor. The balance is unchanged.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidPin is returned unless the PIN is exactly four decimal digits.
	ErrInvalidPin = errors.New("pin must be exactly 4 digits")

	// ErrInvalidAccountType is returned for an unknown account type.
	ErrInvalidAccountType = errors.New("invalid account type")

	// ErrPersistence is returned when a commit cannot be written. The
	// in-memory and on-disk state both remain as they were before the call.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports a rejected withdrawal with the balance and
// floor that caused the rejection.
type InsufficientFundsError struct {
	Account   int
	Available decimal.Decimal
	Requested decimal.Decimal
	Floor     decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %d: available %s, requested %s, floor %s",
		e.Account, e.Available, e.Requested, e.Floor)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// persistErr wraps a store failure so callers can match ErrPersistence.
func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPin) ||
		errors.Is(err, ErrInvalidAccountType) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDuplicateAccount) ||
		errors.Is(err, ErrDuplicateProfile) ||
		errors.Is(err, ErrDuplicateLink)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrProfileNotFound)
}

// IsAuthError reports whether the error indicates a failed or missing
// authentication, as opposed to a role restriction.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrSessionInvalid)
}
