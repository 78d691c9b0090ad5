/*
Package bank provides the core banking engine.

PURPOSE:
  This package contains the authoritative domain model and the operations
  that mutate it. The Ledger owns every Account and Profile record; the
  SessionManager authenticates employees, customers, and ATM cardholders
  and gates operations by role. Transports (HTTP gateway, socket server)
  contain no business rules of their own - they translate wire requests
  into calls on this package.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: numbered, PIN-protected balance holder with a type-dependent floor
  - Profile: customer identity owning a set of linked accounts
  - Employee: read-only credential pair, provisioned out of band
  - LogEntry: one immutable audit event

DESIGN PRINCIPLES:
  1. Precision: balances use decimal.Decimal, never float64
  2. Single owner: the Ledger holds the only live copy of records;
     sessions carry identities, not snapshots
  3. Type-dependent floor: checking/saving never go below zero,
     lineOfCredit never goes below -creditLimit

SEE ALSO:
  - ledger.go: Operations and invariant enforcement
  - session.go: Authentication and role gating
  - store.go: Persistence interface
*/
package bank

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT
// =============================================================================

// AccountType determines the balance floor of an account.
type AccountType string

const (
	Checking     AccountType = "checking"
	Saving       AccountType = "saving"
	LineOfCredit AccountType = "lineOfCredit"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case Checking, Saving, LineOfCredit:
		return true
	}
	return false
}

// Account is a single bank account. Number is immutable once assigned and
// never reused, even after the account is removed. PIN and Balance change
// only through Ledger operations.
type Account struct {
	Number      int
	PIN         string
	Type        AccountType
	Balance     decimal.Decimal
	CreditLimit decimal.Decimal // meaningful for LineOfCredit only, zero otherwise
}

// Floor returns the lowest balance this account may hold:
// zero for checking/saving, -CreditLimit for a line of credit.
func (a Account) Floor() decimal.Decimal {
	if a.Type == LineOfCredit {
		return a.CreditLimit.Neg()
	}
	return decimal.Zero
}

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// ValidPIN reports whether pin is exactly four decimal digits.
func ValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// =============================================================================
// PROFILE
// =============================================================================

// Profile is a customer identity. Accounts lists the linked account numbers;
// an account is owned by at most one profile at a time, and may exist without
// any owning profile (a bare ATM-accessible account).
//
// Profiles are never hard-deleted.
type Profile struct {
	Username    string
	Password    string
	Name        string
	Phone       string
	Address     string
	Email       string
	CreditScore int
	Accounts    []int
}

// Linked reports whether the given account number is linked to this profile.
func (p Profile) Linked(number int) bool {
	for _, n := range p.Accounts {
		if n == number {
			return true
		}
	}
	return false
}

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is a read-only credential pair. Employees are provisioned out of
// band (employees.txt or the employees table); the engine never creates them
// at runtime.
type Employee struct {
	Username string
	Password string
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// LogKind classifies an audit event.
type LogKind string

const (
	LogLogin         LogKind = "login"
	LogLogout        LogKind = "logout"
	LogDeposit       LogKind = "deposit"
	LogWithdrawal    LogKind = "withdrawal"
	LogUpdateAccount LogKind = "updateAccount"
)

// LogEntry is one immutable audit event. Account is 0 for account-agnostic
// events such as employee or customer logins. Entries are append-only and
// never mutated or deleted.
type LogEntry struct {
	Account     int
	Kind        LogKind
	Description string
	At          time.Time
}
