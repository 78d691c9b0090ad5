/*
dto.go - Data Transfer Objects for the HTTP gateway

PURPOSE:
  Defines the JSON structures of the gateway contract. These types decouple
  the internal domain model from the wire format.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator tags; handlers run the validator before any
  Ledger call, so malformed input is rejected with 400 without touching
  state.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Route definitions
*/
package api

import (
	"time"

	"github.com/meridian/bank-engine/bank"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CredentialsRequest is the body of employee and customer logins.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ATMLoginRequest is the body of an ATM login.
type ATMLoginRequest struct {
	AccountNumber int    `json:"accountNumber" validate:"required,gt=0"`
	PIN           string `json:"pin" validate:"required"`
}

// AmountRequest is the body of deposits and withdrawals.
type AmountRequest struct {
	AccountNumber int     `json:"accountNumber" validate:"required,gt=0"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
}

// TransferRequest moves funds between two accounts.
type TransferRequest struct {
	FromAccount int     `json:"fromAccount" validate:"required,gt=0"`
	ToAccount   int     `json:"toAccount" validate:"required,gt=0"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
}

// UpdatePinRequest replaces an account PIN.
type UpdatePinRequest struct {
	AccountNumber int    `json:"accountNumber" validate:"required,gt=0"`
	PIN           string `json:"pin" validate:"required,len=4,numeric"`
}

// CreateAccountRequest creates an account (employee only). AccountNumber 0
// assigns the next free number.
type CreateAccountRequest struct {
	AccountNumber  int     `json:"accountNumber" validate:"gte=0"`
	PIN            string  `json:"pin" validate:"required,len=4,numeric"`
	Type           string  `json:"type" validate:"required,oneof=checking saving lineOfCredit"`
	InitialBalance float64 `json:"initialBalance" validate:"gte=0"`
}

// RemoveAccountRequest removes an account (employee only).
type RemoveAccountRequest struct {
	AccountNumber int `json:"accountNumber" validate:"required,gt=0"`
}

// CreateProfileRequest is the customer self-service signup body.
type CreateProfileRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// UpdateProfileRequest updates profile fields (employee only). Nil fields
// keep their current value.
type UpdateProfileRequest struct {
	Username    string  `json:"username" validate:"required"`
	Password    *string `json:"password"`
	Name        *string `json:"name"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
	Email       *string `json:"email"`
	CreditScore *int    `json:"creditScore"`
}

// LinkAccountRequest links an account to a profile (employee only).
type LinkAccountRequest struct {
	Username      string `json:"username" validate:"required"`
	AccountNumber int    `json:"accountNumber" validate:"required,gt=0"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	AccountNumber int     `json:"accountNumber"`
	PIN           string  `json:"pin"`
	Type          string  `json:"type"`
	Balance       float64 `json:"balance"`
	CreditLimit   float64 `json:"creditLimit,omitempty"`
}

// ProfileDTO represents a profile in API responses. The password is never
// included.
type ProfileDTO struct {
	Username       string `json:"username"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	Email          string `json:"email"`
	CreditScore    int    `json:"creditScore"`
	LinkedAccounts []int  `json:"linkedAccounts"`
}

// LogEntryDTO represents one audit event.
type LogEntryDTO struct {
	AccountNumber int    `json:"accountNumber"`
	Kind          string `json:"kind"`
	Description   string `json:"description"`
	Timestamp     string `json:"timestamp"`
}

// LoginResponse is returned by all three login endpoints.
type LoginResponse struct {
	Success   bool        `json:"success"`
	SessionID string      `json:"sessionId"`
	Role      string      `json:"role"`
	Profile   *ProfileDTO `json:"profile,omitempty"`
	Account   *AccountDTO `json:"account,omitempty"`
}

// ErrorResponse is the standard failure body.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAccountDTO(a bank.Account) AccountDTO {
	balance, _ := a.Balance.Float64()
	limit, _ := a.CreditLimit.Float64()
	return AccountDTO{
		AccountNumber: a.Number,
		PIN:           a.PIN,
		Type:          string(a.Type),
		Balance:       balance,
		CreditLimit:   limit,
	}
}

func toAccountDTOs(accounts []bank.Account) []AccountDTO {
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	return dtos
}

func toProfileDTO(p bank.Profile) ProfileDTO {
	linked := p.Accounts
	if linked == nil {
		linked = []int{}
	}
	return ProfileDTO{
		Username:       p.Username,
		Name:           p.Name,
		Phone:          p.Phone,
		Address:        p.Address,
		Email:          p.Email,
		CreditScore:    p.CreditScore,
		LinkedAccounts: linked,
	}
}

func toLogEntryDTOs(entries []bank.LogEntry) []LogEntryDTO {
	dtos := make([]LogEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LogEntryDTO{
			AccountNumber: e.Account,
			Kind:          string(e.Kind),
			Description:   e.Description,
			Timestamp:     e.At.Format(time.RFC3339),
		}
	}
	return dtos
}
