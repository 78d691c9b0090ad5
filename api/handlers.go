/*
handlers.go - HTTP handlers for the banking gateway

PURPOSE:
  Exposes the shared transaction engine over REST for the web frontend.
  Handlers parse and validate the request, resolve the bearer session, and
  delegate to the Ledger / SessionManager. No business rule lives here: the
  socket transport calls the same engine and cannot diverge in behavior.

ENDPOINTS:
  Auth:
    POST /api/auth/employee-login     Employee credentials -> session id
    POST /api/auth/customer-login     Profile credentials -> session id + profile
    POST /api/auth/atm-login          Account number + PIN -> session id + account
    POST /api/auth/logout             Invalidate the bearer session

  Accounts:
    GET  /api/accounts                Role-scoped listing
    GET  /api/accounts/balance        Current balance (re-fetched, never cached)
    POST /api/accounts/deposit        Increase balance
    POST /api/accounts/withdraw       Decrease balance (floor enforced)
    POST /api/accounts/transfer       Both legs in one atomic commit
    POST /api/accounts/update-pin     Replace the 4-digit PIN
    POST /api/accounts/create         Employee only
    POST /api/accounts/remove         Employee only
    POST /api/accounts/link           Employee only
    GET  /api/accounts/search         Employee only

  Profiles:
    POST /api/profiles/create         Customer self-service signup
    POST /api/profiles/update         Employee only
    GET  /api/profiles/search         Employee only

  Audit:
    GET  /api/logs                    Employee only

ERROR HANDLING:
  Typed engine errors map to status codes:
  - 400: validation failures, duplicates, insufficient funds
  - 401: failed login, missing/invalid session
  - 403: role forbidden
  - 404: account/profile not found
  - 500: persistence failures

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian/bank-engine/bank"
)

// =============================================================================
// HANDLER
// =============================================================================

// Handler holds the gateway's dependencies.
type Handler struct {
	Ledger   *bank.Ledger
	Sessions *bank.SessionManager

	validate *validator.Validate
}

// NewHandler creates a gateway handler over one shared engine.
func NewHandler(ledger *bank.Ledger, sessions *bank.SessionManager) *Handler {
	return &Handler{
		Ledger:   ledger,
		Sessions: sessions,
		validate: validator.New(),
	}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// EmployeeLogin authenticates an employee and issues a session id.
func (h *Handler) EmployeeLogin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.Sessions.EmployeeLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: sess.SessionID(),
		Role:      string(bank.RoleEmployee),
	})
}

// CustomerLogin authenticates a customer and returns the bound profile.
func (h *Handler) CustomerLogin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, profile, err := h.Sessions.CustomerLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	dto := toProfileDTO(profile)
	writeJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: sess.SessionID(),
		Role:      string(bank.RoleCustomer),
		Profile:   &dto,
	})
}

// ATMLogin authenticates a cardholder against a single account.
func (h *Handler) ATMLogin(w http.ResponseWriter, r *http.Request) {
	var req ATMLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, acct, err := h.Sessions.ATMLogin(r.Context(), req.AccountNumber, req.PIN)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid account number or PIN")
		return
	}
	dto := toAccountDTO(acct)
	writeJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: sess.SessionID(),
		Role:      string(bank.RoleATM),
		Account:   &dto,
	})
}

// Logout invalidates the bearer session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id := bearerToken(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	if err := h.Sessions.Logout(r.Context(), id); err != nil {
		writeError(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the accounts visible to the session: all linked
// accounts for a customer, the single bound account for an ATM session,
// none for an employee (employees search instead).
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	switch s := sess.(type) {
	case *bank.CustomerSession:
		profile, err := h.Ledger.Profile(r.Context(), s.Username)
		if err != nil {
			h.fail(w, err)
			return
		}
		accounts := h.Ledger.Accounts(r.Context(), profile.Accounts)
		writeJSON(w, http.StatusOK, map[string]any{"accounts": toAccountDTOs(accounts)})
	case *bank.ATMSession:
		accounts := h.Ledger.Accounts(r.Context(), []int{s.Account})
		writeJSON(w, http.StatusOK, map[string]any{"accounts": toAccountDTOs(accounts)})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"accounts": []AccountDTO{}})
	}
}

// Deposit increases an account balance.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.authorizeAccount(w, r, req.AccountNumber) {
		return
	}

	balance, err := h.Ledger.Deposit(r.Context(), req.AccountNumber, decimal.NewFromFloat(req.Amount))
	if err != nil {
		h.fail(w, err)
		return
	}
	out, _ := balance.Float64()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "balance": out})
}

// Withdraw decreases an account balance, enforcing the type floor.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.authorizeAccount(w, r, req.AccountNumber) {
		return
	}

	balance, err := h.Ledger.Withdraw(r.Context(), req.AccountNumber, decimal.NewFromFloat(req.Amount))
	if err != nil {
		h.fail(w, err)
		return
	}
	out, _ := balance.Float64()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "balance": out})
}

// Transfer moves funds between two accounts in one atomic commit.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	// Authorization is on the debited account; the credited account only
	// needs to exist.
	if !h.authorizeAccount(w, r, req.FromAccount) {
		return
	}

	err := h.Ledger.Transfer(r.Context(), req.FromAccount, req.ToAccount, decimal.NewFromFloat(req.Amount))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Transfer successful"})
}

// GetBalance returns the current balance of one account.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	number, ok := queryAccountNumber(w, r)
	if !ok {
		return
	}
	if !h.authorizeAccount(w, r, number) {
		return
	}

	balance, err := h.Ledger.Balance(r.Context(), number)
	if err != nil {
		h.fail(w, err)
		return
	}
	out, _ := balance.Float64()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "balance": out})
}

// UpdatePin replaces an account PIN.
func (h *Handler) UpdatePin(w http.ResponseWriter, r *http.Request) {
	var req UpdatePinRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.authorizeAccount(w, r, req.AccountNumber) {
		return
	}

	if err := h.Ledger.ChangePIN(r.Context(), req.AccountNumber, req.PIN); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CreateAccount creates an account. Employee only.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireEmployee(w, r) {
		return
	}
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.Ledger.CreateAccount(r.Context(), bank.AccountSpec{
		Number:         req.AccountNumber,
		PIN:            req.PIN,
		Type:           bank.AccountType(req.Type),
		InitialBalance: decimal.NewFromFloat(req.InitialBalance),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Account created successfully",
		"account": toAccountDTO(acct),
	})
}

// RemoveAccount deletes an account. Employee only.
func (h *Handler) RemoveAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireEmployee(w, r) {
		return
	}
	var req RemoveAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Ledger.RemoveAccount(r.Context(), req.AccountNumber); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// SearchAccount looks up an account and its owning profile. Employee only.
func (h *Handler) SearchAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireEmployee(w, r) {
		return
	}
	number, ok := queryAccountNumber(w, r)
	if !ok {
		return
	}

	acct, err := h.Ledger.Account(r.Context(), number)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"found": false, "error": "Account not found"})
		return
	}

	response := map[string]any{"found": true, "account": toAccountDTO(acct)}
	if profile, ok := h.Ledger.ProfileByAccount(r.Context(), number); ok {
		response["profile"] = toProfileDTO(profile)
	}
	writeJSON(w, http.StatusOK, response)
}

// LinkAccount links an account to a profile. Employee only.
func (h *Handler) LinkAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireEmployee(w, r) {
		return
	}
	var req LinkAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.Ledger.LinkAccount(r.Context(), req.Username, req.AccountNumber); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Account linked successfully"})
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// CreateProfile registers a new customer profile. Unauthenticated: this is
// the self-service signup path.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req CreateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.Ledger.CreateProfile(r.Context(), bank.Profile{
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Address:  req.Address,
		Email:    req.Email,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// UpdateProfile updates profile fields. Employee only.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if !h.requireEmployee(w, r) {
		return
	}
	var req UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	_, err := h.Ledger.UpdateProfile(r.Context(), req.Username, bank.ProfileUpdate{
		Password:    req.Password,
		Name:        req.Name,
		Phone:       req.Phone,
		Address:     req.Address,
		Email:       req.Email,
		CreditScore: req.CreditScore,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Profile updated successfully"})
}

// SearchProfile looks up a profile by username. Employee only.
func (h *Handler) SearchProfile(w http.ResponseWriter, r *http.Request) {
	if !h.requireEmployee(w, r) {
		return
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "Missing username parameter")
		return
	}

	profile, err := h.Ledger.Profile(r.Context(), username)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"found": false, "error": "Profile not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"found": true, "profile": toProfileDTO(profile)})
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// GetLogs returns the full audit log. Employee only.
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	if !h.requireEmployee(w, r) {
		return
	}

	entries, err := h.Ledger.AuditLog(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": toLogEntryDTOs(entries)})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates the JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return false
	}
	return true
}

// session resolves the bearer session, writing a 401 on failure.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (bank.Session, bool) {
	id := bearerToken(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}
	sess, err := h.Sessions.Session(id)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}
	return sess, true
}

// requireEmployee writes a 401/403 unless the bearer session is an employee.
func (h *Handler) requireEmployee(w http.ResponseWriter, r *http.Request) bool {
	id := bearerToken(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return false
	}
	if _, err := h.Sessions.RequireEmployee(id); err != nil {
		h.fail(w, err)
		return false
	}
	return true
}

// authorizeAccount writes a 401/403 unless the bearer session may act on the
// account.
func (h *Handler) authorizeAccount(w http.ResponseWriter, r *http.Request, number int) bool {
	id := bearerToken(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return false
	}
	if _, err := h.Sessions.AuthorizeAccount(r.Context(), id, number); err != nil {
		h.fail(w, err)
		return false
	}
	return true
}

// fail maps a typed engine error onto the HTTP contract.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case bank.IsAuthError(err):
		return http.StatusUnauthorized
	case errors.Is(err, bank.ErrRoleForbidden):
		return http.StatusForbidden
	case bank.IsNotFound(err):
		return http.StatusNotFound
	case bank.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func queryAccountNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("accountNumber")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing accountNumber parameter")
		return 0, false
	}
	number, err := strconv.Atoi(raw)
	if err != nil || number <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid accountNumber parameter")
		return 0, false
	}
	return number, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: message})
}
