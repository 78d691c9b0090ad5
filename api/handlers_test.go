/*
handlers_test.go - HTTP gateway tests

Exercises the REST contract end to end against a seeded branch: logins for
all three roles, role enforcement on the management endpoints, and the
deposit/withdraw/transfer flows with their status-code mapping.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/bank-engine/api"
	"github.com/meridian/bank-engine/bank"
	"github.com/meridian/bank-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type gateway struct {
	t      *testing.T
	router http.Handler
}

// newGateway seeds employee1, customer user1 with account 2223 (PIN 1163,
// balance 100), and bare account 3334.
func newGateway(t *testing.T) *gateway {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	require.NoError(t, store.SaveEmployees(ctx, []bank.Employee{
		{Username: "employee1", Password: "employee1"},
	}))

	ledger, err := bank.Open(ctx, store)
	require.NoError(t, err)
	_, err = ledger.CreateAccount(ctx, bank.AccountSpec{
		Number: 2223, PIN: "1163", Type: bank.Checking, InitialBalance: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	_, err = ledger.CreateAccount(ctx, bank.AccountSpec{
		Number: 3334, PIN: "9999", Type: bank.Saving, InitialBalance: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	require.NoError(t, ledger.CreateProfile(ctx, bank.Profile{Username: "user1", Password: "pass1"}))
	_, err = ledger.LinkAccount(ctx, "user1", 2223)
	require.NoError(t, err)

	sessions := bank.NewSessionManager(ledger)
	return &gateway{t: t, router: api.NewRouter(api.NewHandler(ledger, sessions))}
}

// do issues a request with an optional bearer session and decodes the JSON
// response into a generic map.
func (g *gateway) do(method, path, session string, body any) (int, map[string]any) {
	g.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(g.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if len(rec.Body.Bytes()) > 0 {
		require.NoError(g.t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec.Code, decoded
}

func (g *gateway) login(path string, body any) string {
	g.t.Helper()
	code, resp := g.do(http.MethodPost, path, "", body)
	require.Equal(g.t, http.StatusOK, code, "login failed: %v", resp)
	return resp["sessionId"].(string)
}

func (g *gateway) employeeSession() string {
	return g.login("/api/auth/employee-login", map[string]any{"username": "employee1", "password": "employee1"})
}

func (g *gateway) customerSession() string {
	return g.login("/api/auth/customer-login", map[string]any{"username": "user1", "password": "pass1"})
}

func (g *gateway) atmSession() string {
	return g.login("/api/auth/atm-login", map[string]any{"accountNumber": 2223, "pin": "1163"})
}

// =============================================================================
// AUTH
// =============================================================================

func TestEmployeeLogin_OK(t *testing.T) {
	g := newGateway(t)

	code, resp := g.do(http.MethodPost, "/api/auth/employee-login", "",
		map[string]any{"username": "employee1", "password": "employee1"})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "employee", resp["role"])
	assert.NotEmpty(t, resp["sessionId"])
}

func TestCustomerLogin_ReturnsProfileWithoutPassword(t *testing.T) {
	g := newGateway(t)

	code, resp := g.do(http.MethodPost, "/api/auth/customer-login", "",
		map[string]any{"username": "user1", "password": "pass1"})

	require.Equal(t, http.StatusOK, code)
	profile := resp["profile"].(map[string]any)
	assert.Equal(t, "user1", profile["username"])
	assert.NotContains(t, profile, "password")
	assert.Equal(t, []any{float64(2223)}, profile["linkedAccounts"])
}

func TestATMLogin_WrongPin401(t *testing.T) {
	g := newGateway(t)

	code, resp := g.do(http.MethodPost, "/api/auth/atm-login", "",
		map[string]any{"accountNumber": 2223, "pin": "0000"})

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, resp["success"])
}

func TestLogout_InvalidatesSession(t *testing.T) {
	g := newGateway(t)
	session := g.employeeSession()

	code, _ := g.do(http.MethodPost, "/api/auth/logout", session, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = g.do(http.MethodGet, "/api/logs", session, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "a logged-out session must be rejected")
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func TestDeposit_TellerPath(t *testing.T) {
	// An employee acts on any account over the counter.
	g := newGateway(t)
	session := g.employeeSession()

	code, resp := g.do(http.MethodPost, "/api/accounts/deposit", session,
		map[string]any{"accountNumber": 2223, "amount": 50})

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(150), resp["balance"])
}

func TestWithdraw_FloorViolation400(t *testing.T) {
	g := newGateway(t)
	session := g.atmSession()

	code, resp := g.do(http.MethodPost, "/api/accounts/withdraw", session,
		map[string]any{"accountNumber": 2223, "amount": 200})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, resp["success"])

	code, resp = g.do(http.MethodGet, "/api/accounts/balance?accountNumber=2223", session, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(100), resp["balance"], "rejected withdrawal must not change the balance")
}

func TestCustomer_CannotTouchUnlinkedAccount(t *testing.T) {
	g := newGateway(t)
	session := g.customerSession()

	code, _ := g.do(http.MethodPost, "/api/accounts/deposit", session,
		map[string]any{"accountNumber": 3334, "amount": 10})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestATM_ScopedToBoundAccount(t *testing.T) {
	g := newGateway(t)
	session := g.atmSession()

	code, _ := g.do(http.MethodPost, "/api/accounts/withdraw", session,
		map[string]any{"accountNumber": 3334, "amount": 10})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestTransfer_CustomerFromLinkedAccount(t *testing.T) {
	g := newGateway(t)
	session := g.customerSession()

	code, _ := g.do(http.MethodPost, "/api/accounts/transfer", session,
		map[string]any{"fromAccount": 2223, "toAccount": 3334, "amount": 30})
	require.Equal(t, http.StatusOK, code)

	emp := g.employeeSession()
	code, resp := g.do(http.MethodGet, "/api/accounts/balance?accountNumber=3334", emp, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(80), resp["balance"])
}

func TestTransfer_CustomerCannotDebitForeignAccount(t *testing.T) {
	g := newGateway(t)
	session := g.customerSession()

	code, _ := g.do(http.MethodPost, "/api/accounts/transfer", session,
		map[string]any{"fromAccount": 3334, "toAccount": 2223, "amount": 10})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestMovement_NoSession401(t *testing.T) {
	g := newGateway(t)

	code, _ := g.do(http.MethodPost, "/api/accounts/deposit", "",
		map[string]any{"accountNumber": 2223, "amount": 10})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestDeposit_ValidationRejected(t *testing.T) {
	g := newGateway(t)
	session := g.employeeSession()

	code, _ := g.do(http.MethodPost, "/api/accounts/deposit", session,
		map[string]any{"accountNumber": 2223, "amount": -5})
	assert.Equal(t, http.StatusBadRequest, code)
}

// =============================================================================
// ACCOUNT MANAGEMENT
// =============================================================================

func TestCreateAccount_EmployeeOnly(t *testing.T) {
	g := newGateway(t)

	body := map[string]any{"accountNumber": 3001, "pin": "1234", "type": "checking", "initialBalance": 0}

	code, _ := g.do(http.MethodPost, "/api/accounts/create", g.customerSession(), body)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp := g.do(http.MethodPost, "/api/accounts/create", g.employeeSession(), body)
	require.Equal(t, http.StatusOK, code)
	account := resp["account"].(map[string]any)
	assert.Equal(t, float64(3001), account["accountNumber"])
	assert.Equal(t, float64(0), account["balance"])
}

func TestCreateThenLink_CustomerSeesNewAccount(t *testing.T) {
	// The scenario from a branch visit: teller opens 3001, links it to
	// user1, and the customer's account list immediately includes it.
	g := newGateway(t)
	emp := g.employeeSession()

	code, _ := g.do(http.MethodPost, "/api/accounts/create", emp,
		map[string]any{"accountNumber": 3001, "pin": "1234", "type": "saving", "initialBalance": 0})
	require.Equal(t, http.StatusOK, code)

	code, _ = g.do(http.MethodPost, "/api/accounts/link", emp,
		map[string]any{"username": "user1", "accountNumber": 3001})
	require.Equal(t, http.StatusOK, code)

	cust := g.customerSession()
	code, resp := g.do(http.MethodGet, "/api/accounts", cust, nil)
	require.Equal(t, http.StatusOK, code)

	accounts := resp["accounts"].([]any)
	numbers := make([]float64, 0, len(accounts))
	for _, a := range accounts {
		numbers = append(numbers, a.(map[string]any)["accountNumber"].(float64))
	}
	assert.Contains(t, numbers, float64(2223))
	assert.Contains(t, numbers, float64(3001))
}

func TestRemoveAccount(t *testing.T) {
	g := newGateway(t)
	emp := g.employeeSession()

	code, _ := g.do(http.MethodPost, "/api/accounts/remove", emp,
		map[string]any{"accountNumber": 3334})
	require.Equal(t, http.StatusOK, code)

	code, _ = g.do(http.MethodGet, "/api/accounts/search?accountNumber=3334", emp, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSearchAccount_IncludesOwner(t *testing.T) {
	g := newGateway(t)
	emp := g.employeeSession()

	code, resp := g.do(http.MethodGet, "/api/accounts/search?accountNumber=2223", emp, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["found"])
	assert.Equal(t, "user1", resp["profile"].(map[string]any)["username"])

	// Bare account: found, but no owning profile.
	code, resp = g.do(http.MethodGet, "/api/accounts/search?accountNumber=3334", emp, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, resp, "profile")
}

func TestSearch_CustomerForbidden(t *testing.T) {
	g := newGateway(t)

	code, _ := g.do(http.MethodGet, "/api/accounts/search?accountNumber=2223", g.customerSession(), nil)
	assert.Equal(t, http.StatusForbidden, code)
}

// =============================================================================
// PROFILES
// =============================================================================

func TestCreateProfile_SelfService(t *testing.T) {
	g := newGateway(t)

	// No session: signup is the one unauthenticated mutation.
	code, _ := g.do(http.MethodPost, "/api/profiles/create", "",
		map[string]any{"username": "user2", "password": "pass2", "name": "Bob"})
	require.Equal(t, http.StatusOK, code)

	code, _ = g.do(http.MethodPost, "/api/profiles/create", "",
		map[string]any{"username": "user2", "password": "other", "name": "Mallory"})
	assert.Equal(t, http.StatusBadRequest, code, "duplicate username")
}

func TestUpdateProfile_PartialFields(t *testing.T) {
	g := newGateway(t)
	emp := g.employeeSession()

	code, _ := g.do(http.MethodPost, "/api/profiles/update", emp,
		map[string]any{"username": "user1", "creditScore": 740})
	require.Equal(t, http.StatusOK, code)

	code, resp := g.do(http.MethodGet, "/api/profiles/search?username=user1", emp, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(740), resp["profile"].(map[string]any)["creditScore"])
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestGetLogs_EmployeeOnly(t *testing.T) {
	g := newGateway(t)

	code, _ := g.do(http.MethodGet, "/api/logs", g.customerSession(), nil)
	assert.Equal(t, http.StatusForbidden, code)

	emp := g.employeeSession()
	code, _ = g.do(http.MethodPost, "/api/accounts/deposit", emp,
		map[string]any{"accountNumber": 2223, "amount": 50})
	require.Equal(t, http.StatusOK, code)

	code, resp := g.do(http.MethodGet, "/api/logs", emp, nil)
	require.Equal(t, http.StatusOK, code)

	logs := resp["logs"].([]any)
	require.NotEmpty(t, logs)
	last := logs[len(logs)-1].(map[string]any)
	assert.Equal(t, "deposit", last["kind"])
	assert.Equal(t, float64(2223), last["accountNumber"])
}
