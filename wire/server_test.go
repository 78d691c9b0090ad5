/*
server_test.go - Socket protocol tests

Runs the real server on a loopback listener and drives it with the Teller
and ATM clients, covering the branch-day flow and the role gates.
*/
package wire_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/bank-engine/bank"
	"github.com/meridian/bank-engine/store/memory"
	"github.com/meridian/bank-engine/wire"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// startBranch seeds the standard test branch and serves it on 127.0.0.1:0.
func startBranch(t *testing.T) string {
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

	server := wire.NewServer(ledger, bank.NewSessionManager(ledger))
	addr, err := server.Listen("127.0.0.1:0")
	require.NoError(t, err)
	go server.Serve()
	t.Cleanup(func() { server.Close() })

	return addr.String()
}

func dialTeller(t *testing.T, addr string) *wire.Teller {
	t.Helper()
	teller, err := wire.DialTeller(addr)
	require.NoError(t, err)
	t.Cleanup(func() { teller.Close() })
	return teller
}

func dialATM(t *testing.T, addr string) *wire.ATM {
	t.Helper()
	atm, err := wire.DialATM(addr)
	require.NoError(t, err)
	t.Cleanup(func() { atm.Close() })
	return atm
}

// =============================================================================
// BRANCH DAY
// =============================================================================

func TestBranchDay_TellerAndATM(t *testing.T) {
	// GIVEN: Account 2223 with balance 100
	// The teller deposits 50, the cardholder deposits 25 at the ATM, and an
	// over-limit withdrawal bounces without touching the balance.
	addr := startBranch(t)

	teller := dialTeller(t, addr)
	require.NoError(t, teller.Login("employee1", "employee1"))

	balance, err := teller.Deposit(2223, 50)
	require.NoError(t, err)
	assert.Equal(t, 150.0, balance)

	atm := dialATM(t, addr)
	_, err = atm.Login(2223, "1163")
	require.NoError(t, err)

	balance, err = atm.Deposit(25)
	require.NoError(t, err)
	assert.Equal(t, 175.0, balance)

	_, err = atm.Withdraw(200)
	require.Error(t, err, "over-limit withdrawal must be rejected")

	balance, err = atm.Balance()
	require.NoError(t, err)
	assert.Equal(t, 175.0, balance)

	require.NoError(t, atm.Logout())
	require.NoError(t, teller.Logout())
}

func TestATMLogin_WrongPin(t *testing.T) {
	addr := startBranch(t)
	atm := dialATM(t, addr)

	_, err := atm.Login(2223, "0000")
	assert.Error(t, err)

	// The connection survives a failed login; a correct retry works.
	_, err = atm.Login(2223, "1163")
	assert.NoError(t, err)
}

func TestTeller_OpensLinksAndTransfers(t *testing.T) {
	addr := startBranch(t)
	teller := dialTeller(t, addr)
	require.NoError(t, teller.Login("employee1", "employee1"))

	acct, err := teller.CreateAccount(0, "4321", "saving", 0)
	require.NoError(t, err)
	assert.Equal(t, 3335, acct.Number, "auto-assignment continues past the seeded numbers")

	profile, err := teller.LinkAccount("user1", acct.Number)
	require.NoError(t, err)
	assert.Contains(t, profile.LinkedAccounts, acct.Number)

	require.NoError(t, teller.Transfer(2223, acct.Number, 40))

	balance, err := teller.Balance(acct.Number)
	require.NoError(t, err)
	assert.Equal(t, 40.0, balance)
	balance, err = teller.Balance(2223)
	require.NoError(t, err)
	assert.Equal(t, 60.0, balance)
}

func TestCustomerTerminal_LinkedAccountsOnly(t *testing.T) {
	addr := startBranch(t)

	customer, err := wire.DialCustomer(addr)
	require.NoError(t, err)
	t.Cleanup(func() { customer.Close() })

	profile, err := customer.Login("user1", "pass1")
	require.NoError(t, err)
	assert.Equal(t, []int{2223}, profile.LinkedAccounts)

	accounts, err := customer.Accounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, 2223, accounts[0].Number)

	_, err = customer.Deposit(2223, 10)
	assert.NoError(t, err)
	_, err = customer.Deposit(3334, 10)
	assert.Error(t, err, "unlinked account must be out of reach")

	require.NoError(t, customer.Logout())
	_, err = customer.Balance(2223)
	assert.Error(t, err, "logout invalidates the session")
}

// =============================================================================
// ROLE GATES
// =============================================================================

func TestATMSession_CannotReachManagementOps(t *testing.T) {
	// The protocol lets any client send any op; the gates are enforced
	// server-side. Hand-roll frames so an ATM session can try a
	// management op the typed clients never expose.
	addr := startBranch(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(bufio.NewReader(conn))

	require.NoError(t, enc.Encode(wire.Request{Op: wire.OpATMLogin, Account: 2223, PIN: "1163"}))
	var login wire.Response
	require.NoError(t, dec.Decode(&login))
	require.True(t, login.OK)

	require.NoError(t, enc.Encode(wire.Request{
		Op: wire.OpCreateAccount, Session: login.Session, PIN: "1234", Type: "checking",
	}))
	var resp wire.Response
	require.NoError(t, dec.Decode(&resp))
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "forbidden")

	// The ATM session also may not touch a foreign account.
	require.NoError(t, enc.Encode(wire.Request{
		Op: wire.OpWithdraw, Session: login.Session, Account: 3334, Amount: 10,
	}))
	require.NoError(t, dec.Decode(&resp))
	assert.False(t, resp.OK)
}

func TestManagementOps_RequireEmployeeSession(t *testing.T) {
	addr := startBranch(t)

	// A teller client without a login has no session at all.
	teller := dialTeller(t, addr)
	_, err := teller.CreateAccount(0, "1234", "checking", 0)
	assert.Error(t, err)
	err = teller.RemoveAccount(2223)
	assert.Error(t, err)
	_, err = teller.Logs()
	assert.Error(t, err)
}

func TestErrorResponse_KeepsConnectionOpen(t *testing.T) {
	addr := startBranch(t)
	teller := dialTeller(t, addr)

	// A rejected request yields an error response, not a dropped connection.
	_, err := teller.SearchProfile("user1")
	assert.Error(t, err, "no session yet")

	require.NoError(t, teller.Login("employee1", "employee1"))
	profile, err := teller.SearchProfile("user1")
	require.NoError(t, err)
	assert.Equal(t, "user1", profile.Username)
}
