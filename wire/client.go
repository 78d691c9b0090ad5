/*
client.go - Terminal clients for the socket protocol

PURPOSE:
  Typed clients for the terminals that speak the socket protocol. Teller
  wraps the employee operations of a branch workstation; Customer wraps an
  online-banking terminal bound to one profile; ATM wraps a cash machine
  bound to a single account. Each holds one TCP connection and issues one
  request at a time.

CONCURRENCY:
  A client serializes its requests with a mutex; the protocol is strictly
  request/response per connection. Use one client per terminal.

SEE ALSO:
  - protocol.go: Message framing
  - cmd/demo/main.go: A scripted branch day using both clients
*/
package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"sync"
)

// conn is the shared transport under Teller and ATM.
type conn struct {
	mu      sync.Mutex
	sock    net.Conn
	reader  *bufio.Reader
	session string
}

func dial(addr string) (*conn, error) {
	sock, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &conn{sock: sock, reader: bufio.NewReader(sock)}, nil
}

// roundTrip sends one request and reads one response. The live session id is
// attached automatically.
func (c *conn) roundTrip(req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.Session == "" {
		req.Session = c.session
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	if _, err := c.sock.Write(append(payload, '\n')); err != nil {
		return Response{}, err
	}
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, err
	}
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	if resp.Session != "" {
		c.session = resp.Session
	}
	return resp, nil
}

func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.Close()
}

// =============================================================================
// TELLER
// =============================================================================

// Teller is a branch workstation client. Operations require an employee
// login except CreateProfile, which is the walk-in signup path.
type Teller struct {
	c *conn
}

// DialTeller connects a teller workstation to the socket server.
func DialTeller(addr string) (*Teller, error) {
	c, err := dial(addr)
	if err != nil {
		return nil, err
	}
	return &Teller{c: c}, nil
}

// Login authenticates the employee operating the station.
func (t *Teller) Login(username, password string) error {
	_, err := t.c.roundTrip(Request{Op: OpEmployeeLogin, Username: username, Password: password})
	return err
}

// Logout ends the employee session.
func (t *Teller) Logout() error {
	_, err := t.c.roundTrip(Request{Op: OpLogout})
	return err
}

// CreateAccount opens an account. Number 0 assigns the next free number;
// for a line of credit the initial balance doubles as the credit ceiling.
func (t *Teller) CreateAccount(number int, pin, accountType string, initialBalance float64) (AccountInfo, error) {
	resp, err := t.c.roundTrip(Request{
		Op:      OpCreateAccount,
		Account: number,
		PIN:     pin,
		Type:    accountType,
		Amount:  initialBalance,
	})
	if err != nil {
		return AccountInfo{}, err
	}
	return *resp.Account, nil
}

// RemoveAccount closes an account. Its number is never reassigned.
func (t *Teller) RemoveAccount(number int) error {
	_, err := t.c.roundTrip(Request{Op: OpRemoveAccount, Account: number})
	return err
}

// SearchAccount looks up an account and its owning profile, if any.
func (t *Teller) SearchAccount(number int) (AccountInfo, *ProfileInfo, error) {
	resp, err := t.c.roundTrip(Request{Op: OpSearchAccount, Account: number})
	if err != nil {
		return AccountInfo{}, nil, err
	}
	return *resp.Account, resp.Profile, nil
}

// CreateProfile registers a walk-in customer.
func (t *Teller) CreateProfile(username, password, name, phone, address, email string) error {
	_, err := t.c.roundTrip(Request{
		Op:       OpCreateProfile,
		Username: username,
		Password: password,
		Name:     name,
		Phone:    phone,
		Address:  address,
		Email:    email,
	})
	return err
}

// SearchProfile looks up a profile by username.
func (t *Teller) SearchProfile(username string) (ProfileInfo, error) {
	resp, err := t.c.roundTrip(Request{Op: OpSearchProfile, Username: username})
	if err != nil {
		return ProfileInfo{}, err
	}
	return *resp.Profile, nil
}

// LinkAccount attaches an account to a customer profile.
func (t *Teller) LinkAccount(username string, number int) (ProfileInfo, error) {
	resp, err := t.c.roundTrip(Request{Op: OpLinkAccount, Username: username, Account: number})
	if err != nil {
		return ProfileInfo{}, err
	}
	return *resp.Profile, nil
}

// Deposit credits any account (the over-the-counter path).
func (t *Teller) Deposit(number int, amount float64) (float64, error) {
	resp, err := t.c.roundTrip(Request{Op: OpDeposit, Account: number, Amount: amount})
	if err != nil {
		return 0, err
	}
	return *resp.Balance, nil
}

// Withdraw debits any account, subject to the account-type floor.
func (t *Teller) Withdraw(number int, amount float64) (float64, error) {
	resp, err := t.c.roundTrip(Request{Op: OpWithdraw, Account: number, Amount: amount})
	if err != nil {
		return 0, err
	}
	return *resp.Balance, nil
}

// Transfer moves funds between two accounts atomically.
func (t *Teller) Transfer(from, to int, amount float64) error {
	_, err := t.c.roundTrip(Request{Op: OpTransfer, Account: from, ToAccount: to, Amount: amount})
	return err
}

// Balance reads the current balance of any account.
func (t *Teller) Balance(number int) (float64, error) {
	resp, err := t.c.roundTrip(Request{Op: OpBalance, Account: number})
	if err != nil {
		return 0, err
	}
	return *resp.Balance, nil
}

// Logs returns the full audit log.
func (t *Teller) Logs() ([]LogInfo, error) {
	resp, err := t.c.roundTrip(Request{Op: OpLogs})
	if err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// Close drops the connection without logging out.
func (t *Teller) Close() error { return t.c.close() }

// =============================================================================
// CUSTOMER
// =============================================================================

// Customer is an online-banking terminal client bound to one profile after
// login. It acts only on the profile's linked accounts.
type Customer struct {
	c *conn
}

// DialCustomer connects a customer terminal to the socket server.
func DialCustomer(addr string) (*Customer, error) {
	c, err := dial(addr)
	if err != nil {
		return nil, err
	}
	return &Customer{c: c}, nil
}

// Login authenticates with profile credentials and returns the profile.
func (c *Customer) Login(username, password string) (ProfileInfo, error) {
	resp, err := c.c.roundTrip(Request{Op: OpCustomerLogin, Username: username, Password: password})
	if err != nil {
		return ProfileInfo{}, err
	}
	return *resp.Profile, nil
}

// Logout ends the customer session.
func (c *Customer) Logout() error {
	_, err := c.c.roundTrip(Request{Op: OpLogout})
	return err
}

// Accounts lists the current state of every linked account.
func (c *Customer) Accounts() ([]AccountInfo, error) {
	resp, err := c.c.roundTrip(Request{Op: OpListAccounts})
	if err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// Deposit credits one of the linked accounts.
func (c *Customer) Deposit(number int, amount float64) (float64, error) {
	resp, err := c.c.roundTrip(Request{Op: OpDeposit, Account: number, Amount: amount})
	if err != nil {
		return 0, err
	}
	return *resp.Balance, nil
}

// Withdraw debits one of the linked accounts.
func (c *Customer) Withdraw(number int, amount float64) (float64, error) {
	resp, err := c.c.roundTrip(Request{Op: OpWithdraw, Account: number, Amount: amount})
	if err != nil {
		return 0, err
	}
	return *resp.Balance, nil
}

// Transfer moves funds out of one of the linked accounts.
func (c *Customer) Transfer(from, to int, amount float64) error {
	_, err := c.c.roundTrip(Request{Op: OpTransfer, Account: from, ToAccount: to, Amount: amount})
	return err
}

// Balance reads the balance of one of the linked accounts.
func (c *Customer) Balance(number int) (float64, error) {
	resp, err := c.c.roundTrip(Request{Op: OpBalance, Account: number})
	if err != nil {
		return 0, err
	}
	return *resp.Balance, nil
}

// ChangePIN replaces the PIN of one of the linked accounts.
func (c *Customer) ChangePIN(number int, newPin string) error {
	_, err := c.c.roundTrip(Request{Op: OpUpdatePin, Account: number, PIN: newPin})
	return err
}

// Close drops the connection without logging out.
func (c *Customer) Close() error { return c.c.close() }

// =============================================================================
// ATM
// =============================================================================

// ATM is a cash-machine client bound to one account after login.
type ATM struct {
	c       *conn
	account int
}

// DialATM connects a cash machine to the socket server.
func DialATM(addr string) (*ATM, error) {
	c, err := dial(addr)
	if err != nil {
		return nil, err
	}
	return &ATM{c: c}, nil
}

// Login authenticates the cardholder by account number and PIN. All later
// operations act on this account only.
func (a *ATM) Login(number int, pin string) (AccountInfo, error) {
	resp, err := a.c.roundTrip(Request{Op: OpATMLogin, Account: number, PIN: pin})
	if err != nil {
		return AccountInfo{}, err
	}
	a.account = number
	return *resp.Account, nil
}

// Logout ends the cardholder session.
func (a *ATM) Logout() error {
	_, err := a.c.roundTrip(Request{Op: OpLogout})
	return err
}

// Deposit credits the bound account.
func (a *ATM) Deposit(amount float64) (float64, error) {
	resp, err := a.c.roundTrip(Request{Op: OpDeposit, Account: a.account, Amount: amount})
	if err != nil {
		return 0, err
	}
	return *resp.Balance, nil
}

// Withdraw debits the bound account, subject to the account-type floor.
func (a *ATM) Withdraw(amount float64) (float64, error) {
	resp, err := a.c.roundTrip(Request{Op: OpWithdraw, Account: a.account, Amount: amount})
	if err != nil {
		return 0, err
	}
	return *resp.Balance, nil
}

// Balance reads the bound account's current balance.
func (a *ATM) Balance() (float64, error) {
	resp, err := a.c.roundTrip(Request{Op: OpBalance, Account: a.account})
	if err != nil {
		return 0, err
	}
	return *resp.Balance, nil
}

// ChangePIN replaces the bound account's PIN.
func (a *ATM) ChangePIN(newPin string) error {
	_, err := a.c.roundTrip(Request{Op: OpUpdatePin, Account: a.account, PIN: newPin})
	return err
}

// Close drops the connection without logging out.
func (a *ATM) Close() error { return a.c.close() }
