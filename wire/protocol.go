/*
protocol.go - Socket protocol message types

PURPOSE:
  Defines the framed messages spoken between the socket server and the
  terminal clients (teller stations and ATMs). One JSON object per line,
  newline-terminated, request and response alternating on one connection.

FRAMING:
  Request  {"op": "deposit", "session": "...", "account": 2223, "amount": 50}
  Response {"ok": true, "balance": 150}

  A connection may carry many requests; the session id issued by a login is
  echoed back on every later request. Closing the connection does NOT log
  the session out; terminals issue an explicit logout op.

OPS:
  Every op maps one-to-one onto an engine operation, so the socket path and
  the HTTP gateway cannot diverge in behavior.

SEE ALSO:
  - server.go: Dispatch loop
  - client.go: Teller and ATM client types
*/
package wire

// Op names for the socket protocol.
const (
	OpEmployeeLogin = "employeeLogin"
	OpCustomerLogin = "customerLogin"
	OpATMLogin      = "atmLogin"
	OpLogout        = "logout"

	OpListAccounts  = "listAccounts"
	OpBalance       = "balance"
	OpDeposit       = "deposit"
	OpWithdraw      = "withdraw"
	OpTransfer      = "transfer"
	OpUpdatePin     = "updatePin"
	OpCreateAccount = "createAccount"
	OpRemoveAccount = "removeAccount"
	OpSearchAccount = "searchAccount"
	OpLinkAccount   = "linkAccount"

	OpCreateProfile = "createProfile"
	OpUpdateProfile = "updateProfile"
	OpSearchProfile = "searchProfile"

	OpLogs = "logs"
)

// Request is one framed client request. Only the fields meaningful to the op
// are set.
type Request struct {
	Op      string `json:"op"`
	Session string `json:"session,omitempty"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	Account   int     `json:"account,omitempty"`
	ToAccount int     `json:"toAccount,omitempty"`
	PIN       string  `json:"pin,omitempty"`
	Type      string  `json:"type,omitempty"`
	Amount    float64 `json:"amount,omitempty"`

	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Email       string `json:"email,omitempty"`
	CreditScore *int   `json:"creditScore,omitempty"`
}

// AccountInfo is the account shape on the wire.
type AccountInfo struct {
	Number      int     `json:"number"`
	PIN         string  `json:"pin"`
	Type        string  `json:"type"`
	Balance     float64 `json:"balance"`
	CreditLimit float64 `json:"creditLimit,omitempty"`
}

// ProfileInfo is the profile shape on the wire. The password is never sent.
type ProfileInfo struct {
	Username       string `json:"username"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	Email          string `json:"email"`
	CreditScore    int    `json:"creditScore"`
	LinkedAccounts []int  `json:"linkedAccounts"`
}

// LogInfo is one audit event on the wire.
type LogInfo struct {
	Account     int    `json:"account"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// Response is one framed server response.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	Session  string        `json:"session,omitempty"`
	Role     string        `json:"role,omitempty"`
	Balance  *float64      `json:"balance,omitempty"`
	Account  *AccountInfo  `json:"account,omitempty"`
	Accounts []AccountInfo `json:"accounts,omitempty"`
	Profile  *ProfileInfo  `json:"profile,omitempty"`
	Logs     []LogInfo     `json:"logs,omitempty"`
}
