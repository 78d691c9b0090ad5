/*
session.go - Authentication and role-gated access

PURPOSE:
  Authenticates employees, customers, and ATM cardholders and tracks live
  sessions for both client paths (long-lived socket connections and
  bearer-token HTTP requests). Sessions are opaque ids mapped to a tagged
  session value; invalidation happens only through explicit logout.

STATE MACHINE (per session):
  Unauthenticated -> Authenticated(role) -> Closed
  Any operation on a Closed or unknown session fails with ErrSessionInvalid.

SESSION KINDS:
  Each role is its own type carrying only the fields meaningful to it, so an
  illegal state (an employee session with a bound account) is
  unrepresentable:
    EmployeeSession{Username}
    CustomerSession{Username}   - the only kind bound to a profile
    ATMSession{Account}         - scoped to exactly one account

ROLE GATES:
  Account creation/removal, searches, profile updates, and linking require
  an employee. Deposit/withdraw/balance/pin-change require an employee (the
  teller path acts on any account), a customer on one of its linked
  accounts, or an ATM session on its own bound account.

  Customer links are re-fetched from the Ledger on every check; the session
  never caches a profile snapshot that could drift.

SEE ALSO:
  - ledger.go: Credential checks and the authoritative records
*/
package bank

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// =============================================================================
// SESSION KINDS
// =============================================================================

// Role identifies what kind of client a session belongs to.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleCustomer Role = "customer"
	RoleATM      Role = "atm"
)

// Session is an authenticated context. Concrete kinds: EmployeeSession,
// CustomerSession, ATMSession.
type Session interface {
	SessionID() string
	SessionRole() Role
}

// EmployeeSession is a teller-station or back-office session.
type EmployeeSession struct {
	id       string
	Username string
}

func (s *EmployeeSession) SessionID() string { return s.id }
func (s *EmployeeSession) SessionRole() Role { return RoleEmployee }

// CustomerSession is bound to one profile and acts on its linked accounts.
type CustomerSession struct {
	id       string
	Username string
}

func (s *CustomerSession) SessionID() string { return s.id }
func (s *CustomerSession) SessionRole() Role { return RoleCustomer }

// ATMSession is scoped to exactly one account. Even when the account belongs
// to a profile with siblings, the session never exposes them.
type ATMSession struct {
	id      string
	Account int
}

func (s *ATMSession) SessionID() string { return s.id }
func (s *ATMSession) SessionRole() Role { return RoleATM }

// =============================================================================
// SESSION MANAGER
// =============================================================================

// SessionManager issues and tracks sessions over one shared Ledger.
type SessionManager struct {
	ledger *Ledger

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewSessionManager creates a session manager bound to the given Ledger.
func NewSessionManager(ledger *Ledger) *SessionManager {
	return &SessionManager{
		ledger:   ledger,
		sessions: make(map[string]Session),
	}
}

// EmployeeLogin authenticates against the employee credential set.
func (m *SessionManager) EmployeeLogin(ctx context.Context, username, password string) (*EmployeeSession, error) {
	if !m.ledger.VerifyEmployee(username, password) {
		return nil, ErrAuthenticationFailed
	}
	s := &EmployeeSession{id: uuid.NewString(), Username: username}
	m.put(s)
	m.ledger.audit(ctx, LogEntry{
		Kind:        LogLogin,
		Description: "Employee login: " + username,
	})
	return s, nil
}

// CustomerLogin authenticates against profile credentials and returns the
// bound profile. This is the only login path that yields a profile.
func (m *SessionManager) CustomerLogin(ctx context.Context, username, password string) (*CustomerSession, Profile, error) {
	profile, ok := m.ledger.VerifyCustomer(username, password)
	if !ok {
		return nil, Profile{}, ErrAuthenticationFailed
	}
	s := &CustomerSession{id: uuid.NewString(), Username: username}
	m.put(s)
	m.ledger.audit(ctx, LogEntry{
		Kind:        LogLogin,
		Description: "Customer login: " + username,
	})
	return s, profile, nil
}

// ATMLogin authenticates a cardholder by account number and PIN. No profile
// is required; the session is scoped to that single account.
func (m *SessionManager) ATMLogin(ctx context.Context, number int, pin string) (*ATMSession, Account, error) {
	acct, ok := m.ledger.VerifyATM(number, pin)
	if !ok {
		return nil, Account{}, ErrAuthenticationFailed
	}
	s := &ATMSession{id: uuid.NewString(), Account: number}
	m.put(s)
	m.ledger.audit(ctx, LogEntry{
		Account:     number,
		Kind:        LogLogin,
		Description: "ATM login",
	})
	return s, acct, nil
}

// Logout closes the session. Any later use of the id fails with
// ErrSessionInvalid.
func (m *SessionManager) Logout(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionInvalid
	}
	m.ledger.audit(ctx, LogEntry{
		Kind:        LogLogout,
		Description: "Logout",
	})
	return nil
}

// Session resolves a session id.
func (m *SessionManager) Session(id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionInvalid
	}
	return s, nil
}

// RequireEmployee resolves the session and fails with ErrRoleForbidden unless
// it is an employee session.
func (m *SessionManager) RequireEmployee(id string) (*EmployeeSession, error) {
	s, err := m.Session(id)
	if err != nil {
		return nil, err
	}
	emp, ok := s.(*EmployeeSession)
	if !ok {
		return nil, ErrRoleForbidden
	}
	return emp, nil
}

// AuthorizeAccount resolves the session and checks that it may operate on the
// given account: employees on any account, customers on their linked
// accounts, ATM sessions on their bound account only.
func (m *SessionManager) AuthorizeAccount(ctx context.Context, id string, number int) (Session, error) {
	s, err := m.Session(id)
	if err != nil {
		return nil, err
	}
	switch sess := s.(type) {
	case *EmployeeSession:
		return s, nil
	case *CustomerSession:
		profile, err := m.ledger.Profile(ctx, sess.Username)
		if err != nil {
			return nil, ErrRoleForbidden
		}
		if !profile.Linked(number) {
			return nil, ErrRoleForbidden
		}
		return s, nil
	case *ATMSession:
		if sess.Account != number {
			return nil, ErrRoleForbidden
		}
		return s, nil
	}
	return nil, ErrRoleForbidden
}

// Identity returns the username or account number a session is bound to,
// for display and audit descriptions.
func Identity(s Session) string {
	switch sess := s.(type) {
	case *EmployeeSession:
		return sess.Username
	case *CustomerSession:
		return sess.Username
	case *ATMSession:
		return strconv.Itoa(sess.Account)
	}
	return ""
}

func (m *SessionManager) put(s Session) {
	m.mu.Lock()
	m.sessions[s.SessionID()] = s
	m.mu.Unlock()
}
