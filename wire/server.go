/*
server.go - Socket server for terminal clients

PURPOSE:
  Serves teller stations and ATMs over plain TCP: one goroutine per
  connection, one JSON request per line, one JSON response per line. The
  server holds no state of its own; every op delegates to the same Ledger
  and SessionManager the HTTP gateway uses, so both client paths see one
  consistent engine.

AUTHORIZATION:
  Identical to the HTTP gateway: employees act on any account, customers on
  their linked accounts (re-checked per request), ATM sessions on their one
  bound account. Management ops require an employee session.

CONNECTION LIFECYCLE:
  A dropped connection does not invalidate its sessions; only an explicit
  logout op does. Malformed lines get an error response and the connection
  stays open.

SEE ALSO:
  - protocol.go: Message framing
  - api/handlers.go: The HTTP rendition of the same ops
*/
package wire

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/bank-engine/bank"
)

// Server accepts terminal connections and dispatches protocol ops.
type Server struct {
	Ledger   *bank.Ledger
	Sessions *bank.SessionManager

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
}

// NewServer creates a socket server over one shared engine.
func NewServer(ledger *bank.Ledger, sessions *bank.SessionManager) *Server {
	return &Server{
		Ledger:   ledger,
		Sessions: sessions,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Listen binds addr and returns the bound address (useful with ":0").
func (s *Server) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return ln.Addr(), nil
}

// Serve accepts connections until Close. Call Listen first.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		s.track(conn)
		go s.handle(conn)
	}
}

// Close stops the listener and drops every open connection. Live sessions
// survive; terminals reconnect and keep their session ids.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[net.Conn]struct{})
	return err
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handle(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := encoder.Encode(Response{Error: "malformed request"}); err != nil {
				return
			}
			continue
		}
		resp := s.dispatch(context.Background(), &req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("socket: connection read error: %v", err)
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

func (s *Server) dispatch(ctx context.Context, req *Request) Response {
	switch req.Op {
	case OpEmployeeLogin:
		return s.employeeLogin(ctx, req)
	case OpCustomerLogin:
		return s.customerLogin(ctx, req)
	case OpATMLogin:
		return s.atmLogin(ctx, req)
	case OpLogout:
		return s.logout(ctx, req)
	case OpListAccounts:
		return s.listAccounts(ctx, req)
	case OpBalance:
		return s.balance(ctx, req)
	case OpDeposit:
		return s.deposit(ctx, req)
	case OpWithdraw:
		return s.withdraw(ctx, req)
	case OpTransfer:
		return s.transfer(ctx, req)
	case OpUpdatePin:
		return s.updatePin(ctx, req)
	case OpCreateAccount:
		return s.createAccount(ctx, req)
	case OpRemoveAccount:
		return s.removeAccount(ctx, req)
	case OpSearchAccount:
		return s.searchAccount(ctx, req)
	case OpLinkAccount:
		return s.linkAccount(ctx, req)
	case OpCreateProfile:
		return s.createProfile(ctx, req)
	case OpUpdateProfile:
		return s.updateProfile(ctx, req)
	case OpSearchProfile:
		return s.searchProfile(ctx, req)
	case OpLogs:
		return s.logs(ctx, req)
	}
	return fail(errors.New("unknown op: " + req.Op))
}

func (s *Server) employeeLogin(ctx context.Context, req *Request) Response {
	sess, err := s.Sessions.EmployeeLogin(ctx, req.Username, req.Password)
	if err != nil {
		return fail(err)
	}
	return Response{OK: true, Session: sess.SessionID(), Role: string(bank.RoleEmployee)}
}

func (s *Server) customerLogin(ctx context.Context, req *Request) Response {
	sess, profile, err := s.Sessions.CustomerLogin(ctx, req.Username, req.Password)
	if err != nil {
		return fail(err)
	}
	info := toProfileInfo(profile)
	return Response{OK: true, Session: sess.SessionID(), Role: string(bank.RoleCustomer), Profile: &info}
}

func (s *Server) atmLogin(ctx context.Context, req *Request) Response {
	sess, acct, err := s.Sessions.ATMLogin(ctx, req.Account, req.PIN)
	if err != nil {
		return fail(err)
	}
	info := toAccountInfo(acct)
	return Response{OK: true, Session: sess.SessionID(), Role: string(bank.RoleATM), Account: &info}
}

func (s *Server) logout(ctx context.Context, req *Request) Response {
	if err := s.Sessions.Logout(ctx, req.Session); err != nil {
		return fail(err)
	}
	return Response{OK: true}
}

func (s *Server) listAccounts(ctx context.Context, req *Request) Response {
	sess, err := s.Sessions.Session(req.Session)
	if err != nil {
		return fail(err)
	}
	var numbers []int
	switch t := sess.(type) {
	case *bank.CustomerSession:
		profile, err := s.Ledger.Profile(ctx, t.Username)
		if err != nil {
			return fail(err)
		}
		numbers = profile.Accounts
	case *bank.ATMSession:
		numbers = []int{t.Account}
	}
	accounts := s.Ledger.Accounts(ctx, numbers)
	infos := make([]AccountInfo, len(accounts))
	for i, a := range accounts {
		infos[i] = toAccountInfo(a)
	}
	return Response{OK: true, Accounts: infos}
}

func (s *Server) balance(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.AuthorizeAccount(ctx, req.Session, req.Account); err != nil {
		return fail(err)
	}
	balance, err := s.Ledger.Balance(ctx, req.Account)
	if err != nil {
		return fail(err)
	}
	out, _ := balance.Float64()
	return Response{OK: true, Balance: &out}
}

func (s *Server) deposit(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.AuthorizeAccount(ctx, req.Session, req.Account); err != nil {
		return fail(err)
	}
	balance, err := s.Ledger.Deposit(ctx, req.Account, decimal.NewFromFloat(req.Amount))
	if err != nil {
		return fail(err)
	}
	out, _ := balance.Float64()
	return Response{OK: true, Balance: &out}
}

func (s *Server) withdraw(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.AuthorizeAccount(ctx, req.Session, req.Account); err != nil {
		return fail(err)
	}
	balance, err := s.Ledger.Withdraw(ctx, req.Account, decimal.NewFromFloat(req.Amount))
	if err != nil {
		return fail(err)
	}
	out, _ := balance.Float64()
	return Response{OK: true, Balance: &out}
}

func (s *Server) transfer(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.AuthorizeAccount(ctx, req.Session, req.Account); err != nil {
		return fail(err)
	}
	if err := s.Ledger.Transfer(ctx, req.Account, req.ToAccount, decimal.NewFromFloat(req.Amount)); err != nil {
		return fail(err)
	}
	return Response{OK: true}
}

func (s *Server) updatePin(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.AuthorizeAccount(ctx, req.Session, req.Account); err != nil {
		return fail(err)
	}
	if err := s.Ledger.ChangePIN(ctx, req.Account, req.PIN); err != nil {
		return fail(err)
	}
	return Response{OK: true}
}

func (s *Server) createAccount(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.RequireEmployee(req.Session); err != nil {
		return fail(err)
	}
	acct, err := s.Ledger.CreateAccount(ctx, bank.AccountSpec{
		Number:         req.Account,
		PIN:            req.PIN,
		Type:           bank.AccountType(req.Type),
		InitialBalance: decimal.NewFromFloat(req.Amount),
	})
	if err != nil {
		return fail(err)
	}
	info := toAccountInfo(acct)
	return Response{OK: true, Account: &info}
}

func (s *Server) removeAccount(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.RequireEmployee(req.Session); err != nil {
		return fail(err)
	}
	if err := s.Ledger.RemoveAccount(ctx, req.Account); err != nil {
		return fail(err)
	}
	return Response{OK: true}
}

func (s *Server) searchAccount(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.RequireEmployee(req.Session); err != nil {
		return fail(err)
	}
	acct, err := s.Ledger.Account(ctx, req.Account)
	if err != nil {
		return fail(err)
	}
	resp := Response{OK: true}
	info := toAccountInfo(acct)
	resp.Account = &info
	if profile, ok := s.Ledger.ProfileByAccount(ctx, req.Account); ok {
		p := toProfileInfo(profile)
		resp.Profile = &p
	}
	return resp
}

func (s *Server) linkAccount(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.RequireEmployee(req.Session); err != nil {
		return fail(err)
	}
	profile, err := s.Ledger.LinkAccount(ctx, req.Username, req.Account)
	if err != nil {
		return fail(err)
	}
	info := toProfileInfo(profile)
	return Response{OK: true, Profile: &info}
}

func (s *Server) createProfile(ctx context.Context, req *Request) Response {
	err := s.Ledger.CreateProfile(ctx, bank.Profile{
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Address:  req.Address,
		Email:    req.Email,
	})
	if err != nil {
		return fail(err)
	}
	return Response{OK: true}
}

func (s *Server) updateProfile(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.RequireEmployee(req.Session); err != nil {
		return fail(err)
	}
	upd := bank.ProfileUpdate{CreditScore: req.CreditScore}
	if req.Password != "" {
		upd.Password = &req.Password
	}
	if req.Name != "" {
		upd.Name = &req.Name
	}
	if req.Phone != "" {
		upd.Phone = &req.Phone
	}
	if req.Address != "" {
		upd.Address = &req.Address
	}
	if req.Email != "" {
		upd.Email = &req.Email
	}
	profile, err := s.Ledger.UpdateProfile(ctx, req.Username, upd)
	if err != nil {
		return fail(err)
	}
	info := toProfileInfo(profile)
	return Response{OK: true, Profile: &info}
}

func (s *Server) searchProfile(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.RequireEmployee(req.Session); err != nil {
		return fail(err)
	}
	profile, err := s.Ledger.Profile(ctx, req.Username)
	if err != nil {
		return fail(err)
	}
	info := toProfileInfo(profile)
	return Response{OK: true, Profile: &info}
}

func (s *Server) logs(ctx context.Context, req *Request) Response {
	if _, err := s.Sessions.RequireEmployee(req.Session); err != nil {
		return fail(err)
	}
	entries, err := s.Ledger.AuditLog(ctx)
	if err != nil {
		return fail(err)
	}
	logs := make([]LogInfo, len(entries))
	for i, e := range entries {
		logs[i] = LogInfo{
			Account:     e.Account,
			Kind:        string(e.Kind),
			Description: e.Description,
			Timestamp:   e.At.Format(time.RFC3339),
		}
	}
	return Response{OK: true, Logs: logs}
}

// =============================================================================
// HELPERS
// =============================================================================

func fail(err error) Response {
	return Response{Error: err.Error()}
}

func toAccountInfo(a bank.Account) AccountInfo {
	balance, _ := a.Balance.Float64()
	limit, _ := a.CreditLimit.Float64()
	return AccountInfo{
		Number:      a.Number,
		PIN:         a.PIN,
		Type:        string(a.Type),
		Balance:     balance,
		CreditLimit: limit,
	}
}

func toProfileInfo(p bank.Profile) ProfileInfo {
	linked := p.Accounts
	if linked == nil {
		linked = []int{}
	}
	return ProfileInfo{
		Username:       p.Username,
		Name:           p.Name,
		Phone:          p.Phone,
		Address:        p.Address,
		Email:          p.Email,
		CreditScore:    p.CreditScore,
		LinkedAccounts: linked,
	}
}
