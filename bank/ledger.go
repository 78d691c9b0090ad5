/*
ledger.go - The authoritative account/profile registry

PURPOSE:
  The Ledger is the single owner of all Account and Profile records and the
  only component allowed to mutate them. Every mutating operation is one
  atomic unit: the invariant check and the persisted commit happen under a
  single critical section per affected record set, so no partial mutation is
  ever observable to a concurrent reader.

CRITICAL INVARIANTS:
  1. BALANCE FLOOR: checking/saving never below zero; lineOfCredit never
     below -creditLimit. A rejected withdrawal leaves the balance unchanged.
  2. UNIQUE NUMBERS: account numbers are assigned from a persisted monotonic
     counter and are never reused, including numbers of removed accounts.
  3. SINGLE OWNER: an account is linked to at most one profile.
  4. COMMIT OR NOTHING: if the store rejects a commit, the in-memory state
     is not changed and the previous on-disk state stays intact.

CONCURRENCY:
  One lock per record set: accountsMu and profilesMu are independent, so
  profile-only operations never block deposits. A transfer performs both
  legs inside the one accounts critical section and one commit, closing the
  lost-update window between withdraw and deposit. Both transports (HTTP
  gateway, socket server) must share one Ledger instance in one process.

SEE ALSO:
  - store.go: Commit semantics
  - session.go: Authentication and role gating on top of this registry
*/
package bank

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the in-memory registry backed by a Store. Construct with Open.
type Ledger struct {
	store Store

	accountsMu sync.RWMutex
	accounts   map[int]Account
	next       int // next account number to assign; monotonic, persisted

	profilesMu sync.RWMutex
	profiles   map[string]Profile

	// employees are read-only after Open; no lock needed.
	employees map[string]string
}

// Open loads all record sets from the store and returns a ready Ledger.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	accounts, next, err := store.LoadAccounts(ctx)
	if err != nil {
		return nil, persistErr("loading accounts", err)
	}
	profiles, err := store.LoadProfiles(ctx)
	if err != nil {
		return nil, persistErr("loading profiles", err)
	}
	employees, err := store.LoadEmployees(ctx)
	if err != nil {
		return nil, persistErr("loading employees", err)
	}

	l := &Ledger{
		store:     store,
		accounts:  make(map[int]Account, len(accounts)),
		next:      next,
		profiles:  make(map[string]Profile, len(profiles)),
		employees: make(map[string]string, len(employees)),
	}
	for _, a := range accounts {
		l.accounts[a.Number] = a
		if a.Number >= l.next {
			l.next = a.Number + 1
		}
	}
	for _, p := range profiles {
		l.profiles[p.Username] = p
	}
	for _, e := range employees {
		l.employees[e.Username] = e.Password
	}
	return l, nil
}

// =============================================================================
// ACCOUNT OPERATIONS
// =============================================================================

// AccountSpec describes an account to create. Number <= 0 means assign the
// next free number; an explicit number (employee path) collides with
// ErrDuplicateAccount. For LineOfCredit the initial balance doubles as the
// credit ceiling.
type AccountSpec struct {
	Number         int
	PIN            string
	Type           AccountType
	InitialBalance decimal.Decimal
}

// CreateAccount validates the spec, assigns a number, and commits the new
// account.
func (l *Ledger) CreateAccount(ctx context.Context, spec AccountSpec) (Account, error) {
	if !spec.Type.Valid() {
		return Account{}, ErrInvalidAccountType
	}
	if !ValidPIN(spec.PIN) {
		return Account{}, ErrInvalidPin
	}
	if spec.InitialBalance.IsNegative() {
		return Account{}, ErrInvalidAmount
	}

	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()

	number := spec.Number
	if number <= 0 {
		number = l.next
	} else if _, exists := l.accounts[number]; exists {
		return Account{}, ErrDuplicateAccount
	}

	acct := Account{
		Number:  number,
		PIN:     spec.PIN,
		Type:    spec.Type,
		Balance: spec.InitialBalance,
	}
	if spec.Type == LineOfCredit {
		acct.CreditLimit = spec.InitialBalance
	}

	next := l.next
	if number >= next {
		next = number + 1
	}
	if err := l.commitAccountsLocked(ctx, next, []Account{acct}, nil); err != nil {
		return Account{}, err
	}

	l.audit(ctx, LogEntry{
		Account:     number,
		Kind:        LogUpdateAccount,
		Description: fmt.Sprintf("Created %s account with balance %s", spec.Type, acct.Balance),
	})
	return acct, nil
}

// RemoveAccount deletes the account and unlinks it from its owning profile,
// if any. The account's number is never reassigned.
func (l *Ledger) RemoveAccount(ctx context.Context, number int) error {
	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()

	if _, ok := l.accounts[number]; !ok {
		return ErrAccountNotFound
	}
	if err := l.commitAccountsLocked(ctx, l.next, nil, []int{number}); err != nil {
		return err
	}

	l.profilesMu.Lock()
	defer l.profilesMu.Unlock()
	for _, p := range l.profiles {
		if !p.Linked(number) {
			continue
		}
		cp := p
		cp.Accounts = make([]int, 0, len(p.Accounts)-1)
		for _, n := range p.Accounts {
			if n != number {
				cp.Accounts = append(cp.Accounts, n)
			}
		}
		if err := l.commitProfilesLocked(ctx, cp); err != nil {
			return err
		}
		break
	}

	l.audit(ctx, LogEntry{
		Account:     number,
		Kind:        LogUpdateAccount,
		Description: "Removed account",
	})
	return nil
}

// Deposit increases the balance and returns the new balance.
func (l *Ledger) Deposit(ctx context.Context, number int, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()

	acct, ok := l.accounts[number]
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}
	acct.Balance = acct.Balance.Add(amount)
	if err := l.commitAccountsLocked(ctx, l.next, []Account{acct}, nil); err != nil {
		return decimal.Zero, err
	}

	l.audit(ctx, LogEntry{
		Account:     number,
		Kind:        LogDeposit,
		Description: "Deposit: " + amount.String(),
	})
	return acct.Balance, nil
}

// Withdraw decreases the balance and returns the new balance. The withdrawal
// is rejected with InsufficientFundsError when the result would fall below
// the account-type floor.
func (l *Ledger) Withdraw(ctx context.Context, number int, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()

	acct, ok := l.accounts[number]
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}
	newBalance := acct.Balance.Sub(amount)
	if newBalance.LessThan(acct.Floor()) {
		return decimal.Zero, &InsufficientFundsError{
			Account:   number,
			Available: acct.Balance,
			Requested: amount,
			Floor:     acct.Floor(),
		}
	}
	acct.Balance = newBalance
	if err := l.commitAccountsLocked(ctx, l.next, []Account{acct}, nil); err != nil {
		return decimal.Zero, err
	}

	l.audit(ctx, LogEntry{
		Account:     number,
		Kind:        LogWithdrawal,
		Description: "Withdrawal: " + amount.String(),
	})
	return acct.Balance, nil
}

// Transfer moves amount from one account to another. Both legs happen inside
// the one accounts critical section and one commit, so a failed credit can
// never leave funds debited.
func (l *Ledger) Transfer(ctx context.Context, from, to int, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()

	src, ok := l.accounts[from]
	if !ok {
		return ErrAccountNotFound
	}
	dst, ok := l.accounts[to]
	if !ok {
		return ErrAccountNotFound
	}

	newBalance := src.Balance.Sub(amount)
	if newBalance.LessThan(src.Floor()) {
		return &InsufficientFundsError{
			Account:   from,
			Available: src.Balance,
			Requested: amount,
			Floor:     src.Floor(),
		}
	}
	if from == to {
		// Debit and credit cancel out; nothing to commit.
		return nil
	}
	src.Balance = newBalance
	dst.Balance = dst.Balance.Add(amount)
	if err := l.commitAccountsLocked(ctx, l.next, []Account{src, dst}, nil); err != nil {
		return err
	}

	l.audit(ctx, LogEntry{
		Account:     from,
		Kind:        LogWithdrawal,
		Description: fmt.Sprintf("Transfer to %d: %s", to, amount),
	})
	l.audit(ctx, LogEntry{
		Account:     to,
		Kind:        LogDeposit,
		Description: fmt.Sprintf("Transfer from %d: %s", from, amount),
	})
	return nil
}

// ChangePIN replaces the account PIN. The stored PIN is unchanged unless the
// new one is exactly four decimal digits.
func (l *Ledger) ChangePIN(ctx context.Context, number int, newPin string) error {
	if !ValidPIN(newPin) {
		return ErrInvalidPin
	}

	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()

	acct, ok := l.accounts[number]
	if !ok {
		return ErrAccountNotFound
	}
	acct.PIN = newPin
	if err := l.commitAccountsLocked(ctx, l.next, []Account{acct}, nil); err != nil {
		return err
	}

	l.audit(ctx, LogEntry{
		Account:     number,
		Kind:        LogUpdateAccount,
		Description: "PIN changed",
	})
	return nil
}

// Account returns the current state of one account. Callers must re-fetch
// rather than cache: another terminal may mutate the account between reads.
func (l *Ledger) Account(ctx context.Context, number int) (Account, error) {
	l.accountsMu.RLock()
	defer l.accountsMu.RUnlock()

	acct, ok := l.accounts[number]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

// Accounts returns the accounts for the given numbers, skipping any that no
// longer exist (a profile may hold a link to a removed account).
func (l *Ledger) Accounts(ctx context.Context, numbers []int) []Account {
	l.accountsMu.RLock()
	defer l.accountsMu.RUnlock()

	out := make([]Account, 0, len(numbers))
	for _, n := range numbers {
		if acct, ok := l.accounts[n]; ok {
			out = append(out, acct)
		}
	}
	return out
}

// Balance returns the current balance of one account.
func (l *Ledger) Balance(ctx context.Context, number int) (decimal.Decimal, error) {
	acct, err := l.Account(ctx, number)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

// =============================================================================
// PROFILE OPERATIONS
// =============================================================================

// CreateProfile registers a new customer profile. Account links are
// established separately through LinkAccount.
func (l *Ledger) CreateProfile(ctx context.Context, p Profile) error {
	l.profilesMu.Lock()
	defer l.profilesMu.Unlock()

	if _, exists := l.profiles[p.Username]; exists {
		return ErrDuplicateProfile
	}
	p.Accounts = nil
	if err := l.commitProfilesLocked(ctx, p); err != nil {
		return err
	}

	l.audit(ctx, LogEntry{
		Kind:        LogUpdateAccount,
		Description: "Created profile: " + p.Username,
	})
	return nil
}

// ProfileUpdate carries the fields to change; nil fields keep their current
// value. Account links cannot be changed through an update.
type ProfileUpdate struct {
	Password    *string
	Name        *string
	Phone       *string
	Address     *string
	Email       *string
	CreditScore *int
}

// UpdateProfile applies the update and returns the new profile state.
func (l *Ledger) UpdateProfile(ctx context.Context, username string, upd ProfileUpdate) (Profile, error) {
	l.profilesMu.Lock()
	defer l.profilesMu.Unlock()

	p, ok := l.profiles[username]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	if upd.Password != nil && *upd.Password != "" {
		p.Password = *upd.Password
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Phone != nil {
		p.Phone = *upd.Phone
	}
	if upd.Address != nil {
		p.Address = *upd.Address
	}
	if upd.Email != nil {
		p.Email = *upd.Email
	}
	if upd.CreditScore != nil {
		p.CreditScore = *upd.CreditScore
	}
	if err := l.commitProfilesLocked(ctx, p); err != nil {
		return Profile{}, err
	}

	l.audit(ctx, LogEntry{
		Kind:        LogUpdateAccount,
		Description: "Updated profile: " + username,
	})
	return cloneProfile(p), nil
}

// LinkAccount links an existing account to a profile. An account has at most
// one owner; linking an already-owned account fails with ErrDuplicateLink.
func (l *Ledger) LinkAccount(ctx context.Context, username string, number int) (Profile, error) {
	// Hold the accounts read lock across the profile commit so the account
	// cannot be removed mid-link. Lock order is always accounts, profiles.
	l.accountsMu.RLock()
	defer l.accountsMu.RUnlock()

	if _, ok := l.accounts[number]; !ok {
		return Profile{}, ErrAccountNotFound
	}

	l.profilesMu.Lock()
	defer l.profilesMu.Unlock()

	p, ok := l.profiles[username]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	for _, other := range l.profiles {
		if other.Linked(number) {
			return Profile{}, ErrDuplicateLink
		}
	}
	cp := p
	cp.Accounts = append(append([]int(nil), p.Accounts...), number)
	if err := l.commitProfilesLocked(ctx, cp); err != nil {
		return Profile{}, err
	}

	l.audit(ctx, LogEntry{
		Account:     number,
		Kind:        LogUpdateAccount,
		Description: "Linked account to profile: " + username,
	})
	return cloneProfile(cp), nil
}

// Profile returns one profile by username.
func (l *Ledger) Profile(ctx context.Context, username string) (Profile, error) {
	l.profilesMu.RLock()
	defer l.profilesMu.RUnlock()

	p, ok := l.profiles[username]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

// ProfileByAccount returns the profile owning the given account, if any.
func (l *Ledger) ProfileByAccount(ctx context.Context, number int) (Profile, bool) {
	l.profilesMu.RLock()
	defer l.profilesMu.RUnlock()

	for _, p := range l.profiles {
		if p.Linked(number) {
			return cloneProfile(p), true
		}
	}
	return Profile{}, false
}

// =============================================================================
// CREDENTIAL CHECKS - used by the SessionManager
// =============================================================================

// VerifyEmployee checks an employee credential pair.
func (l *Ledger) VerifyEmployee(username, password string) bool {
	stored, ok := l.employees[username]
	return ok && stored == password
}

// VerifyCustomer checks profile credentials and returns the bound profile.
func (l *Ledger) VerifyCustomer(username, password string) (Profile, bool) {
	l.profilesMu.RLock()
	defer l.profilesMu.RUnlock()

	p, ok := l.profiles[username]
	if !ok || p.Password != password {
		return Profile{}, false
	}
	return cloneProfile(p), true
}

// VerifyATM checks an account PIN directly; no profile is required.
func (l *Ledger) VerifyATM(number int, pin string) (Account, bool) {
	l.accountsMu.RLock()
	defer l.accountsMu.RUnlock()

	acct, ok := l.accounts[number]
	if !ok || acct.PIN != pin {
		return Account{}, false
	}
	return acct, true
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditLog returns every recorded event in append order.
func (l *Ledger) AuditLog(ctx context.Context) ([]LogEntry, error) {
	entries, err := l.store.LoadLog(ctx)
	if err != nil {
		return nil, persistErr("loading log", err)
	}
	return entries, nil
}

// audit appends a log entry. Best effort: mutations are logged on success
// only, and a log write failure does not fail the already-committed
// operation.
func (l *Ledger) audit(ctx context.Context, e LogEntry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_ = l.store.AppendLog(ctx, e)
}

// =============================================================================
// COMMIT HELPERS
// =============================================================================

// commitAccountsLocked persists the full account set with the given updates
// and removals applied, then installs them in memory. The in-memory state is
// untouched when the save fails. Caller holds accountsMu.
func (l *Ledger) commitAccountsLocked(ctx context.Context, next int, put []Account, remove []int) error {
	snapshot := make(map[int]Account, len(l.accounts)+len(put))
	for k, v := range l.accounts {
		snapshot[k] = v
	}
	for _, n := range remove {
		delete(snapshot, n)
	}
	for _, a := range put {
		snapshot[a.Number] = a
	}

	list := make([]Account, 0, len(snapshot))
	for _, a := range snapshot {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Number < list[j].Number })

	if err := l.store.SaveAccounts(ctx, list, next); err != nil {
		return persistErr("saving accounts", err)
	}
	l.accounts = snapshot
	l.next = next
	return nil
}

// commitProfilesLocked persists the full profile set with the given profiles
// replaced. Caller holds profilesMu.
func (l *Ledger) commitProfilesLocked(ctx context.Context, put ...Profile) error {
	snapshot := make(map[string]Profile, len(l.profiles)+len(put))
	for k, v := range l.profiles {
		snapshot[k] = v
	}
	for _, p := range put {
		snapshot[p.Username] = p
	}

	list := make([]Profile, 0, len(snapshot))
	for _, p := range snapshot {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })

	if err := l.store.SaveProfiles(ctx, list); err != nil {
		return persistErr("saving profiles", err)
	}
	l.profiles = snapshot
	return nil
}

func cloneProfile(p Profile) Profile {
	cp := p
	cp.Accounts = append([]int(nil), p.Accounts...)
	return cp
}
