/*
Package flatfile provides the delimited-text implementation of bank.Store.

PURPOSE:
  Persists the record sets as delimited text files, one line per record,
  positional comma-separated fields:

    accounts.txt   number,pin,type,balance[,creditLimit]
    profiles.txt   username,password,name,phone,address,email,creditScore,[n,n,...]
    employees.txt  username,password
    log.txt        accountNumber,kind,description,timestamp

  accounts.seq holds the next account number so a removed account's number
  is never reassigned, even across restarts.

COMMIT PROTOCOL:
  A save writes the full record set to a temporary file in the same
  directory and renames it over the target. A failed write leaves the prior
  committed file intact; a partially written file is never visible under
  the real name.

  log.txt is the one append-only file; entries are appended with O_APPEND
  under the log lock and never rewritten. The log description is sanitized
  so it can never contain the field delimiter.

CONCURRENCY:
  One mutex per file. This serializes writers within the process; the
  process hosting this store must be the only writer to the directory.

MALFORMED LINES:
  Skipped on load. A hand-edited or truncated file degrades to the records
  that still parse.

SEE ALSO:
  - bank/store.go: Commit semantics the Ledger relies on
*/
package flatfile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/bank-engine/bank"
)

const (
	accountsFile  = "accounts.txt"
	sequenceFile  = "accounts.seq"
	profilesFile  = "profiles.txt"
	employeesFile = "employees.txt"
	logFile       = "log.txt"

	// firstAccountNumber is assigned when the store holds no accounts and
	// no persisted counter.
	firstAccountNumber = 1001
)

// Store is a flat-file bank.Store rooted at one data directory.
type Store struct {
	dir string

	accountsMu  sync.Mutex
	profilesMu  sync.Mutex
	employeesMu sync.Mutex
	logMu       sync.Mutex
}

// New creates the data directory if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) LoadAccounts(_ context.Context) ([]bank.Account, int, error) {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	lines, err := readLines(filepath.Join(s.dir, accountsFile))
	if err != nil {
		return nil, 0, err
	}

	accounts := make([]bank.Account, 0, len(lines))
	maxNumber := 0
	for _, line := range lines {
		acct, ok := parseAccount(line)
		if !ok {
			continue
		}
		accounts = append(accounts, acct)
		if acct.Number > maxNumber {
			maxNumber = acct.Number
		}
	}

	next := firstAccountNumber
	if maxNumber >= next {
		next = maxNumber + 1
	}
	// The persisted counter wins when it is ahead of max(existing)+1, so
	// removed numbers stay retired.
	if seq, err := os.ReadFile(filepath.Join(s.dir, sequenceFile)); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(seq))); err == nil && n > next {
			next = n
		}
	}
	return accounts, next, nil
}

func (s *Store) SaveAccounts(_ context.Context, accounts []bank.Account, nextNumber int) error {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	var b strings.Builder
	for _, a := range accounts {
		b.WriteString(formatAccount(a))
		b.WriteByte('\n')
	}
	if err := writeAtomic(s.dir, sequenceFile, strconv.Itoa(nextNumber)+"\n"); err != nil {
		return err
	}
	return writeAtomic(s.dir, accountsFile, b.String())
}

func parseAccount(line string) (bank.Account, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return bank.Account{}, false
	}
	number, err := strconv.Atoi(fields[0])
	if err != nil || number <= 0 {
		return bank.Account{}, false
	}
	balance, err := decimal.NewFromString(fields[3])
	if err != nil {
		return bank.Account{}, false
	}
	acct := bank.Account{
		Number:  number,
		PIN:     fields[1],
		Type:    bank.AccountType(fields[2]),
		Balance: balance,
	}
	if acct.Type == bank.LineOfCredit && len(fields) >= 5 {
		if limit, err := decimal.NewFromString(fields[4]); err == nil {
			acct.CreditLimit = limit
		}
	}
	return acct, true
}

func formatAccount(a bank.Account) string {
	line := fmt.Sprintf("%d,%s,%s,%s", a.Number, a.PIN, a.Type, a.Balance)
	if a.Type == bank.LineOfCredit {
		line += "," + a.CreditLimit.String()
	}
	return line
}

// =============================================================================
// PROFILES
// =============================================================================

func (s *Store) LoadProfiles(_ context.Context) ([]bank.Profile, error) {
	s.profilesMu.Lock()
	defer s.profilesMu.Unlock()

	lines, err := readLines(filepath.Join(s.dir, profilesFile))
	if err != nil {
		return nil, err
	}

	profiles := make([]bank.Profile, 0, len(lines))
	for _, line := range lines {
		if p, ok := parseProfile(line); ok {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

func (s *Store) SaveProfiles(_ context.Context, profiles []bank.Profile) error {
	s.profilesMu.Lock()
	defer s.profilesMu.Unlock()

	var b strings.Builder
	for _, p := range profiles {
		b.WriteString(formatProfile(p))
		b.WriteByte('\n')
	}
	return writeAtomic(s.dir, profilesFile, b.String())
}

func parseProfile(line string) (bank.Profile, bool) {
	// The bracketed account list is the 8th field and may itself contain
	// commas, so split on the first seven only.
	fields := strings.SplitN(line, ",", 8)
	if len(fields) < 2 {
		return bank.Profile{}, false
	}
	p := bank.Profile{
		Username: fields[0],
		Password: fields[1],
	}
	if len(fields) > 2 {
		p.Name = fields[2]
	}
	if len(fields) > 3 {
		p.Phone = fields[3]
	}
	if len(fields) > 4 {
		p.Address = fields[4]
	}
	if len(fields) > 5 {
		p.Email = fields[5]
	}
	if len(fields) > 6 {
		p.CreditScore, _ = strconv.Atoi(fields[6])
	}
	if len(fields) > 7 {
		p.Accounts = parseAccountList(fields[7])
	}
	return p, true
}

func parseAccountList(field string) []int {
	field = strings.TrimSpace(field)
	if !strings.HasPrefix(field, "[") || !strings.HasSuffix(field, "]") {
		return nil
	}
	inner := field[1 : len(field)-1]
	if inner == "" {
		return nil
	}
	var numbers []int
	for _, part := range strings.Split(inner, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			numbers = append(numbers, n)
		}
	}
	return numbers
}

func formatProfile(p bank.Profile) string {
	parts := make([]string, 0, len(p.Accounts))
	for _, n := range p.Accounts {
		parts = append(parts, strconv.Itoa(n))
	}
	return fmt.Sprintf("%s,%s,%s,%s,%s,%s,%d,[%s]",
		p.Username, p.Password, p.Name, p.Phone, p.Address, p.Email,
		p.CreditScore, strings.Join(parts, ","))
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) LoadEmployees(_ context.Context) ([]bank.Employee, error) {
	s.employeesMu.Lock()
	defer s.employeesMu.Unlock()

	lines, err := readLines(filepath.Join(s.dir, employeesFile))
	if err != nil {
		return nil, err
	}

	employees := make([]bank.Employee, 0, len(lines))
	for _, line := range lines {
		fields := strings.SplitN(line, ",", 2)
		if len(fields) != 2 || fields[0] == "" {
			continue
		}
		employees = append(employees, bank.Employee{Username: fields[0], Password: fields[1]})
	}
	return employees, nil
}

func (s *Store) SaveEmployees(_ context.Context, employees []bank.Employee) error {
	s.employeesMu.Lock()
	defer s.employeesMu.Unlock()

	var b strings.Builder
	for _, e := range employees {
		b.WriteString(e.Username)
		b.WriteByte(',')
		b.WriteString(e.Password)
		b.WriteByte('\n')
	}
	return writeAtomic(s.dir, employeesFile, b.String())
}

// =============================================================================
// AUDIT LOG - append-only
// =============================================================================

func (s *Store) AppendLog(_ context.Context, entry bank.LogEntry) error {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, logFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	// Readers split on the delimiter, so the free-text description must
	// never contain one.
	desc := strings.ReplaceAll(entry.Description, ",", ";")
	line := fmt.Sprintf("%d,%s,%s,%s\n", entry.Account, entry.Kind, desc, entry.At.Format(time.RFC3339Nano))
	if _, err := f.WriteString(line); err != nil {
		return err
	}
	return f.Sync()
}

func (s *Store) LoadLog(_ context.Context) ([]bank.LogEntry, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	lines, err := readLines(filepath.Join(s.dir, logFile))
	if err != nil {
		return nil, err
	}

	entries := make([]bank.LogEntry, 0, len(lines))
	for _, line := range lines {
		fields := strings.SplitN(line, ",", 4)
		if len(fields) != 4 {
			continue
		}
		account, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		at, _ := time.Parse(time.RFC3339Nano, fields[3])
		entries = append(entries, bank.LogEntry{
			Account:     account,
			Kind:        bank.LogKind(fields[1]),
			Description: fields[2],
			At:          at,
		})
	}
	return entries, nil
}

// =============================================================================
// FILE HELPERS
// =============================================================================

// readLines returns the non-empty lines of the file; a missing file is an
// empty record set.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// writeAtomic writes content to a temporary file in dir and renames it over
// name. The prior file stays intact unless the full write succeeds.
func writeAtomic(dir, name, content string) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
