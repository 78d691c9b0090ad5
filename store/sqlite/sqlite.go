/*
Package sqlite provides a SQLite-backed implementation of bank.Store.

PURPOSE:
  The embedded-store rendition of the flat-file contracts: the same record
  sets behind the same Store interface, with the whole-set save wrapped in a
  database transaction instead of a temp-file rename.

KEY TABLES:
  accounts:  one row per account, balance stored as a decimal string
  profiles:  one row per profile, linked accounts as a JSON array
  employees: read-only credential pairs
  log:       append-only audit events, ordered by rowid
  meta:      the account-number counter (key 'next_account')

COMMIT MODEL:
  SaveAccounts/SaveProfiles replace the whole set inside one transaction;
  a failed commit rolls back and leaves the prior state readable.

WAL MODE:
  Opened with WAL so readers do not block the single writer.

USAGE:
  store, err := sqlite.New("./data/bank.db")   // ":memory:" for tests

SEE ALSO:
  - bank/store.go: Interface definition
  - store/flatfile: The delimited-text implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/meridian/bank-engine/bank"
)

const firstAccountNumber = 1001

// Store implements bank.Store on SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		number INTEGER PRIMARY KEY,
		pin TEXT NOT NULL,
		type TEXT NOT NULL,
		balance TEXT NOT NULL,
		credit_limit TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS profiles (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		credit_score INTEGER NOT NULL DEFAULT 0,
		linked_accounts TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS employees (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL
	);

	-- Append-only: no UPDATE or DELETE is ever issued against this table.
	CREATE TABLE IF NOT EXISTS log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account INTEGER NOT NULL,
		kind TEXT NOT NULL,
		description TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_log_account ON log(account);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) LoadAccounts(ctx context.Context) ([]bank.Account, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, pin, type, balance, credit_limit FROM accounts ORDER BY number`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var accounts []bank.Account
	maxNumber := 0
	for rows.Next() {
		var a bank.Account
		var balance, limit string
		if err := rows.Scan(&a.Number, &a.PIN, &a.Type, &balance, &limit); err != nil {
			return nil, 0, err
		}
		if a.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, 0, err
		}
		if a.CreditLimit, err = decimal.NewFromString(limit); err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, a)
		if a.Number > maxNumber {
			maxNumber = a.Number
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	next := firstAccountNumber
	if maxNumber >= next {
		next = maxNumber + 1
	}
	// The persisted counter wins when ahead, so removed numbers stay retired.
	var stored int
	err = s.db.QueryRowContext(ctx,
		`SELECT CAST(value AS INTEGER) FROM meta WHERE key = 'next_account'`).Scan(&stored)
	switch {
	case err == nil:
		if stored > next {
			next = stored
		}
	case err != sql.ErrNoRows:
		return nil, 0, err
	}
	return accounts, next, nil
}

func (s *Store) SaveAccounts(ctx context.Context, accounts []bank.Account, nextNumber int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return err
	}
	for _, a := range accounts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (number, pin, type, balance, credit_limit) VALUES (?, ?, ?, ?, ?)`,
			a.Number, a.PIN, string(a.Type), a.Balance.String(), a.CreditLimit.String())
		if err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('next_account', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", nextNumber))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// PROFILES
// =============================================================================

func (s *Store) LoadProfiles(ctx context.Context) ([]bank.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, password, name, phone, address, email, credit_score, linked_accounts
		 FROM profiles ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []bank.Profile
	for rows.Next() {
		var p bank.Profile
		var linked string
		if err := rows.Scan(&p.Username, &p.Password, &p.Name, &p.Phone,
			&p.Address, &p.Email, &p.CreditScore, &linked); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(linked), &p.Accounts); err != nil {
			return nil, fmt.Errorf("profile %s: bad linked accounts: %w", p.Username, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *Store) SaveProfiles(ctx context.Context, profiles []bank.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM profiles`); err != nil {
		return err
	}
	for _, p := range profiles {
		linked := p.Accounts
		if linked == nil {
			linked = []int{}
		}
		encoded, err := json.Marshal(linked)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO profiles (username, password, name, phone, address, email, credit_score, linked_accounts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Username, p.Password, p.Name, p.Phone, p.Address, p.Email, p.CreditScore, string(encoded))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) LoadEmployees(ctx context.Context) ([]bank.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, password FROM employees ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []bank.Employee
	for rows.Next() {
		var e bank.Employee
		if err := rows.Scan(&e.Username, &e.Password); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func (s *Store) SaveEmployees(ctx context.Context, employees []bank.Employee) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM employees`); err != nil {
		return err
	}
	for _, e := range employees {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO employees (username, password) VALUES (?, ?)`,
			e.Username, e.Password); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// AUDIT LOG - append-only
// =============================================================================

func (s *Store) AppendLog(ctx context.Context, entry bank.LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log (account, kind, description, at) VALUES (?, ?, ?, ?)`,
		entry.Account, string(entry.Kind), entry.Description, entry.At.Format(time.RFC3339Nano))
	return err
}

func (s *Store) LoadLog(ctx context.Context) ([]bank.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account, kind, description, at FROM log ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []bank.LogEntry
	for rows.Next() {
		var e bank.LogEntry
		var at string
		if err := rows.Scan(&e.Account, &e.Kind, &e.Description, &at); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
