/*
store.go - Persistence interface for the banking engine

PURPOSE:
  Abstracts the three record sets (accounts, profiles, employees) and the
  append-only audit log behind one interface. The Ledger decides WHAT to
  persist; a Store decides HOW.

COMMIT MODEL:
  Accounts and profiles are saved as whole record sets. A Save replaces the
  entire set atomically: after a failed Save the previously committed state
  must still be readable. Implementations either write to a temporary file
  and rename (flatfile) or wrap the replacement in a database transaction
  (sqlite).

  The audit log is the one append-only set; AppendLog never rewrites
  existing entries.

IMPLEMENTATIONS:
  - store/flatfile: delimited text files, atomic rename commits
  - store/sqlite:   embedded SQLite database
  - store/memory:   in-memory, for tests and dev

SEE ALSO:
  - ledger.go: The only caller of the mutating methods
*/
package bank

import "context"

// Store persists the engine's record sets.
//
// SaveAccounts and SaveProfiles replace the whole set; each call is one
// commit. nextNumber is the account-number counter, persisted with the
// account set so numbers are never reused after a removal.
//
// SaveEmployees exists for out-of-band provisioning (seed tooling, tests);
// the Ledger never calls it.
type Store interface {
	// LoadAccounts returns all accounts plus the next account number to
	// assign. Implementations return max(existing)+1 when no counter has
	// been persisted yet.
	LoadAccounts(ctx context.Context) ([]Account, int, error)

	// SaveAccounts atomically replaces the account set and the counter.
	SaveAccounts(ctx context.Context, accounts []Account, nextNumber int) error

	LoadProfiles(ctx context.Context) ([]Profile, error)
	SaveProfiles(ctx context.Context, profiles []Profile) error

	LoadEmployees(ctx context.Context) ([]Employee, error)
	SaveEmployees(ctx context.Context, employees []Employee) error

	// AppendLog appends a single audit entry. Append-only: entries are
	// never rewritten or deleted.
	AppendLog(ctx context.Context, entry LogEntry) error

	// LoadLog returns all audit entries in append order.
	LoadLog(ctx context.Context) ([]LogEntry, error)
}
