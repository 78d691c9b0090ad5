// Package memory provides an in-memory bank.Store for tests and dev.
package memory

import (
	"context"
	"sync"

	"github.com/meridian/bank-engine/bank"
)

// Store keeps every record set in memory. Saves replace whole sets, matching
// the commit model of the durable stores.
type Store struct {
	mu        sync.Mutex
	accounts  []bank.Account
	next      int
	profiles  []bank.Profile
	employees []bank.Employee
	log       []bank.LogEntry

	// SaveErr, when set, is returned by the next SaveAccounts/SaveProfiles
	// call without touching state. Used by tests to exercise commit-failure
	// rollback.
	SaveErr error
}

// New returns an empty store. The first assigned account number is 1001.
func New() *Store {
	return &Store{next: 1001}
}

func (s *Store) LoadAccounts(_ context.Context) ([]bank.Account, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bank.Account(nil), s.accounts...), s.next, nil
}

func (s *Store) SaveAccounts(_ context.Context, accounts []bank.Account, nextNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.accounts = append([]bank.Account(nil), accounts...)
	s.next = nextNumber
	return nil
}

func (s *Store) LoadProfiles(_ context.Context) ([]bank.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bank.Profile(nil), s.profiles...), nil
}

func (s *Store) SaveProfiles(_ context.Context, profiles []bank.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.profiles = append([]bank.Profile(nil), profiles...)
	return nil
}

func (s *Store) LoadEmployees(_ context.Context) ([]bank.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bank.Employee(nil), s.employees...), nil
}

func (s *Store) SaveEmployees(_ context.Context, employees []bank.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees = append([]bank.Employee(nil), employees...)
	return nil
}

func (s *Store) AppendLog(_ context.Context, entry bank.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
	return nil
}

func (s *Store) LoadLog(_ context.Context) ([]bank.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bank.LogEntry(nil), s.log...), nil
}
