/*
main.go - Scripted branch-day demo

PURPOSE:
  Boots the whole engine in-process (flat files in a temp directory), seeds
  a small branch, then walks one banking day over the real socket protocol:
  a teller deposits over the counter, a cardholder uses the ATM, and an
  over-limit withdrawal bounces off the balance floor.

SEED DATA:
  employee1/employee1        Teller credentials
  user1/pass1                Customer profile
  Account 2223, PIN 1163     Checking, opening balance 100, linked to user1

SCRIPT:
  1. Teller logs in and deposits 50 into 2223       -> balance 150
  2. Cardholder logs into the ATM with 2223/1163
  3. ATM deposit 25                                 -> balance 175
  4. ATM withdrawal 200                             -> rejected, balance 175
  5. Teller prints the audit log

USAGE:
  go run ./cmd/demo
*/
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"

	"github.com/meridian/bank-engine/bank"
	"github.com/meridian/bank-engine/store/flatfile"
	"github.com/meridian/bank-engine/wire"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "bank-demo-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	store, err := flatfile.New(dir)
	if err != nil {
		return err
	}
	if err := seed(ctx, store); err != nil {
		return err
	}

	ledger, err := bank.Open(ctx, store)
	if err != nil {
		return err
	}
	sessions := bank.NewSessionManager(ledger)

	server := wire.NewServer(ledger, sessions)
	addr, err := server.Listen("127.0.0.1:0")
	if err != nil {
		return err
	}
	go server.Serve()
	defer server.Close()

	fmt.Printf("Branch open at %s (data in %s)\n\n", addr, dir)

	// The teller opens the day.
	teller, err := wire.DialTeller(addr.String())
	if err != nil {
		return err
	}
	defer teller.Close()
	if err := teller.Login("employee1", "employee1"); err != nil {
		return err
	}
	fmt.Println("Teller logged in as employee1")

	balance, err := teller.Deposit(2223, 50)
	if err != nil {
		return err
	}
	fmt.Printf("Teller deposits 50 into 2223, balance now %.2f\n", balance)

	// A cardholder walks up to the ATM.
	atm, err := wire.DialATM(addr.String())
	if err != nil {
		return err
	}
	defer atm.Close()
	if _, err := atm.Login(2223, "1163"); err != nil {
		return err
	}
	fmt.Println("Cardholder logged into ATM with account 2223")

	balance, err = atm.Deposit(25)
	if err != nil {
		return err
	}
	fmt.Printf("ATM deposit 25, balance now %.2f\n", balance)

	if _, err := atm.Withdraw(200); err != nil {
		fmt.Printf("ATM withdrawal of 200 rejected: %v\n", err)
	} else {
		return fmt.Errorf("over-limit withdrawal unexpectedly succeeded")
	}

	balance, err = atm.Balance()
	if err != nil {
		return err
	}
	fmt.Printf("Balance unchanged after rejection: %.2f\n\n", balance)

	if err := atm.Logout(); err != nil {
		return err
	}

	// The teller closes out with the audit trail.
	logs, err := teller.Logs()
	if err != nil {
		return err
	}
	fmt.Println("Audit log:")
	for _, entry := range logs {
		fmt.Printf("  %-8s account=%-5d %s\n", entry.Kind, entry.Account, entry.Description)
	}
	return teller.Logout()
}

// seed provisions the branch the way an operator would: employees go in
// through the store (there is no runtime employee management), the account
// and profile through the engine itself.
func seed(ctx context.Context, store *flatfile.Store) error {
	err := store.SaveEmployees(ctx, []bank.Employee{
		{Username: "employee1", Password: "employee1"},
	})
	if err != nil {
		return err
	}

	ledger, err := bank.Open(ctx, store)
	if err != nil {
		return err
	}
	_, err = ledger.CreateAccount(ctx, bank.AccountSpec{
		Number:         2223,
		PIN:            "1163",
		Type:           bank.Checking,
		InitialBalance: decimal.NewFromInt(100),
	})
	if err != nil {
		return err
	}
	err = ledger.CreateProfile(ctx, bank.Profile{
		Username: "user1",
		Password: "pass1",
		Name:     "Demo User",
	})
	if err != nil {
		return err
	}
	_, err = ledger.LinkAccount(ctx, "user1", 2223)
	return err
}
