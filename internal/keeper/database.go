package keeper

import (
	"time"

	"otpkeep/internal/account"
)

// Database stores account metadata. Secrets never pass through it: accounts
// handed to CreateAccount/UpdateAccount have their Secret ignored, and
// accounts returned from it have an empty Secret.
type Database interface {
	// CreateAccount inserts a new account after all existing ones.
	CreateAccount(a *account.Account) error

	// FindAccount returns the account with the given ID, or nil if none.
	FindAccount(id string) (*account.Account, error)

	// ListAccounts returns all accounts in display order.
	ListAccounts() ([]*account.Account, error)

	// UpdateAccount overwrites the editable fields of an existing account.
	UpdateAccount(a *account.Account) error

	// TouchAccount records that a code was generated for the account at t.
	TouchAccount(id string, t time.Time) error

	// DeleteAccount removes an account. Deleting a missing account is not an error.
	DeleteAccount(id string) error

	// Close closes the database connection.
	Close() error
}
