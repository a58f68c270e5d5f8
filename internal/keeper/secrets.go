package keeper

import "errors"

// ErrSecretNotFound is returned by SecretStore.Get for a missing key.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore is the secure key-value store that holds account secrets.
// Implementations must be safe for concurrent use.
type SecretStore interface {
	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte) error

	// Get returns the value stored under key, or ErrSecretNotFound.
	Get(key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// SecretKey returns the store key holding an account's secret.
func SecretKey(accountID string) string {
	return "account/" + accountID
}
