// Package export serialises account lists into password-protected backup
// blobs.
//
// Export/Import implement the legacy container: JSON obscured by XOR with the
// repeated password. It has no integrity check and offers no real secrecy;
// a wrong password is only noticed when the result no longer parses.
// Seal/Open wrap the same container with age passphrase encryption, which is
// authenticated.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"otpkeep/internal/account"
)

// Version is written into every container and checked on import.
const Version = 1

var (
	ErrCorruptData   = errors.New("corrupt export data")
	ErrEmptyPassword = errors.New("export password must not be empty")
)

type container struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Accounts  []account.Account `json:"accounts"`
}

// Export serialises accounts, in order, and obscures them with password.
func Export(accounts []account.Account, password string, createdAt time.Time) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	payload, err := marshal(accounts, createdAt)
	if err != nil {
		return nil, err
	}
	xorKeystream(payload, []byte(password))
	return payload, nil
}

// Import reverses Export. It returns the accounts and the container's
// creation time. Any failure to recover a valid container, including a wrong
// password, is reported as ErrCorruptData.
func Import(blob []byte, password string) ([]account.Account, time.Time, error) {
	if password == "" {
		return nil, time.Time{}, ErrEmptyPassword
	}
	payload := append([]byte(nil), blob...)
	xorKeystream(payload, []byte(password))
	return unmarshal(payload)
}

// xorKeystream XORs buf in place with key repeated to buf's length.
func xorKeystream(buf, key []byte) {
	for i := range buf {
		buf[i] ^= key[i%len(key)]
	}
}

func marshal(accounts []account.Account, createdAt time.Time) ([]byte, error) {
	if accounts == nil {
		accounts = []account.Account{}
	}
	payload, err := json.Marshal(container{
		Version:   Version,
		CreatedAt: createdAt.UTC(),
		Accounts:  accounts,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding export container: %w", err)
	}
	return payload, nil
}

func unmarshal(payload []byte) ([]account.Account, time.Time, error) {
	var c container
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if c.Version != Version {
		return nil, time.Time{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptData, c.Version)
	}
	if c.Accounts == nil {
		return nil, time.Time{}, fmt.Errorf("%w: missing accounts", ErrCorruptData)
	}
	for i, a := range c.Accounts {
		if err := a.Validate(); err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: account %d: %v", ErrCorruptData, i, err)
		}
	}
	return c.Accounts, c.CreatedAt, nil
}
