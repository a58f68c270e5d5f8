package export

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"filippo.io/age"

	"otpkeep/internal/account"
)

// SealOptions tunes the scrypt cost of sealed exports.
// A zero WorkFactor uses age's default.
type SealOptions struct {
	WorkFactor int
}

// Seal serialises accounts into the same container as Export and encrypts it
// with age's scrypt passphrase recipient.
func Seal(accounts []account.Account, password string, createdAt time.Time, opts SealOptions) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	payload, err := marshal(accounts, createdAt)
	if err != nil {
		return nil, err
	}

	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if opts.WorkFactor > 0 {
		recipient.SetWorkFactor(opts.WorkFactor)
	}

	var out bytes.Buffer
	w, err := age.Encrypt(&out, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("encrypting export: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return out.Bytes(), nil
}

// Open decrypts a blob produced by Seal. A wrong password or tampered data
// yields ErrCorruptData.
func Open(blob []byte, password string) ([]account.Account, time.Time, error) {
	if password == "" {
		return nil, time.Time{}, ErrEmptyPassword
	}
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(blob), identity)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	return unmarshal(payload)
}
