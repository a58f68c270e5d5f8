package testutil

import (
	"otpkeep/internal/encryption"
	"otpkeep/internal/keeper"
	"otpkeep/internal/keystore"
)

// NewTestEncryptor returns a deterministic encryptor whose passphrase is
// "test".
func NewTestEncryptor() *encryption.TestEncryptor {
	return encryption.NewTestEncryptor()
}

// NewTestStore returns an empty in-memory secret store.
func NewTestStore() *keystore.MemoryStore {
	return keystore.NewMemoryStore()
}

// NewSealedTestStore wraps inner with the test encryptor, unlocking with
// passphrase on first read.
func NewSealedTestStore(inner keeper.SecretStore, passphrase string) *keystore.SealedStore {
	enc := NewTestEncryptor()
	return keystore.NewSealedStore(inner, enc, func() (keeper.DecryptionContext, error) {
		return enc.Unlock(passphrase)
	})
}
