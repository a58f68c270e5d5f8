package keystore

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"otpkeep/internal/keeper"
)

var ErrLocked = errors.New("secret store is locked")

// UnlockFunc obtains a DecryptionContext, typically by prompting for the
// passphrase.
type UnlockFunc func() (keeper.DecryptionContext, error)

// SealedStore encrypts values before handing them to an inner store.
// Writing needs only the public key. The first Get calls unlock; a
// successful context is kept for the life of the store.
type SealedStore struct {
	inner     keeper.SecretStore
	encryptor keeper.Encryptor
	unlock    UnlockFunc

	mu  sync.Mutex
	dec keeper.DecryptionContext
}

// NewSealedStore wraps inner. A nil unlock makes the store write-only.
func NewSealedStore(inner keeper.SecretStore, encryptor keeper.Encryptor, unlock UnlockFunc) *SealedStore {
	return &SealedStore{inner: inner, encryptor: encryptor, unlock: unlock}
}

func (s *SealedStore) Put(key string, value []byte) error {
	var buf bytes.Buffer
	if err := s.encryptor.Encrypt(bytes.NewReader(value), &buf); err != nil {
		return fmt.Errorf("encrypting secret: %w", err)
	}
	return s.inner.Put(key, buf.Bytes())
}

func (s *SealedStore) Get(key string) ([]byte, error) {
	sealed, err := s.inner.Get(key)
	if err != nil {
		return nil, err
	}
	dec, err := s.decryptionContext()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := dec.Decrypt(bytes.NewReader(sealed), &buf); err != nil {
		return nil, fmt.Errorf("decrypting secret: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *SealedStore) Delete(key string) error {
	return s.inner.Delete(key)
}

func (s *SealedStore) decryptionContext() (keeper.DecryptionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dec != nil {
		return s.dec, nil
	}
	if s.unlock == nil {
		return nil, ErrLocked
	}
	dec, err := s.unlock()
	if err != nil {
		return nil, fmt.Errorf("unlocking secret store: %w", err)
	}
	s.dec = dec
	return dec, nil
}

var _ keeper.SecretStore = (*SealedStore)(nil)
