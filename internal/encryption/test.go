package encryption

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"otpkeep/internal/keeper"
)

// testHeader marks values sealed by TestEncryptor.
var testHeader = []byte("OTPKTEST")

// TestEncryptor is a deterministic, crypto-free Encryptor for tests.
// Encrypt prepends testHeader; decrypt strips it. Unlock checks the
// passphrase given to Setup so wrong-passphrase paths can be exercised.
type TestEncryptor struct {
	mu         sync.Mutex
	passphrase string
	configured bool
}

var _ keeper.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor returns an encryptor already set up with passphrase
// "test".
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{passphrase: "test", configured: true}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return ErrEmptyPassphrase
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.passphrase = passphrase
	e.configured = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (keeper.DecryptionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configured
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ keeper.DecryptionContext = TestDecryptionContext{}

func (TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
