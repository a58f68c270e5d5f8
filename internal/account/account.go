// Package account defines the Account record and its otpauth:// URI form.
package account

import (
	"errors"
	"fmt"
	"time"

	"otpkeep/internal/b32"
	"otpkeep/internal/otp"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported uri scheme")
	ErrUnsupportedType   = errors.New("unsupported token type")
	ErrMissingSecret     = errors.New("missing secret")
	ErrInvalidAccount    = errors.New("invalid account")
)

// Account is a single TOTP credential.
type Account struct {
	ID          string        `json:"id"`
	Issuer      string        `json:"issuer"`
	AccountName string        `json:"account_name"`
	Secret      string        `json:"secret"`
	Algorithm   otp.Algorithm `json:"algorithm"`
	Digits      int           `json:"digits"`
	Period      int           `json:"period"`
	CreatedAt   time.Time     `json:"created_at"`
	LastUsedAt  *time.Time    `json:"last_used_at,omitempty"`
}

// New builds an Account, applying defaults for zero digits and period, and
// validates the result.
func New(issuer, accountName, secret string, alg otp.Algorithm, digits, period int, createdAt time.Time) (Account, error) {
	if digits == 0 {
		digits = otp.DefaultDigits
	}
	if period == 0 {
		period = otp.DefaultPeriod
	}
	a := Account{
		Issuer:      issuer,
		AccountName: accountName,
		Secret:      b32.Normalize(secret),
		Algorithm:   alg,
		Digits:      digits,
		Period:      period,
		CreatedAt:   createdAt,
	}
	if err := a.Validate(); err != nil {
		return Account{}, err
	}
	return a, nil
}

// Validate checks that the secret decodes to at least one byte and that
// digits and period are positive.
func (a Account) Validate() error {
	if a.Secret == "" {
		return ErrMissingSecret
	}
	key, err := b32.Decode(a.Secret)
	if err != nil {
		return fmt.Errorf("%w: %v", otp.ErrInvalidSecret, err)
	}
	if len(key) == 0 {
		return fmt.Errorf("%w: empty", otp.ErrInvalidSecret)
	}
	if a.Digits <= 0 {
		return fmt.Errorf("%w: digits %d", ErrInvalidAccount, a.Digits)
	}
	if a.Period <= 0 {
		return fmt.Errorf("%w: period %d", ErrInvalidAccount, a.Period)
	}
	return nil
}

// Label returns "issuer:account", or just the account name when there is no
// issuer.
func (a Account) Label() string {
	if a.Issuer == "" {
		return a.AccountName
	}
	return a.Issuer + ":" + a.AccountName
}

// Code returns the current code for the account at t.
func (a Account) Code(t time.Time) (string, error) {
	return otp.GenerateAt(a.Secret, a.Algorithm, a.Digits, a.Period, t)
}

// SameCredential reports whether a and b carry the same secret and code
// parameters, ignoring identity and display fields.
func (a Account) SameCredential(b Account) bool {
	return a.Secret == b.Secret &&
		a.Algorithm == b.Algorithm &&
		a.Digits == b.Digits &&
		a.Period == b.Period
}
