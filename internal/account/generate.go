package account

import (
	"fmt"
	"io"

	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"otpkeep/internal/otp"
)

// GenerateOpts configures a freshly generated account.
type GenerateOpts struct {
	Algorithm  otp.Algorithm
	Digits     int
	Period     int
	SecretSize uint
	// Rand overrides the random source. Nil uses crypto/rand.
	Rand io.Reader
}

// Generate creates an account with a new random secret.
func Generate(issuer, accountName string, opts GenerateOpts) (Account, error) {
	digits := pqotp.DigitsSix
	if opts.Digits == 8 {
		digits = pqotp.DigitsEight
	}
	period := uint(otp.DefaultPeriod)
	if opts.Period > 0 {
		period = uint(opts.Period)
	}
	size := opts.SecretSize
	if size == 0 {
		size = 20
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      period,
		SecretSize:  size,
		Digits:      digits,
		Algorithm:   pquernaAlgorithm(opts.Algorithm),
		Rand:        opts.Rand,
	})
	if err != nil {
		return Account{}, fmt.Errorf("generating secret: %w", err)
	}

	a, err := Parse(key.URL())
	if err != nil {
		return Account{}, fmt.Errorf("parsing generated key: %w", err)
	}
	return a, nil
}

func pquernaAlgorithm(a otp.Algorithm) pqotp.Algorithm {
	switch a {
	case otp.SHA256:
		return pqotp.AlgorithmSHA256
	case otp.SHA512:
		return pqotp.AlgorithmSHA512
	default:
		return pqotp.AlgorithmSHA1
	}
}
