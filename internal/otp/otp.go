// Package otp derives time-based one-time passwords (RFC 6238) from a base32
// secret.
//
// Every function takes the timestamp as an argument; nothing here reads the
// system clock or keeps state, so all functions are safe for concurrent use.
package otp

import (
	"crypto/hmac"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"otpkeep/internal/b32"
)

var (
	// ErrInvalidSecret is returned when the secret is not valid base32 or
	// decodes to zero bytes.
	ErrInvalidSecret = errors.New("invalid secret")

	// ErrInvalidParameter is returned for a non-positive period or a digit
	// count outside 1..10.
	ErrInvalidParameter = errors.New("invalid otp parameter")
)

const (
	DefaultDigits = 6
	DefaultPeriod = 30

	maxDigits = 10
)

// Generate returns the code for secret at the unix timestamp ts, left-padded
// with zeros to exactly digits characters.
func Generate(secret string, alg Algorithm, digits, period int, ts int64) (string, error) {
	if period <= 0 {
		return "", fmt.Errorf("%w: period %d", ErrInvalidParameter, period)
	}
	if digits <= 0 || digits > maxDigits {
		return "", fmt.Errorf("%w: digits %d", ErrInvalidParameter, digits)
	}

	key, err := b32.Decode(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if len(key) == 0 {
		return "", fmt.Errorf("%w: empty", ErrInvalidSecret)
	}

	counter := uint64(floorDiv(ts, int64(period)))
	return hotp(key, alg, digits, counter), nil
}

// GenerateAt is Generate for a time.Time.
func GenerateAt(secret string, alg Algorithm, digits, period int, t time.Time) (string, error) {
	return Generate(secret, alg, digits, period, t.Unix())
}

// hotp computes the RFC 4226 value for counter.
func hotp(key []byte, alg Algorithm, digits int, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(alg.Hash(), key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint64(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, uint64(value)%mod)
}

// TimeRemaining returns the number of seconds until the code for now rolls over.
// The result is in 1..period.
func TimeRemaining(period, now int64) int64 {
	if period <= 0 {
		return 0
	}
	return period - floorMod(now, period)
}

// Progress returns the elapsed fraction of the current period, in [0, 1).
func Progress(period, now int64) float64 {
	if period <= 0 {
		return 0
	}
	return float64(period-TimeRemaining(period, now)) / float64(period)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}
