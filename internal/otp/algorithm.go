package otp

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"strings"
)

// Algorithm selects the HMAC hash used to derive codes.
type Algorithm int

const (
	SHA1 Algorithm = iota
	SHA256
	SHA512
)

// String returns the canonical upper-case name used in otpauth URIs.
func (a Algorithm) String() string {
	switch a {
	case SHA256:
		return "SHA256"
	case SHA512:
		return "SHA512"
	default:
		return "SHA1"
	}
}

// Hash returns the constructor for the algorithm's hash function.
// Unknown values fall back to SHA1.
func (a Algorithm) Hash() func() hash.Hash {
	switch a {
	case SHA256:
		return sha256.New
	case SHA512:
		return sha512.New
	default:
		return sha1.New
	}
}

// ParseAlgorithm matches s case-insensitively against the supported names.
// Anything unrecognised, including the empty string, yields SHA1.
func ParseAlgorithm(s string) Algorithm {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SHA256":
		return SHA256
	case "SHA512":
		return SHA512
	default:
		return SHA1
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	*a = ParseAlgorithm(string(text))
	return nil
}
