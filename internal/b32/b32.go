// Package b32 converts between raw bytes and the unpadded RFC 4648 base32
// text used for one-time-password secrets.
//
// Decoding is deliberately lenient about layout: whitespace anywhere in the
// input and trailing '=' padding are ignored, lowercase is accepted, and a
// trailing group of fewer than 8 bits is dropped instead of rejected.
package b32

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidCharacter is returned when the input contains a symbol outside
// the A-Z, 2-7 alphabet.
var ErrInvalidCharacter = errors.New("invalid base32 character")

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

var encoding = base32.NewEncoding(alphabet).WithPadding(base32.NoPadding)

// Encode returns the unpadded base32 representation of data.
// A final group shorter than 5 bits is zero-filled on the right.
func Encode(data []byte) string {
	return encoding.EncodeToString(data)
}

// Normalize strips whitespace and trailing padding from text and uppercases it.
// It does not validate the alphabet.
func Normalize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, text)
	return strings.TrimRight(cleaned, "=")
}

// Decode converts base32 text to bytes. Bits left over after the last complete
// byte are discarded.
func Decode(text string) ([]byte, error) {
	clean := Normalize(text)

	out := make([]byte, 0, len(clean)*5/8)
	var buffer uint32
	var bits uint

	for i, r := range clean {
		v, ok := symbolValue(r)
		if !ok {
			return nil, fmt.Errorf("%w %q at offset %d", ErrInvalidCharacter, r, i)
		}
		buffer = buffer<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buffer>>bits))
			buffer &= 1<<bits - 1
		}
	}

	return out, nil
}

func symbolValue(r rune) (byte, bool) {
	switch {
	case r >= 'A' && r <= 'Z':
		return byte(r - 'A'), true
	case r >= '2' && r <= '7':
		return byte(r-'2') + 26, true
	default:
		return 0, false
	}
}
