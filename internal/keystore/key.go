package keystore

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrInvalidKey = errors.New("invalid secret key")

// Keys are slash-separated segments of [A-Za-z0-9._-], each starting with a
// letter or digit. This rules out "..", hidden files and absolute paths.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(/[A-Za-z0-9][A-Za-z0-9._-]*)*$`)

// ValidateKey reports whether key is acceptable to every store.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
