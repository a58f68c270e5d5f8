// Package migration reads and writes otpauth-migration://offline URIs, the
// batch export format of the Google Authenticator app.
//
// The data parameter carries base64 of a protobuf MigrationPayload:
//
//	message MigrationPayload {
//	  repeated OtpParameters otp_parameters = 1;
//	  int32 version = 2;
//	  int32 batch_size = 3;
//	  int32 batch_index = 4;
//	  int32 batch_id = 5;
//	}
//
//	message OtpParameters {
//	  bytes secret = 1;
//	  string name = 2;
//	  string issuer = 3;
//	  Algorithm algorithm = 4;  // 1 SHA1, 2 SHA256, 3 SHA512, 4 MD5
//	  DigitCount digits = 5;    // 1 six, 2 eight
//	  OtpType type = 6;         // 1 HOTP, 2 TOTP
//	  int64 counter = 7;
//	  int32 period = 8;         // not set by every exporter
//	}
//
// Only TOTP parameters become accounts. The package is decoded by hand with
// protowire so unknown fields and malformed entries can be skipped
// individually instead of failing the whole batch.
package migration

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"otpkeep/internal/account"
)

const (
	Scheme = "otpauth-migration"
	Host   = "offline"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported migration uri")
	ErrMissingData       = errors.New("migration uri has no data parameter")
	ErrInvalidData       = errors.New("migration data is not valid base64")
	ErrTruncatedMessage  = errors.New("truncated migration payload")
	ErrMalformedMessage  = errors.New("malformed migration payload")
	ErrNoAccountsFound   = errors.New("no totp accounts found in migration payload")
)

// Options supplies the values the decoder does not derive from the payload.
type Options struct {
	// NewID assigns Account.ID. Nil leaves IDs empty.
	NewID func() string
	// Now is stamped into Account.CreatedAt.
	Now time.Time
	// FallbackIssuer is used when neither an issuer field nor an
	// "issuer:" prefix in the name is present.
	FallbackIssuer string
}

// Decode parses an otpauth-migration URI into accounts.
func Decode(uri string, opts Options) ([]account.Account, error) {
	payload, err := PayloadFromURI(uri)
	if err != nil {
		return nil, err
	}
	return DecodePayload(payload, opts)
}

// PayloadFromURI extracts and base64-decodes the data parameter.
// Both the standard and the URL-safe alphabets are accepted, with or without
// padding.
func PayloadFromURI(uri string) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedScheme, err)
	}
	if u.Scheme != Scheme || !strings.EqualFold(u.Host, Host) {
		return nil, fmt.Errorf("%w: %s://%s", ErrUnsupportedScheme, u.Scheme, u.Host)
	}

	data := u.Query().Get("data")
	if data == "" {
		return nil, ErrMissingData
	}

	// Query decoding turns a literal '+' into a space.
	data = strings.ReplaceAll(data, " ", "+")
	data = strings.NewReplacer("-", "+", "_", "/").Replace(data)
	data = strings.TrimRight(data, "=")
	if rem := len(data) % 4; rem != 0 {
		data += strings.Repeat("=", 4-rem)
	}

	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return payload, nil
}
