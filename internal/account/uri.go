package account

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"otpkeep/internal/b32"
	"otpkeep/internal/otp"
)

const (
	Scheme   = "otpauth"
	TypeTOTP = "totp"
	TypeHOTP = "hotp"
)

// Parse reads an otpauth://totp/ URI. ID and CreatedAt are left zero for the
// caller to assign.
//
// The label before the first colon is the issuer unless an issuer query
// parameter is present, which wins. Unknown algorithms fall back to SHA1,
// unparseable or out-of-range digits to 6 and periods to 30.
func Parse(uri string) (Account, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrUnsupportedScheme, err)
	}
	if u.Scheme != Scheme {
		return Account{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	switch host := strings.ToLower(u.Host); host {
	case TypeTOTP:
	default:
		return Account{}, fmt.Errorf("%w: %q", ErrUnsupportedType, host)
	}

	q := u.Query()
	secret := b32.Normalize(q.Get("secret"))
	if secret == "" {
		return Account{}, ErrMissingSecret
	}

	label := strings.TrimPrefix(u.Path, "/")
	issuer, name := splitLabel(label, q)

	return New(issuer, name, secret,
		otp.ParseAlgorithm(q.Get("algorithm")),
		parseBounded(q.Get("digits"), otp.DefaultDigits, 10),
		parseBounded(q.Get("period"), otp.DefaultPeriod, 0),
		time.Time{},
	)
}

func splitLabel(label string, q url.Values) (issuer, name string) {
	if issuer = q.Get("issuer"); issuer != "" {
		if prefix := issuer + ":"; strings.HasPrefix(label, prefix) {
			return issuer, label[len(prefix):]
		}
		if i := strings.Index(label, ":"); i >= 0 {
			return issuer, label[i+1:]
		}
		return issuer, label
	}
	if i := strings.Index(label, ":"); i >= 0 {
		return label[:i], label[i+1:]
	}
	return "", label
}

// parseBounded returns def when s is empty, not an integer, not positive, or
// above max. A max of zero means unbounded.
func parseBounded(s string, def, max int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 || (max > 0 && n > max) {
		return def
	}
	return n
}

// URI returns the canonical otpauth URI for a. Parameters equal to their
// defaults are omitted.
func (a Account) URI() string {
	var label string
	switch {
	case a.Issuer != "":
		label = url.PathEscape(a.Issuer) + ":" + url.PathEscape(a.AccountName)
	case strings.Contains(a.AccountName, ":"):
		// A leading colon keeps the name from being read back as an issuer.
		label = ":" + url.PathEscape(a.AccountName)
	default:
		label = url.PathEscape(a.AccountName)
	}

	var b strings.Builder
	b.WriteString(Scheme + "://" + TypeTOTP + "/")
	b.WriteString(label)
	b.WriteString("?secret=")
	b.WriteString(url.QueryEscape(a.Secret))
	if a.Issuer != "" {
		b.WriteString("&issuer=")
		b.WriteString(url.QueryEscape(a.Issuer))
	}
	if a.Algorithm != otp.SHA1 {
		b.WriteString("&algorithm=")
		b.WriteString(a.Algorithm.String())
	}
	if a.Digits != otp.DefaultDigits {
		b.WriteString("&digits=")
		b.WriteString(strconv.Itoa(a.Digits))
	}
	if a.Period != otp.DefaultPeriod {
		b.WriteString("&period=")
		b.WriteString(strconv.Itoa(a.Period))
	}
	return b.String()
}
