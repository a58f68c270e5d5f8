package migration

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"otpkeep/internal/account"
	"otpkeep/internal/b32"
	"otpkeep/internal/otp"
)

// Field numbers of MigrationPayload.
const (
	fieldOTPParameters protowire.Number = 1
	fieldVersion       protowire.Number = 2
	fieldBatchSize     protowire.Number = 3
	fieldBatchIndex    protowire.Number = 4
	fieldBatchID       protowire.Number = 5
)

// Field numbers of OtpParameters.
const (
	paramSecret    protowire.Number = 1
	paramName      protowire.Number = 2
	paramIssuer    protowire.Number = 3
	paramAlgorithm protowire.Number = 4
	paramDigits    protowire.Number = 5
	paramType      protowire.Number = 6
	paramPeriod    protowire.Number = 8
)

const (
	typeHOTP = 1
	typeTOTP = 2

	digitsEight = 2
)

// otpParameter is one decoded OtpParameters message.
type otpParameter struct {
	secret    []byte
	name      string
	issuer    string
	algorithm uint64
	digits    uint64
	typ       uint64
	period    uint64
}

var errSkipParameter = errors.New("skip parameter")

// DecodePayload decodes a raw MigrationPayload. Entries that are not TOTP or
// that cannot be parsed are dropped; the call fails only when the stream is
// structurally broken or yields no accounts at all.
func DecodePayload(b []byte, opts Options) ([]account.Account, error) {
	var accounts []account.Account

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, wireError(n)
		}
		b = b[n:]

		if num != fieldOTPParameters || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, wireError(n)
			}
			b = b[n:]
			continue
		}

		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, wireError(n)
		}
		b = b[n:]

		p, err := parseParameter(msg)
		if errors.Is(err, errSkipParameter) {
			continue
		}
		if err != nil {
			return nil, err
		}

		a, ok := p.toAccount(opts)
		if !ok {
			continue
		}
		accounts = append(accounts, a)
	}

	if len(accounts) == 0 {
		return nil, ErrNoAccountsFound
	}
	return accounts, nil
}

// parseParameter decodes one OtpParameters message. A declared length past the
// end of msg is reported as ErrTruncatedMessage; any other defect yields
// errSkipParameter.
func parseParameter(msg []byte) (*otpParameter, error) {
	p := &otpParameter{}

	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return nil, parameterError(n)
		}
		msg = msg[n:]

		switch {
		case typ == protowire.BytesType && (num == paramSecret || num == paramName || num == paramIssuer):
			v, n, err := consumeParameterBytes(msg)
			if err != nil {
				return nil, err
			}
			msg = msg[n:]
			switch num {
			case paramSecret:
				p.secret = append([]byte(nil), v...)
			case paramName:
				p.name = string(v)
			case paramIssuer:
				p.issuer = string(v)
			}

		case typ == protowire.VarintType && (num == paramAlgorithm || num == paramDigits || num == paramType || num == paramPeriod):
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return nil, parameterError(n)
			}
			msg = msg[n:]
			switch num {
			case paramAlgorithm:
				p.algorithm = v
			case paramDigits:
				p.digits = v
			case paramType:
				p.typ = v
			case paramPeriod:
				p.period = v
			}

		case typ == protowire.BytesType:
			_, n, err := consumeParameterBytes(msg)
			if err != nil {
				return nil, err
			}
			msg = msg[n:]

		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return nil, parameterError(n)
			}
			msg = msg[n:]
		}
	}

	return p, nil
}

// consumeParameterBytes reads a length-delimited field inside a parameter.
// Only a well-formed length that runs past the end of msg is fatal; a
// malformed length prefix skips the parameter.
func consumeParameterBytes(msg []byte) ([]byte, int, error) {
	length, n := protowire.ConsumeVarint(msg)
	if n < 0 {
		return nil, 0, parameterError(n)
	}
	if length > uint64(len(msg)-n) {
		return nil, 0, fmt.Errorf("%w: otp parameter field length %d exceeds %d remaining bytes", ErrTruncatedMessage, length, len(msg)-n)
	}
	end := n + int(length)
	return msg[n:end], end, nil
}

func (p *otpParameter) toAccount(opts Options) (account.Account, bool) {
	if p.typ != typeTOTP || len(p.secret) == 0 {
		return account.Account{}, false
	}

	issuer, name := p.resolveLabel(opts.FallbackIssuer)
	a := account.Account{
		Issuer:      issuer,
		AccountName: name,
		Secret:      b32.Encode(p.secret),
		Algorithm:   algorithmFromCode(p.algorithm),
		Digits:      digitsFromCode(p.digits),
		Period:      periodFromValue(p.period),
		CreatedAt:   opts.Now,
	}
	if opts.NewID != nil {
		a.ID = opts.NewID()
	}
	return a, true
}

// resolveLabel applies the issuer rules: an explicit issuer wins and the name
// is kept verbatim; otherwise "issuer:name" is split at the first colon.
func (p *otpParameter) resolveLabel(fallback string) (issuer, name string) {
	if p.issuer != "" {
		return p.issuer, p.name
	}
	if i := strings.Index(p.name, ":"); i >= 0 {
		return p.name[:i], p.name[i+1:]
	}
	return fallback, p.name
}

func algorithmFromCode(code uint64) otp.Algorithm {
	switch code {
	case 2:
		return otp.SHA256
	case 3:
		return otp.SHA512
	default:
		return otp.SHA1
	}
}

// digitsFromCode maps the DigitCount enum. Values of 0 and 1 mean six digits.
// Unlike a literal reading of the field, 2 means eight (the vendor enum value)
// and values above 10 fall back to six; 3 through 10 are taken as a literal
// digit count.
func digitsFromCode(code uint64) int {
	switch {
	case code <= 1:
		return otp.DefaultDigits
	case code == digitsEight:
		return 8
	case code > 10:
		return otp.DefaultDigits
	default:
		return int(code)
	}
}

func periodFromValue(v uint64) int {
	if v == 0 || v > math.MaxInt32 {
		return otp.DefaultPeriod
	}
	return int(v)
}

func wireError(n int) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncatedMessage, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
}

// parameterError reports a defect inside one parameter that does not
// involve a declared length, such as a varint or tag cut off at the end.
func parameterError(n int) error {
	return fmt.Errorf("%w: %v", errSkipParameter, protowire.ParseError(n))
}
