package migration

import (
	"encoding/base64"
	"fmt"
	"net/url"

	"google.golang.org/protobuf/encoding/protowire"

	"otpkeep/internal/account"
	"otpkeep/internal/b32"
	"otpkeep/internal/otp"
)

const payloadVersion = 1

// Batch describes where a payload sits in a multi-part export.
// The zero value means a single, complete batch.
type Batch struct {
	Size  int
	Index int
	ID    int32
}

// EncodePayload serialises accounts as a MigrationPayload.
func EncodePayload(accounts []account.Account, batch Batch) ([]byte, error) {
	if batch.Size <= 0 {
		batch.Size = 1
	}

	var b []byte
	for i, a := range accounts {
		param, err := encodeParameter(a)
		if err != nil {
			return nil, fmt.Errorf("encoding account %d (%s): %w", i, a.Label(), err)
		}
		b = protowire.AppendTag(b, fieldOTPParameters, protowire.BytesType)
		b = protowire.AppendBytes(b, param)
	}

	b = appendVarintField(b, fieldVersion, payloadVersion)
	b = appendVarintField(b, fieldBatchSize, uint64(batch.Size))
	b = appendVarintField(b, fieldBatchIndex, uint64(batch.Index))
	b = appendVarintField(b, fieldBatchID, uint64(uint32(batch.ID)))
	return b, nil
}

// Encode returns an otpauth-migration URI carrying accounts.
func Encode(accounts []account.Account, batch Batch) (string, error) {
	payload, err := EncodePayload(accounts, batch)
	if err != nil {
		return "", err
	}
	data := base64.StdEncoding.EncodeToString(payload)
	return Scheme + "://" + Host + "?data=" + url.QueryEscape(data), nil
}

func encodeParameter(a account.Account) ([]byte, error) {
	secret, err := b32.Decode(a.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", otp.ErrInvalidSecret, err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty", otp.ErrInvalidSecret)
	}

	var b []byte
	b = protowire.AppendTag(b, paramSecret, protowire.BytesType)
	b = protowire.AppendBytes(b, secret)
	b = protowire.AppendTag(b, paramName, protowire.BytesType)
	b = protowire.AppendString(b, a.AccountName)
	if a.Issuer != "" {
		b = protowire.AppendTag(b, paramIssuer, protowire.BytesType)
		b = protowire.AppendString(b, a.Issuer)
	}
	b = appendVarintField(b, paramAlgorithm, algorithmCode(a.Algorithm))
	b = appendVarintField(b, paramDigits, digitsCode(a.Digits))
	b = appendVarintField(b, paramType, typeTOTP)
	if a.Period > 0 && a.Period != otp.DefaultPeriod {
		b = appendVarintField(b, paramPeriod, uint64(a.Period))
	}
	return b, nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func algorithmCode(a otp.Algorithm) uint64 {
	switch a {
	case otp.SHA256:
		return 2
	case otp.SHA512:
		return 3
	default:
		return 1
	}
}

func digitsCode(d int) uint64 {
	switch d {
	case 8:
		return digitsEight
	case 6, 0:
		return 1
	default:
		return uint64(d)
	}
}
