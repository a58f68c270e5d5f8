package export

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"

	"otpkeep/internal/account"
	"otpkeep/internal/otp"
)

const testWorkFactor = 10

func sampleAccounts() []account.Account {
	used := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	return []account.Account{
		{
			ID:          "id-1",
			Issuer:      "GitHub",
			AccountName: "octocat",
			Secret:      "JBSWY3DPEHPK3PXP",
			Algorithm:   otp.SHA1,
			Digits:      6,
			Period:      30,
			CreatedAt:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			LastUsedAt:  &used,
		},
		{
			ID:          "id-2",
			Issuer:      "",
			AccountName: "bänk:user",
			Secret:      "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ",
			Algorithm:   otp.SHA512,
			Digits:      8,
			Period:      60,
			CreatedAt:   time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	t.Parallel()

	in := sampleAccounts()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	blob, err := Export(in, "pw", created)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if bytes.Contains(blob, []byte("JBSWY3DPEHPK3PXP")) {
		t.Error("export blob contains a plaintext secret")
	}

	out, gotCreated, err := Import(blob, "pw")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("Import() = %+v, want %+v", out, in)
	}
	if !gotCreated.Equal(created) {
		t.Errorf("created = %v, want %v", gotCreated, created)
	}
}

func TestExport_EmptyList(t *testing.T) {
	blob, err := Export(nil, "pw", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	out, _, err := Import(blob, "pw")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len(Import()) = %d, want 0", len(out))
	}
}

func TestImport_WrongPassword(t *testing.T) {
	t.Parallel()

	in := sampleAccounts()
	blob, err := Export(in, "pw", time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	for _, pw := range []string{"wrong-pw", "pW", "p", "x"} {
		out, _, err := Import(blob, pw)
		if err == nil && reflect.DeepEqual(out, in) {
			t.Errorf("Import() with password %q reproduced the original accounts", pw)
		}
		if err != nil && !errors.Is(err, ErrCorruptData) {
			t.Errorf("Import() with password %q error = %v, want ErrCorruptData", pw, err)
		}
	}
}

func TestImport_CorruptData(t *testing.T) {
	t.Parallel()

	validWrongVersion, _ := Export(nil, "k", time.Unix(0, 0))
	xorKeystream(validWrongVersion, []byte("k"))
	validWrongVersion = bytes.Replace(validWrongVersion, []byte(`"version":1`), []byte(`"version":9`), 1)
	xorKeystream(validWrongVersion, []byte("k"))

	badSecret := []byte(`{"version":1,"created_at":"2024-01-01T00:00:00Z","accounts":[{"secret":"!!","digits":6,"period":30}]}`)
	xorKeystream(badSecret, []byte("k"))

	noAccounts := []byte(`{"version":1,"created_at":"2024-01-01T00:00:00Z"}`)
	xorKeystream(noAccounts, []byte("k"))

	tests := []struct {
		name string
		blob []byte
	}{
		{name: "empty", blob: nil},
		{name: "garbage", blob: []byte{0x01, 0x02, 0x03}},
		{name: "unsupported version", blob: validWrongVersion},
		{name: "invalid account", blob: badSecret},
		{name: "missing accounts", blob: noAccounts},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := Import(tt.blob, "k")
			if !errors.Is(err, ErrCorruptData) {
				t.Errorf("Import() error = %v, want ErrCorruptData", err)
			}
		})
	}
}

func TestEmptyPassword(t *testing.T) {
	if _, err := Export(sampleAccounts(), "", time.Now()); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("Export() error = %v, want ErrEmptyPassword", err)
	}
	if _, _, err := Import([]byte("x"), ""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("Import() error = %v, want ErrEmptyPassword", err)
	}
	if _, err := Seal(sampleAccounts(), "", time.Now(), SealOptions{}); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("Seal() error = %v, want ErrEmptyPassword", err)
	}
}

func TestXorKeystream_Involution(t *testing.T) {
	data := []byte("the quick brown fox")
	orig := append([]byte(nil), data...)
	xorKeystream(data, []byte("key"))
	if bytes.Equal(data, orig) {
		t.Fatal("xorKeystream() left data unchanged")
	}
	xorKeystream(data, []byte("key"))
	if !bytes.Equal(data, orig) {
		t.Errorf("double xorKeystream() = %q, want %q", data, orig)
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()

	in := sampleAccounts()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	blob, err := Seal(in, "correct horse", created, SealOptions{WorkFactor: testWorkFactor})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	out, gotCreated, err := Open(blob, "correct horse")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("Open() = %+v, want %+v", out, in)
	}
	if !gotCreated.Equal(created) {
		t.Errorf("created = %v, want %v", gotCreated, created)
	}
}

func TestOpen_WrongPasswordAndTampering(t *testing.T) {
	t.Parallel()

	blob, err := Seal(sampleAccounts(), "correct horse", time.Unix(0, 0), SealOptions{WorkFactor: testWorkFactor})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if _, _, err := Open(blob, "battery staple"); !errors.Is(err, ErrCorruptData) {
		t.Errorf("Open() with wrong password error = %v, want ErrCorruptData", err)
	}

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0xff
	if _, _, err := Open(tampered, "correct horse"); !errors.Is(err, ErrCorruptData) {
		t.Errorf("Open() of tampered blob error = %v, want ErrCorruptData", err)
	}

	if _, _, err := Open([]byte("not age"), "correct horse"); !errors.Is(err, ErrCorruptData) {
		t.Errorf("Open() of garbage error = %v, want ErrCorruptData", err)
	}
}
