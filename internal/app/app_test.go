package app

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"otpkeep/internal/config"
	"otpkeep/internal/encryption"
	"otpkeep/internal/keeper"
	"otpkeep/internal/testutil"
)

const rfcURI = "otpauth://totp/ACME:alice?secret=GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ&digits=8"

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		HostID:   "test-host",
		BaseDir:  dir,
		LogDir:   filepath.Join(dir, "log"),
		Database: config.DatabaseConfig{Type: "memory"},
		KeyStore: config.KeyStoreConfig{Type: "memory", Sealed: true},
		Encryption: config.EncryptionConfig{
			Type:             "test",
			ExportWorkFactor: 10,
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, passphrase string) *OTPApp {
	t.Helper()
	a, err := NewOTPApp(cfg, "test", Options{
		Prompter: StaticPrompter(passphrase),
		Clock:    testutil.NewStubClock(time.Unix(59, 0)),
		IDs:      testutil.NewStubIDGenerator(),
	})
	if err != nil {
		t.Fatalf("NewOTPApp() error = %v", err)
	}
	return a
}

func readLog(t *testing.T, cfg *config.Config) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(cfg.LogDir, "otpkeep.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	return string(b)
}

func TestOTPApp_AddAndCode(t *testing.T) {
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg, "test")

	acct, err := a.AddURI(rfcURI)
	if err != nil {
		t.Fatalf("AddURI() error = %v", err)
	}

	entry, err := a.Code(acct.ID)
	if err != nil {
		t.Fatalf("Code() error = %v", err)
	}
	if entry.Code != "94287082" {
		t.Errorf("Code = %q, want %q", entry.Code, "94287082")
	}
	if entry.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", entry.Remaining)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	log := readLog(t, cfg)
	if !strings.Contains(log, "operation finished") || !strings.Contains(log, "status=success") {
		t.Errorf("log missing success line:\n%s", log)
	}
}

func TestOTPApp_WrongPassphrase(t *testing.T) {
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg, "nope")

	// Writes only need the public half of the key pair.
	acct, err := a.AddURI(rfcURI)
	if err != nil {
		t.Fatalf("AddURI() error = %v", err)
	}
	if _, err := a.Code(acct.ID); !errors.Is(err, encryption.ErrWrongPassphrase) {
		t.Errorf("Code() error = %v, want ErrWrongPassphrase", err)
	}

	a.Close()
	if log := readLog(t, cfg); !strings.Contains(log, "status=error") {
		t.Errorf("log missing error status:\n%s", log)
	}
}

func TestOTPApp_KeysNotInitialized(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Encryption = config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(cfg.BaseDir, "keys", "otpkeep.pub"),
		PrivateKeyPath: filepath.Join(cfg.BaseDir, "keys", "otpkeep.key"),
	}

	_, err := NewOTPApp(cfg, "test", Options{Prompter: StaticPrompter("x")})
	if !errors.Is(err, ErrKeysNotInitialized) {
		t.Fatalf("NewOTPApp() error = %v, want ErrKeysNotInitialized", err)
	}

	cfg.Encryption.KeyWorkFactor = 10
	if err := InitKeys(cfg, "secret"); err != nil {
		t.Fatalf("InitKeys() error = %v", err)
	}
	a, err := NewOTPApp(cfg, "test", Options{Prompter: StaticPrompter("secret")})
	if err != nil {
		t.Fatalf("NewOTPApp() after InitKeys error = %v", err)
	}
	defer a.Close()

	acct, err := a.AddURI(rfcURI)
	if err != nil {
		t.Fatalf("AddURI() error = %v", err)
	}
	if _, err := a.Code(acct.ID); err != nil {
		t.Errorf("Code() error = %v", err)
	}
}

func TestOTPApp_ExportImportFile(t *testing.T) {
	for _, sealed := range []bool{false, true} {
		name := "plain"
		if sealed {
			name = "sealed"
		}
		t.Run(name, func(t *testing.T) {
			cfg := newTestConfig(t)
			a := newTestApp(t, cfg, "test")
			defer a.Close()

			acct, err := a.AddURI(rfcURI)
			if err != nil {
				t.Fatalf("AddURI() error = %v", err)
			}

			path := filepath.Join(t.TempDir(), "backup.otpk")
			n, err := a.ExportFile(path, sealed)
			if err != nil {
				t.Fatalf("ExportFile() error = %v", err)
			}
			if n != 1 {
				t.Errorf("ExportFile() count = %d, want 1", n)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("stat export: %v", err)
			}
			if perm := info.Mode().Perm(); perm != 0o600 {
				t.Errorf("export mode = %o, want 600", perm)
			}

			if _, err := a.ExportFile(path, sealed); err == nil {
				t.Error("ExportFile() over an existing file should fail")
			}

			if err := a.Remove(acct.ID); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			added, err := a.ImportFile(path, sealed)
			if err != nil {
				t.Fatalf("ImportFile() error = %v", err)
			}
			if len(added) != 1 || added[0].Label() != acct.Label() {
				t.Fatalf("ImportFile() = %+v, want one %q", added, acct.Label())
			}

			entry, err := a.Code(added[0].ID)
			if err != nil {
				t.Fatalf("Code() error = %v", err)
			}
			if entry.Code != "94287082" {
				t.Errorf("Code = %q, want %q", entry.Code, "94287082")
			}
		})
	}
}

// shortWriter accepts a few bytes and then fails, leaving a partial file.
type shortWriter struct {
	f io.WriteCloser
}

func (w shortWriter) Write(p []byte) (int, error) {
	n, _ := w.f.Write(p[:len(p)/2])
	return n, errors.New("no space left on device")
}

func (w shortWriter) Close() error { return w.f.Close() }

func TestWriteNewFile_RemovesPartialFile(t *testing.T) {
	orig := createFile
	t.Cleanup(func() { createFile = orig })
	createFile = func(path string) (io.WriteCloser, error) {
		f, err := orig(path)
		if err != nil {
			return nil, err
		}
		return shortWriter{f: f}, nil
	}

	path := filepath.Join(t.TempDir(), "backup.otpk")
	if err := writeNewFile(path, []byte("0123456789")); err == nil {
		t.Fatal("writeNewFile() expected error, got nil")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partial export left behind: stat error = %v", err)
	}
}

func TestOTPApp_RemoveMissing(t *testing.T) {
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg, "test")
	defer a.Close()

	if err := a.Remove("missing"); !errors.Is(err, keeper.ErrAccountNotFound) {
		t.Errorf("Remove() error = %v, want ErrAccountNotFound", err)
	}
}

func TestFormatCode(t *testing.T) {
	tests := []struct {
		code  string
		group bool
		want  string
	}{
		{"123456", true, "123 456"},
		{"12345678", true, "1234 5678"},
		{"1234567", true, "123 4567"},
		{"123456", false, "123456"},
		{"12345", true, "12345"},
	}
	for _, tt := range tests {
		if got := FormatCode(tt.code, tt.group); got != tt.want {
			t.Errorf("FormatCode(%q, %v) = %q, want %q", tt.code, tt.group, got, tt.want)
		}
	}
}

func TestTerminalPrompter_Env(t *testing.T) {
	t.Setenv(EnvPassphrase, "from-env")

	got, err := TerminalPrompter{}.Passphrase("Passphrase: ", true)
	if err != nil {
		t.Fatalf("Passphrase() error = %v", err)
	}
	if got != "from-env" {
		t.Errorf("Passphrase() = %q, want %q", got, "from-env")
	}
}
