package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		HostID:   "test-host-abc",
		BaseDir:  "/home/user/.local/share/otpkeep",
		LogDir:   "/home/user/.local/share/otpkeep/log",
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/otpkeep/db"},
		KeyStore: KeyStoreConfig{Type: "filesystem", Root: "/home/user/.local/share/otpkeep/secrets", Sealed: true},
		Encryption: EncryptionConfig{
			Type:             "age",
			PublicKeyPath:    "/home/user/.local/share/otpkeep/keys/otpkeep.pub",
			PrivateKeyPath:   "/home/user/.local/share/otpkeep/keys/otpkeep.key",
			ExportWorkFactor: 16,
		},
		Import:  ImportConfig{FallbackIssuer: "Unknown"},
		Display: DisplayConfig{GroupDigits: true},
	}

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), "[keystore]") {
		t.Errorf("encoded config has no [keystore] table:\n%s", buf.String())
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if *got != *original {
		t.Errorf("Read() = %+v, want %+v", got, original)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("host-1", "/data/otpkeep")

	checks := []struct {
		name, got, want string
	}{
		{"HostID", cfg.HostID, "host-1"},
		{"BaseDir", cfg.BaseDir, "/data/otpkeep"},
		{"LogDir", cfg.LogDir, "/data/otpkeep/log"},
		{"Database.DataDir", cfg.Database.DataDir, "/data/otpkeep/db"},
		{"KeyStore.Root", cfg.KeyStore.Root, "/data/otpkeep/secrets"},
		{"Encryption.PublicKeyPath", cfg.Encryption.PublicKeyPath, "/data/otpkeep/keys/otpkeep.pub"},
		{"Encryption.PrivateKeyPath", cfg.Encryption.PrivateKeyPath, "/data/otpkeep/keys/otpkeep.key"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if !cfg.KeyStore.Sealed {
		t.Error("KeyStore.Sealed = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "memory everything", mutate: func(c *Config) {
			c.Database = DatabaseConfig{Type: "memory"}
			c.KeyStore = KeyStoreConfig{Type: "memory"}
		}},
		{name: "sqlite without data_dir", mutate: func(c *Config) { c.Database.DataDir = "" }, wantErr: true},
		{name: "unknown database", mutate: func(c *Config) { c.Database.Type = "postgres" }, wantErr: true},
		{name: "filesystem without root", mutate: func(c *Config) { c.KeyStore.Root = "" }, wantErr: true},
		{name: "unknown keystore", mutate: func(c *Config) { c.KeyStore.Type = "keychain" }, wantErr: true},
		{name: "work factor too large", mutate: func(c *Config) { c.Encryption.ExportWorkFactor = 31 }, wantErr: true},
		{name: "negative key work factor", mutate: func(c *Config) { c.Encryption.KeyWorkFactor = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("h", "/base")
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "otpkeep.toml")

		if err := Init(path, NewConfig("h1", dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "otpkeep.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); !errors.Is(err, ErrConfigExists) {
			t.Fatalf("second Init() error = %v, want ErrConfigExists", err)
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		dir := t.TempDir()
		cfg := NewConfig("h1", dir)
		cfg.Database.Type = "nope"
		if err := Init(filepath.Join(dir, "otpkeep.toml"), cfg); err == nil {
			t.Fatal("Init() expected error for invalid config")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "otpkeep.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.HostID != "read-test" {
			t.Errorf("HostID = %q, want %q", got.HostID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("rejects invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "otpkeep.toml")
		if err := os.WriteFile(path, []byte("[database]\ntype = \"sqlite\"\n[keystore]\ntype = \"memory\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadFromFile(path); err == nil {
			t.Fatal("ReadFromFile() expected error for sqlite without data_dir")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/otpkeep.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
