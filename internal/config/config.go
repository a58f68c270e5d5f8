// Package config reads and writes the otpkeep TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

var ErrConfigExists = errors.New("config file already exists")

// Config represents the main configuration for otpkeep.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	KeyStore   KeyStoreConfig   `toml:"keystore"`
	Encryption EncryptionConfig `toml:"encryption"`
	Import     ImportConfig     `toml:"import"`
	Display    DisplayConfig    `toml:"display"`
}

// DatabaseConfig selects where account metadata lives.
// The Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// KeyStoreConfig selects where account secrets live.
type KeyStoreConfig struct {
	Type   string `toml:"type"`           // "filesystem" or "memory"
	Root   string `toml:"root,omitempty"` // only used for type=filesystem
	Sealed bool   `toml:"sealed"`         // encrypt each secret with the age key pair
}

// EncryptionConfig holds paths to the age key pair used to seal secrets.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	// KeyWorkFactor is the scrypt work factor protecting the private key.
	KeyWorkFactor int `toml:"key_work_factor,omitempty"`
	// ExportWorkFactor is the scrypt work factor for sealed exports.
	ExportWorkFactor int `toml:"export_work_factor,omitempty"`
}

// ImportConfig tunes how migration payloads are imported.
type ImportConfig struct {
	FallbackIssuer string `toml:"fallback_issuer"`
}

// DisplayConfig controls how codes are printed.
type DisplayConfig struct {
	GroupDigits bool `toml:"group_digits"` // print "123 456" instead of "123456"
	ShowSeconds bool `toml:"show_seconds"` // print the seconds remaining next to each code
}

// NewConfig creates a Config rooted at baseDir with sqlite metadata, sealed
// filesystem secrets and default key paths.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		KeyStore: KeyStoreConfig{
			Type:   "filesystem",
			Root:   filepath.Join(baseDir, "secrets"),
			Sealed: true,
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "otpkeep.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "otpkeep.key"),
		},
		Display: DisplayConfig{
			GroupDigits: true,
			ShowSeconds: true,
		},
	}
}

// Validate checks the tagged unions for missing fields.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.DataDir == "" {
			return fmt.Errorf("database: data_dir required for sqlite")
		}
	default:
		return fmt.Errorf("database: unknown type %q", c.Database.Type)
	}

	switch c.KeyStore.Type {
	case "memory":
	case "filesystem":
		if c.KeyStore.Root == "" {
			return fmt.Errorf("keystore: root required for filesystem")
		}
	default:
		return fmt.Errorf("keystore: unknown type %q", c.KeyStore.Type)
	}

	if c.Encryption.KeyWorkFactor < 0 || c.Encryption.KeyWorkFactor > 30 {
		return fmt.Errorf("encryption: key_work_factor %d out of range", c.Encryption.KeyWorkFactor)
	}
	if c.Encryption.ExportWorkFactor < 0 || c.Encryption.ExportWorkFactor > 30 {
		return fmt.Errorf("encryption: export_work_factor %d out of range", c.Encryption.ExportWorkFactor)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to path. It refuses to replace an existing file.
func Init(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w at %s", ErrConfigExists, path)
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
