package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override default locations.
const (
	EnvConfigPath = "OTPKEEP_CONFIG_PATH"
	EnvHome       = "OTPKEEP_HOME"
	EnvPassphrase = "OTPKEEP_PASSPHRASE"
)

// Defaults are the application's default paths.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns default paths, checking environment variables first:
//   - OTPKEEP_CONFIG_PATH: config file (default ~/.config/otpkeep.toml)
//   - OTPKEEP_HOME: data directory (default ~/.local/share/otpkeep)
func GetDefaults() (*Defaults, error) {
	configPath := os.Getenv(EnvConfigPath)
	baseDir := os.Getenv(EnvHome)

	if configPath == "" || baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		if configPath == "" {
			configPath = filepath.Join(home, ".config", "otpkeep.toml")
		}
		if baseDir == "" {
			baseDir = filepath.Join(home, ".local", "share", "otpkeep")
		}
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}
