package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/custom/otpkeep.toml")
		t.Setenv(EnvHome, "/custom/home")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		if d.ConfigPath != "/custom/otpkeep.toml" {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, "/custom/otpkeep.toml")
		}
		if d.BaseDir != "/custom/home" {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, "/custom/home")
		}
		if d.LogDir != "/custom/home/log" {
			t.Errorf("LogDir = %q, want %q", d.LogDir, "/custom/home/log")
		}
	})

	t.Run("home directory fallbacks", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv(EnvHome, "")

		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		if want := filepath.Join(home, ".config", "otpkeep.toml"); d.ConfigPath != want {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, want)
		}
		if want := filepath.Join(home, ".local", "share", "otpkeep"); d.BaseDir != want {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, want)
		}
	})
}
