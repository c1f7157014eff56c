package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("WEBFILE_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("WEBFILE_HOME", "/custom/webfile")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/webfile" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/webfile")
		}
		if defaults["log_dir"] != "/custom/webfile/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/webfile/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("WEBFILE_CONFIG_PATH", "")
		t.Setenv("WEBFILE_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "webfile.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "webfile")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}

		wantLog := filepath.Join(wantBase, "log")
		if defaults["log_dir"] != wantLog {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], wantLog)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	t.Run("reads env file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "webfile.env")
		if err := os.WriteFile(path, []byte("WEBFILE_HOME=/from/env/file\n"), 0644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("WEBFILE_ENV_FILE", path)
		t.Setenv("WEBFILE_HOME", "")
		os.Unsetenv("WEBFILE_HOME")

		if err := LoadEnv(); err != nil {
			t.Fatalf("LoadEnv() error = %v", err)
		}
		if got := os.Getenv("WEBFILE_HOME"); got != "/from/env/file" {
			t.Errorf("WEBFILE_HOME = %q, want %q", got, "/from/env/file")
		}
	})

	t.Run("keeps existing variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "webfile.env")
		if err := os.WriteFile(path, []byte("WEBFILE_HOME=/from/env/file\n"), 0644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("WEBFILE_ENV_FILE", path)
		t.Setenv("WEBFILE_HOME", "/already/set")

		if err := LoadEnv(); err != nil {
			t.Fatalf("LoadEnv() error = %v", err)
		}
		if got := os.Getenv("WEBFILE_HOME"); got != "/already/set" {
			t.Errorf("WEBFILE_HOME = %q, want %q", got, "/already/set")
		}
	})

	t.Run("missing file is fine", func(t *testing.T) {
		t.Setenv("WEBFILE_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
		if err := LoadEnv(); err != nil {
			t.Errorf("LoadEnv() error = %v", err)
		}
	})
}
