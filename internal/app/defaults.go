package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - WEBFILE_CONFIG_PATH: config file location (default: ~/.config/webfile.toml)
//   - WEBFILE_HOME: base directory for webfile data (default: ~/.local/share/webfile)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// LoadEnv loads variables from an env file without overriding those already
// set. The file is WEBFILE_ENV_FILE, or .env in the working directory. A
// missing file is not an error.
func LoadEnv() error {
	envFile := os.Getenv("WEBFILE_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", envFile, err)
	}
	return nil
}

// getConfigPath returns the config file path, checking WEBFILE_CONFIG_PATH env var first,
// then falling back to the default ~/.config/webfile.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("WEBFILE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "webfile.toml"), nil
}

// getBaseDir returns the base directory for webfile data, checking WEBFILE_HOME env var first,
// then falling back to the XDG default ~/.local/share/webfile.
func getBaseDir() (string, error) {
	if path := os.Getenv("WEBFILE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "webfile"), nil
}
