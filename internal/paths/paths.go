// Package paths provides a single source of truth for fbmon file paths.
// All path helpers honor environment variable overrides for isolated testing.
//
// Path resolution precedence:
//  1. Specific env vars (FBMON_CONFIG, FBMON_LOG_PATH) take highest priority
//  2. FBMON_DIR sets the base directory (derives config and log paths)
//  3. Default behavior (~/.fbmon, ~/.config/fbmon) when no env vars are set
package paths

import (
	"os"
	"path/filepath"
)

// Environment variable names for path overrides.
const (
	// EnvDir is the base directory override (e.g., /tmp/fbmon-test).
	EnvDir = "FBMON_DIR"

	// EnvConfigPath overrides the config file path directly.
	EnvConfigPath = "FBMON_CONFIG"

	// EnvLogPath overrides the log file path directly.
	EnvLogPath = "FBMON_LOG_PATH"
)

// BaseDir returns the fbmon base directory (~/.fbmon by default).
// Honors FBMON_DIR environment variable.
func BaseDir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fbmon"), nil
}

// ConfigDir returns the fbmon config directory (~/.config/fbmon by default).
// When FBMON_DIR is set, returns FBMON_DIR/config instead.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return filepath.Join(dir, "config"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "fbmon"), nil
}

// ConfigPath returns the path to the config file.
// Precedence: FBMON_CONFIG > FBMON_DIR/config/config.toml > ~/.config/fbmon/config.toml
func ConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LogPath returns the log file path.
// Precedence: FBMON_LOG_PATH > FBMON_DIR/fbmon.log > ~/.fbmon/fbmon.log
func LogPath() string {
	if path := os.Getenv(EnvLogPath); path != "" {
		return path
	}
	base, err := BaseDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "fbmon.log")
	}
	return filepath.Join(base, "fbmon.log")
}
