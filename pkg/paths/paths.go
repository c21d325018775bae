// Package paths provides centralized path handling for stager. It follows
// the XDG Base Directory specification for the tool's own files; dataset
// roots always travel in the parameter binding, never through this package.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Environment variable names
const (
	// EnvConfigDir overrides the XDG config directory for stager
	EnvConfigDir = "STAGER_CONFIG_DIR"

	// EnvStateDir overrides the XDG state directory for stager
	EnvStateDir = "STAGER_STATE_DIR"
)

const appDirName = "stager"

// ConfigDir returns the directory holding stager.toml.
func ConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	return filepath.Join(xdg.ConfigHome, appDirName)
}

// ConfigFile returns the path of the runtime configuration file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "stager.toml")
}

// StateDir returns the directory for run state (logs, reports).
func StateDir() string {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return dir
	}
	return filepath.Join(xdg.StateHome, appDirName)
}

// ReportDir returns where transfer reports are written.
func ReportDir() string {
	return filepath.Join(StateDir(), "reports")
}
