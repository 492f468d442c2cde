package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// GetAppDir returns the OS-conventional per-user application directory the
// engine uses for its data and log files when the host process doesn't
// override them.
func GetAppDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(appData, "downloadengine")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "downloadengine")
	default:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, _ := os.UserHomeDir()
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "downloadengine")
	}
}

// GetDataDir returns the directory the Store's downloads.json and the
// flock advisory lock live in.
func GetDataDir() string {
	return filepath.Join(GetAppDir(), "data")
}

// GetLogsDir returns the directory the logger writes engine.log to.
func GetLogsDir() string {
	return filepath.Join(GetAppDir(), "logs")
}

// EnsureDirs creates every directory the engine needs.
func EnsureDirs() error {
	for _, dir := range []string{GetAppDir(), GetDataDir(), GetLogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
