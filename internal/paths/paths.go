// Package paths resolves the on-disk layout of the engine's data
// directory. Everything lives under one directory so a data dir can be
// moved or wiped as a unit.
package paths

import (
	"os"
	"path/filepath"
)

// Default returns ~/.peersync.
func Default() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".peersync")
}

// DBPath returns the engine-owned SQLite database path.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "peersync.db")
}

// ConfigPath returns the config file path.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// LogPath returns the engine log file path.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "peersyncd.log")
}

// LockPath returns the lock file path.
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, "LOCK")
}

// EnsureDir creates the data directory tree with proper permissions.
func EnsureDir(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "logs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
