package store

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultDBFile = "inventory.db"

	// EnvDBPath overrides the database file location when no flag is given.
	EnvDBPath = "STOCKROOM_DB"
)

// CheckExists verifies if the datastore exists at the given path.
// Returns true if the store exists, false otherwise.
func CheckExists(storePath string) (bool, error) {
	return CheckFileExists(GetDBPath(storePath))
}

// CheckFileExists is CheckExists for a full database file path.
func CheckFileExists(dbPath string) (bool, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check store existence: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("datastore path is a directory, expected file: %s", dbPath)
	}
	return true, nil
}

// GetStorePath returns the path to the datastore directory.
// The store lives next to the process, in the current working directory.
func GetStorePath() string {
	return "."
}

// GetDBPath returns the full path to the database file.
func GetDBPath(storePath string) string {
	return filepath.Join(storePath, DefaultDBFile)
}

// ResolveDBPath picks the database file from an explicit value, then the
// STOCKROOM_DB environment variable, then the default location.
func ResolveDBPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		return v
	}
	return GetDBPath(GetStorePath())
}
