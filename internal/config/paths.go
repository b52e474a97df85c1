package config

import (
	"os"
	"path/filepath"
)

// NestorPath returns the root directory for Nestor data.
// It uses $NESTOR_PATH if set, otherwise defaults to ~/.nestor.
func NestorPath() string {
	if v := os.Getenv("NESTOR_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".nestor")
	}
	return filepath.Join(home, ".nestor")
}

// ConfigPath returns the path to the Nestor config file.
func ConfigPath() string {
	return filepath.Join(NestorPath(), "config.jsonc")
}
