// Package config loads ~/.vpn-deck/config.toml and locates the files vpn-deck keeps.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// HomeEnv overrides the vpn-deck directory.
	HomeEnv = "VPNDECK_HOME"

	// UserConfigFileName is the TOML configuration file.
	UserConfigFileName = "config.toml"

	// StateDBFileName is the SQLite database holding recents.
	StateDBFileName = "state.db"

	// CatalogFileName is the default server catalog.
	CatalogFileName = "servers.json"
)

// GetVPNDeckDir returns the base directory (~/.vpn-deck or $VPNDECK_HOME).
func GetVPNDeckDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return ExpandPath(dir)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".vpn-deck"), nil
}

// GetStateDBPath returns the path of the recents database.
func GetStateDBPath() (string, error) {
	dir, err := GetVPNDeckDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, StateDBFileName), nil
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", p, err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(p, "~")), nil
}
