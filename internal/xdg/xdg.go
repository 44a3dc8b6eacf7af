// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg locates the authority's files under the XDG base directories.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "authority"

// ConfigFileName is the config file looked up in ConfigDirs.
const ConfigFileName = "config.yaml"

// ConfigDir returns the user config directory: $XDG_CONFIG_HOME/authority,
// or ~/.config/authority.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").Wrap(err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// ConfigDirs lists the directories searched for a config file, most
// specific first: the user directory, then each $XDG_CONFIG_DIRS entry
// (default /etc/xdg).
func ConfigDirs() []string {
	var dirs []string
	if user, err := ConfigDir(); err == nil {
		dirs = append(dirs, user)
	}
	system := os.Getenv("XDG_CONFIG_DIRS")
	if system == "" {
		system = "/etc/xdg"
	}
	for _, d := range filepath.SplitList(system) {
		if d != "" {
			dirs = append(dirs, filepath.Join(d, appName))
		}
	}
	return dirs
}

// FindConfigFile returns the first existing config file in ConfigDirs, or
// "" when there is none.
func FindConfigFile() string {
	for _, dir := range ConfigDirs() {
		path := filepath.Join(dir, ConfigFileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
