//go:build !windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		"dockdash.yaml",
		filepath.Join(home, ".config", "dockdash", "config.yaml"),
		"/etc/dockdash/dockdash.yaml",
	}
}
