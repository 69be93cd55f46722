//go:build windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	local := os.Getenv("LOCALAPPDATA")
	programData := os.Getenv("ProgramData")
	return []string{
		"dockdash.yaml",
		filepath.Join(local, "DockDash", "config.yaml"),
		filepath.Join(programData, "DockDash", "dockdash.yaml"),
	}
}
