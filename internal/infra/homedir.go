package infra

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveHomeDir returns the effective home directory for microclaw.
// It checks the MICROCLAW_HOME environment variable first,
// falls back to ~/.microclaw if not set or empty.
func ResolveHomeDir() string {
	if envHome := strings.TrimSpace(os.Getenv("MICROCLAW_HOME")); envHome != "" {
		return ExpandHome(envHome)
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return filepath.Join(os.TempDir(), ".microclaw")
	}
	return filepath.Join(home, ".microclaw")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
		return filepath.Join(home, path[2:])
	}
	if len(path) == 1 {
		return home
	}
	return path
}
