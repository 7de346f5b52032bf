package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/georgi/microclaw/internal/infra"
)

const EnvMicroclawConfig = "MICROCLAW_CONFIG"

// ResolveConfigPath returns MICROCLAW_CONFIG when set, else config.json under
// the microclaw home.
func ResolveConfigPath() string {
	if p := infra.ExpandHome(strings.TrimSpace(os.Getenv(EnvMicroclawConfig))); p != "" {
		return p
	}
	return filepath.Join(infra.ResolveHomeDir(), "config.json")
}
