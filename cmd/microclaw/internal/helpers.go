package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/georgi/microclaw/internal/infra"
	"github.com/georgi/microclaw/pkg/config"
	"github.com/georgi/microclaw/pkg/logger"
)

const Logo = "🦀"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

var (
	configMu       sync.RWMutex
	configOverride string
)

// SetConfigPath overrides the config location for this process. An empty
// path restores the default.
func SetConfigPath(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configOverride = strings.TrimSpace(path)
}

func GetConfigPath() string {
	configMu.RLock()
	defer configMu.RUnlock()
	if configOverride != "" {
		return configOverride
	}
	return config.ResolveConfigPath()
}

// LoadConfig reads the config and applies its logging section. debug forces
// the debug level.
func LoadConfig(debug bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(GetConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := SetupLogging(cfg.Log, debug); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SetupLogging(cfg config.LogConfig, debug bool) error {
	if level, ok := logger.ParseLevel(cfg.Level); ok {
		logger.SetLevel(level)
	} else if cfg.Level != "" {
		logger.WarnCF("config", "Unknown log level, keeping default", map[string]any{"level": cfg.Level})
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
	}

	if cfg.File == "" {
		logger.DisableFileLogging()
	} else {
		path := infra.ExpandHome(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		if err := logger.EnableFileLogging(path); err != nil {
			return err
		}
	}
	return nil
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}
