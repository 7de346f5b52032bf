package onboard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/georgi/microclaw/cmd/microclaw/internal"
	"github.com/georgi/microclaw/pkg/config"
)

func onboard() {
	configPath := internal.GetConfigPath()

	cfg, created, err := ensureConfig(configPath)
	if err != nil {
		fmt.Printf("Error preparing config: %v\n", err)
		os.Exit(1)
	}

	workspace := cfg.WorkspacePath()
	written, err := copyEmbeddedToTarget(workspace)
	if err != nil {
		fmt.Printf("Error copying workspace templates: %v\n", err)
		os.Exit(1)
	}

	if created {
		fmt.Printf("%s Config written to %s\n", internal.Logo, configPath)
	} else {
		fmt.Printf("%s Config already exists at %s, left unchanged\n", internal.Logo, configPath)
	}
	fmt.Printf("Workspace: %s\n", workspace)
	for _, name := range written {
		fmt.Printf("  created %s\n", name)
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set agent.api_key in the config, or export ANTHROPIC_API_KEY")
	fmt.Println("  2. Enable telegram or discord under channels and add a token")
	fmt.Println("  3. Chat locally: microclaw agent")
	fmt.Println("  4. Start the bots: microclaw gateway")
}

// ensureConfig writes the default config when none exists and loads it
// either way.
func ensureConfig(path string) (*config.Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := config.LoadConfig(path)
		return cfg, false, err
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(path, cfg); err != nil {
		return nil, false, fmt.Errorf("failed to save config: %w", err)
	}
	return cfg, true, nil
}

// copyEmbeddedToTarget writes the workspace templates into targetDir and
// returns the files it created. Existing files are never overwritten.
func copyEmbeddedToTarget(targetDir string) ([]string, error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}

	var written []string
	err := fs.WalkDir(embeddedFiles, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel("templates", path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		targetPath := filepath.Join(targetDir, rel)
		if _, err := os.Stat(targetPath); err == nil {
			return nil
		}

		data, err := embeddedFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded file %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(targetPath), err)
		}
		if err := os.WriteFile(targetPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write file %s: %w", targetPath, err)
		}
		written = append(written, rel)
		return nil
	})
	return written, err
}
