package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrOutsideWorkspace           = errors.New("path must be inside workspace")
	ErrWorkingDirOutsideWorkspace = errors.New("working_dir must be inside workspace")
)

// ResolveWorkspacePath resolves input against the workspace root and returns
// the absolute path. Relative inputs are joined to the root; absolute inputs
// must already lie under it. Symlinks that lead out of the root are rejected.
func ResolveWorkspacePath(workspace, input string) (string, error) {
	return resolveContained(workspace, input, ErrOutsideWorkspace)
}

// ResolveWorkingDir is ResolveWorkspacePath for a command working directory.
// An empty wd means the workspace root.
func ResolveWorkingDir(workspace, wd string) (string, error) {
	if wd == "" {
		wd = "."
	}
	return resolveContained(workspace, wd, ErrWorkingDirOutsideWorkspace)
}

func resolveContained(workspace, input string, containErr error) (string, error) {
	if workspace == "" {
		return "", fmt.Errorf("workspace is not defined")
	}

	root, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace path: %w", err)
	}

	var target string
	if filepath.IsAbs(input) {
		target = filepath.Clean(input)
	} else {
		target = filepath.Join(root, input)
	}

	if !isWithinWorkspace(target, root) {
		return "", containErr
	}

	rootReal, err := resolveExistingAncestor(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	resolved, err := resolveExistingAncestor(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !isWithinWorkspace(resolved, rootReal) {
		return "", containErr
	}

	return target, nil
}

// resolveExistingAncestor evaluates symlinks on the deepest existing prefix
// of path and re-attaches the components that do not exist yet. A root and
// a target are resolved the same way, so a workspace that has not been
// created still contains its own children.
func resolveExistingAncestor(path string) (string, error) {
	current := filepath.Clean(path)
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		if info, lerr := os.Lstat(current); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
			// dangling link: follow it so a missing target outside the root is caught
			link, err := os.Readlink(current)
			if err != nil {
				return "", err
			}
			if !filepath.IsAbs(link) {
				link = filepath.Join(filepath.Dir(current), link)
			}
			return resolveExistingAncestor(filepath.Join(append([]string{link}, missing...)...))
		}
		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Clean(path), nil
		}
		missing = append([]string{filepath.Base(current)}, missing...)
		current = parent
	}
}

func isWithinWorkspace(candidate, workspace string) bool {
	rel, err := filepath.Rel(filepath.Clean(workspace), filepath.Clean(candidate))
	return err == nil && (rel == "." || filepath.IsLocal(rel))
}
