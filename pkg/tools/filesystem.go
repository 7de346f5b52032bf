package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxReadFileSize = 1 << 20

type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool {
	return &ReadFileTool{}
}

func (t *ReadFileTool) Name() string {
	return "read_file"
}

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file in the workspace"
}

func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to read, relative to the workspace",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, tc ToolContext, args map[string]any) *ToolResult {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return ErrorResult("path is required")
	}

	resolved, err := ResolveWorkspacePath(tc.Workspace, path)
	if err != nil {
		return ErrorResult(err.Error())
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return ErrorResult(describeFSError("read file", err))
	}
	if info.IsDir() {
		return ErrorResult(fmt.Sprintf("%s is a directory", path))
	}
	if info.Size() > maxReadFileSize {
		return ErrorResult(fmt.Sprintf("file too large (%d bytes, limit %d)", info.Size(), maxReadFileSize))
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(describeFSError("read file", err))
	}
	return NewToolResult(string(content))
}

type WriteFileTool struct{}

func NewWriteFileTool() *WriteFileTool {
	return &WriteFileTool{}
}

func (t *WriteFileTool) Name() string {
	return "write_file"
}

func (t *WriteFileTool) Description() string {
	return "Write content to a file in the workspace, creating parent directories as needed"
}

func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to write, relative to the workspace",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write to the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, tc ToolContext, args map[string]any) *ToolResult {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return ErrorResult("path is required")
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return ErrorResult("content is required")
	}

	resolved, err := ResolveWorkspacePath(tc.Workspace, path)
	if err != nil {
		return ErrorResult(err.Error())
	}

	if err := writeFileAtomic(resolved, []byte(content), 0o644); err != nil {
		return ErrorResult(describeFSError("write file", err))
	}
	return NewToolResult(fmt.Sprintf("Wrote %d chars to %s", utf8.RuneCountInString(content), resolved))
}

type ListDirTool struct{}

func NewListDirTool() *ListDirTool {
	return &ListDirTool{}
}

func (t *ListDirTool) Name() string {
	return "list_dir"
}

func (t *ListDirTool) Description() string {
	return "List files and directories in a workspace path"
}

func (t *ListDirTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list, relative to the workspace (defaults to the workspace root)",
			},
		},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, tc ToolContext, args map[string]any) *ToolResult {
	path, _ := stringArg(args, "path")
	if path == "" {
		path = "."
	}

	resolved, err := ResolveWorkspacePath(tc.Workspace, path)
	if err != nil {
		return ErrorResult(err.Error())
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ErrorResult(describeFSError("list directory", err))
	}
	if len(entries) == 0 {
		return NewToolResult("(empty)")
	}

	var sb strings.Builder
	for i, entry := range entries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if entry.IsDir() {
			sb.WriteString("DIR  ")
		} else {
			sb.WriteString("FILE ")
		}
		sb.WriteString(entry.Name())
	}
	return NewToolResult(sb.String())
}

func describeFSError(op string, err error) string {
	switch {
	case os.IsNotExist(err):
		return fmt.Sprintf("failed to %s: not found", op)
	case os.IsPermission(err):
		return fmt.Sprintf("failed to %s: access denied", op)
	default:
		return fmt.Sprintf("failed to %s: %v", op, err)
	}
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
