package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/georgi/microclaw/pkg/logger"
)

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ToolRegistry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

// NewSandboxRegistry registers read_file, write_file, list_dir and exec.
func NewSandboxRegistry(execOpts ExecOptions) (*ToolRegistry, error) {
	execTool, err := NewExecTool(execOpts)
	if err != nil {
		return nil, err
	}

	r := NewToolRegistry()
	r.Register(NewReadFileTool())
	r.Register(NewWriteFileTool())
	r.Register(NewListDirTool())
	r.Register(execTool)
	return r, nil
}

func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Execute runs a tool by name. Unknown tools and panics come back as
// error results.
func (r *ToolRegistry) Execute(ctx context.Context, tc ToolContext, name string, args map[string]any) (result *ToolResult) {
	tool, ok := r.Get(name)
	if !ok {
		logger.ErrorCF("tool", "Tool not found", map[string]any{"tool": name})
		return ErrorResult(fmt.Sprintf("tool %q not found", name))
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("tool", "Tool panicked", map[string]any{
				"tool":  name,
				"panic": fmt.Sprint(rec),
			})
			result = ErrorResult(fmt.Sprintf("tool %s failed unexpectedly: %v", name, rec))
		}
	}()

	result = tool.Execute(ctx, tc, args)
	if result == nil {
		result = NewToolResult("")
	}

	duration := time.Since(start)
	if result.IsError {
		logger.WarnCF("tool", "Tool execution failed", map[string]any{
			"tool":        name,
			"duration_ms": duration.Milliseconds(),
			"error":       result.ForLLM,
		})
	} else {
		logger.InfoCF("tool", "Tool execution completed", map[string]any{
			"tool":          name,
			"duration_ms":   duration.Milliseconds(),
			"result_length": len(result.ForLLM),
		})
	}
	return result
}

// sortedToolNames keeps definition order stable between turns.
func (r *ToolRegistry) sortedToolNames() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, name := range r.sortedToolNames() {
		tool := r.tools[name]
		defs = append(defs, ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedToolNames()
}

func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
