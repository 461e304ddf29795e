// In file: internal/tools/manager.go
package tools

import (
	"fmt"
	"sort"
)

// ToolManager holds a registry of all available in-process tools.
type ToolManager struct {
	tools map[string]ToolExecutor
}

func NewToolManager() *ToolManager {
	return &ToolManager{
		tools: make(map[string]ToolExecutor),
	}
}

// Register adds a new tool to the manager's registry. Re-registering a name
// overwrites the previous executor.
func (tm *ToolManager) Register(tool ToolExecutor) {
	name := tool.Definition().Function.Name
	tm.tools[name] = tool
}

// GetDefinitions returns all registered tool definitions in name order.
// Stable ordering keeps downstream scoring and prompts deterministic.
func (tm *ToolManager) GetDefinitions() []Tool {
	names := make([]string, 0, len(tm.tools))
	for name := range tm.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]Tool, 0, len(names))
	for _, name := range names {
		defs = append(defs, tm.tools[name].Definition())
	}
	return defs
}

// Execute runs a tool by name with the given arguments.
func (tm *ToolManager) Execute(name, arguments string) (string, error) {
	tool, ok := tm.tools[name]
	if !ok {
		return "", fmt.Errorf("tool '%s' not found", name)
	}
	return tool.Execute(arguments)
}

// ToolCount returns the number of registered tools.
func (tm *ToolManager) ToolCount() int {
	return len(tm.tools)
}
