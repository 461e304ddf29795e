// In file: internal/tools/executor.go
package tools

// ToolExecutor is the standard interface for any tool executed in-process.
// The builtin provider kind serves a ToolManager of these over the same
// contract remote providers expose.
type ToolExecutor interface {
	// Definition returns the tool's schema, which is provided to the LLM
	// so it understands the tool's capabilities, name, and arguments.
	Definition() Tool

	// Execute runs the actual logic of the tool. It receives the arguments
	// as a JSON string generated by the LLM against the tool's schema and
	// returns a string result to be sent back to the LLM.
	Execute(arguments string) (string, error)
}
