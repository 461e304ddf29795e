// In file: internal/tools/types.go

// Package tools defines the data structures for function calling (tool use).
// These types are a universal, provider-agnostic representation of tools:
// operations discovered from remote providers and tools implemented locally
// are both normalized into this form before being translated into the format
// a specific LLM API requires.
package tools

// ToolTypeFunction is the standard type for function-based tools.
const ToolTypeFunction = "function"

// Tool defines the schema for a function that can be described to an LLM.
// This is the information sent *to* the model to make it aware of a tool.
type Tool struct {
	// Type specifies the type of tool, which is almost always "function".
	Type string `json:"type"`
	// Function holds the detailed definition of the function.
	Function Function `json:"function"`
}

// Function defines the name, description, and parameters of a callable tool.
type Function struct {
	// Name is the name of the function to be called.
	Name string `json:"name"`
	// Description explains what the function does. The model relies on it
	// to decide when the tool applies.
	Description string `json:"description"`
	// Parameters defines the arguments the function accepts, as a JSON Schema.
	Parameters JSONSchema `json:"parameters"`
}

// JSONSchema is a structured, type-safe representation of the JSON Schema
// subset used for tool parameters.
type JSONSchema struct {
	// Type is the data type for a schema node ("object", "string", "number",
	// "integer", "boolean", "array"). Top-level parameters are "object".
	Type string `json:"type"`
	// Description explains what a parameter is for.
	Description string `json:"description,omitempty"`
	// Properties maps parameter names to their schemas for object nodes.
	Properties map[string]*JSONSchema `json:"properties,omitempty"`
	// Required lists mandatory parameter names.
	Required []string `json:"required,omitempty"`
	// Items is the element schema for array nodes.
	Items *JSONSchema `json:"items,omitempty"`
	// Enum restricts a string parameter to a fixed set of values.
	Enum []string `json:"enum,omitempty"`
}

// ToolCall represents a request *from* the LLM to execute a specific tool
// with given arguments.
type ToolCall struct {
	// ID identifies this specific call so the execution result can be
	// matched back to the model's request in a multi-turn exchange.
	ID string `json:"id"`
	// Type indicates the type of tool being called.
	Type string `json:"type"`
	// Function contains the name and arguments the model wants to execute.
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction holds the name and arguments of a requested function call.
type ToolCallFunction struct {
	// Name is the function the model has decided to call.
	Name string `json:"name"`
	// Arguments is a JSON string containing the call arguments. Executors
	// unmarshal it into a struct matching the function's schema.
	Arguments string `json:"arguments"`
}

// NewFunctionTool creates a Tool with the correct "function" type.
func NewFunctionTool(name, description string, parameters JSONSchema) Tool {
	return Tool{
		Type: ToolTypeFunction,
		Function: Function{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
