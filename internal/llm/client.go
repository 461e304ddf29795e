// In file: internal/llm/client.go

// Package llm contains the model-client abstraction and the Gemini
// implementation used for both tool-restricted candidate attempts and plain
// direct answers.
package llm

import (
	"context"

	"github.com/dileep-u-k/mcp-gateway/internal/api"
	"github.com/dileep-u-k/mcp-gateway/internal/tools"
)

// Role represents the originator of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a single message in a conversation history.
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolName carries the function name on RoleTool messages; the Gemini
	// API requires it to pair a function response with its call.
	ToolName  string            `json:"tool_name,omitempty"`
	ToolCalls []*tools.ToolCall `json:"tool_calls,omitempty"`
}

// GenerationConfig holds the parameters that control generation behavior.
type GenerationConfig struct {
	// Model is the specific model to use for the generation.
	Model string
	// Temperature controls randomness; lower is more deterministic.
	// A pointer distinguishes 0.0 from unset.
	Temperature *float32
	// MaxTokens caps the generated response length.
	MaxTokens int
	// TopP is nucleus sampling, an alternative to temperature.
	TopP *float32
}

// GenerationResult holds the complete output from a model call.
type GenerationResult struct {
	// Content is the generated text.
	Content string
	// ToolCalls are the calls the model requested, possibly several.
	ToolCalls []*tools.ToolCall
	// Usage is the token accounting for the request.
	Usage api.Usage
}

// LLMClient is the interface the dispatcher generates through. The single
// production implementation is the Gemini client; tests substitute fakes.
type LLMClient interface {
	// Generate performs one blocking model call. It takes the full
	// conversation so far, an optional generation config, and the tool
	// definitions the model is allowed to call (nil for none).
	Generate(
		ctx context.Context,
		messages []Message,
		config *GenerationConfig,
		availableTools []tools.Tool,
	) (*GenerationResult, error)
}
