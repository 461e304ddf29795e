// In file: internal/llm/constants.go
package llm

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// defaultMaxOutputTokens caps responses when the caller sets no limit.
const defaultMaxOutputTokens = 4096
