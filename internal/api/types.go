// In file: internal/api/types.go

// Package api defines the public request and response types of the gateway's
// HTTP surface. These types are the wire contract; internal packages convert
// them into their own representations at the boundary.
package api

// RouteRequest is the body of POST /api/v1/route.
type RouteRequest struct {
	// Query is the natural-language request to route. An empty query is
	// accepted; routing falls through to the direct responder.
	Query string `json:"query"`
	// Context is optional free-text context prepended to the query.
	Context string `json:"context,omitempty"`
	// ConversationID, when set, pins a rolling transcript so follow-up
	// queries carry conversational memory.
	ConversationID string `json:"conversation_id,omitempty"`
}

// RouteResponse is the body returned by POST /api/v1/route.
type RouteResponse struct {
	// Answer is the final text. Never empty.
	Answer string `json:"answer"`
	// Provider is the provider that produced the answer, empty on fallback.
	Provider string `json:"provider,omitempty"`
	// Operation is the qualified operation executed, if any.
	Operation string `json:"operation,omitempty"`
	// Source is "provider" or "fallback".
	Source string `json:"source"`
	// Attempts counts candidate providers tried before the answer.
	Attempts int `json:"attempts"`
	// CacheStatus is "HIT", "MISS" or "BYPASS" (cache disabled).
	CacheStatus string `json:"cache_status"`
	RequestID   string `json:"request_id"`
	LatencyMS   int64  `json:"latency_ms"`
}

// ReconnectResponse is the body returned by POST /api/v1/providers/:name/reconnect.
type ReconnectResponse struct {
	Provider string `json:"provider"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Usage holds token accounting for one or more model calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}
