// Package mcp connects the gateway to tool providers speaking the Model
// Context Protocol. A provider is dialed over stdio (subprocess) or
// streamable HTTP through the official SDK, or served in-process by the
// builtin kind; all three are normalized behind the Conn interface so the
// routing layer never sees transport details.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dileep-u-k/mcp-gateway/internal/tools"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Conn is a live connection to one tool provider.
type Conn interface {
	// ListTools discovers the provider's tools in the neutral form.
	ListTools(ctx context.Context) ([]tools.Tool, error)
	// CallTool invokes one tool by its raw (unqualified) name. Arguments is
	// the JSON object string produced by the model. The result is the
	// flattened text content; a tool-reported error comes back as an error.
	CallTool(ctx context.Context, name, arguments string) (string, error)
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// sessionConn adapts an SDK client session to Conn.
type sessionConn struct {
	session *sdk.ClientSession
}

// NewSessionConn wraps an established SDK session. Exposed for callers that
// manage their own transports, such as in-memory test fixtures.
func NewSessionConn(session *sdk.ClientSession) Conn {
	return &sessionConn{session: session}
}

func (c *sessionConn) ListTools(ctx context.Context) ([]tools.Tool, error) {
	res, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}
	out := make([]tools.Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, ConvertTool(t))
	}
	return out, nil
}

func (c *sessionConn) CallTool(ctx context.Context, name, arguments string) (string, error) {
	args := map[string]any{}
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for tool %s: %w", name, err)
		}
	}

	res, err := c.session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("tools/call %s failed: %w", name, err)
	}

	text := flattenContent(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an unspecified error"
		}
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	if text != "" {
		return text, nil
	}
	if res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			return string(raw), nil
		}
	}
	return "No result returned.", nil
}

func (c *sessionConn) Close() error {
	return c.session.Close()
}

// flattenContent combines all text content items into one string.
func flattenContent(content []sdk.Content) string {
	var b strings.Builder
	for _, item := range content {
		if tc, ok := item.(*sdk.TextContent); ok {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(tc.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
