package mcp

import (
	"context"

	"github.com/dileep-u-k/mcp-gateway/internal/tools"
)

// builtinConn serves a local ToolManager over the Conn contract. It lets
// in-process tools participate in routing exactly like remote providers,
// with no transport underneath.
type builtinConn struct {
	manager *tools.ToolManager
}

// NewBuiltinConn wraps a tool manager as a provider connection.
func NewBuiltinConn(manager *tools.ToolManager) Conn {
	return &builtinConn{manager: manager}
}

func (c *builtinConn) ListTools(_ context.Context) ([]tools.Tool, error) {
	return c.manager.GetDefinitions(), nil
}

func (c *builtinConn) CallTool(ctx context.Context, name, arguments string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.manager.Execute(name, arguments)
}

func (c *builtinConn) Close() error {
	return nil
}
