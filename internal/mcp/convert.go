package mcp

import (
	"encoding/json"

	"github.com/dileep-u-k/mcp-gateway/internal/tools"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ConvertTool normalizes an SDK tool into the neutral representation. The
// SDK carries the input schema as untyped JSON; anything that does not parse
// into the supported schema subset degrades to a bare object schema so
// discovery never fails on an exotic provider.
func ConvertTool(t *sdk.Tool) tools.Tool {
	schema := tools.JSONSchema{Type: "object"}
	if t.InputSchema != nil {
		if raw, err := json.Marshal(t.InputSchema); err == nil {
			var parsed tools.JSONSchema
			if err := json.Unmarshal(raw, &parsed); err == nil {
				if parsed.Type == "" {
					parsed.Type = "object"
				}
				schema = parsed
			}
		}
	}
	return tools.NewFunctionTool(t.Name, t.Description, schema)
}
