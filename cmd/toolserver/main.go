// In file: cmd/toolserver/main.go

// toolserver exposes the gateway's built-in calculator and clock tools as a
// standalone MCP server speaking stdio, so the same toolset can be mounted as
// an external provider or used from any MCP-compatible client. Logs go to
// stderr; stdout carries only protocol frames.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/dileep-u-k/mcp-gateway/internal/logger"
	"github.com/dileep-u-k/mcp-gateway/internal/tools"
	"github.com/dileep-u-k/mcp-gateway/internal/version"
)

type calculateArgs struct {
	Operand1 float64 `json:"operand1"`
	Operator string  `json:"operator"`
	Operand2 float64 `json:"operand2"`
}

type currentTimeArgs struct {
	Timezone *string `json:"timezone,omitempty"`
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"), "json")

	server := sdk.NewServer(&sdk.Implementation{Name: "mcp-toolserver", Version: version.App}, nil)
	registerTools(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", version.App).Msg("🔧 Tool server listening on stdio")
	if err := server.Run(ctx, &sdk.StdioTransport{}); err != nil {
		log.Fatal().Err(err).Msg("Tool server exited")
	}
}

// registerTools adapts the in-process executors to MCP tools. Names and
// descriptions come from the executor definitions so both surfaces stay
// consistent.
func registerTools(server *sdk.Server) {
	calculator := tools.NewCalculatorTool()
	calcDef := calculator.Definition().Function
	sdk.AddTool(server, &sdk.Tool{
		Name:        calcDef.Name,
		Description: calcDef.Description,
	}, func(ctx context.Context, req *sdk.CallToolRequest, input calculateArgs) (*sdk.CallToolResult, any, error) {
		return runExecutor(calculator, input)
	})

	clock := tools.NewClockTool()
	clockDef := clock.Definition().Function
	sdk.AddTool(server, &sdk.Tool{
		Name:        clockDef.Name,
		Description: clockDef.Description,
	}, func(ctx context.Context, req *sdk.CallToolRequest, input currentTimeArgs) (*sdk.CallToolResult, any, error) {
		return runExecutor(clock, input)
	})
}

// runExecutor round-trips the typed arguments through JSON, which is the
// format every ToolExecutor consumes.
func runExecutor(exec tools.ToolExecutor, input any) (*sdk.CallToolResult, any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, nil, fmt.Errorf("encode arguments: %w", err)
	}
	text, err := exec.Execute(string(raw))
	if err != nil {
		return nil, nil, err
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
	}, nil, nil
}
