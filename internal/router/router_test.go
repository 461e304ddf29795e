// In file: internal/router/router_test.go
package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dileep-u-k/mcp-gateway/internal/api"
	"github.com/dileep-u-k/mcp-gateway/internal/llm"
	"github.com/dileep-u-k/mcp-gateway/internal/mcp"
	"github.com/dileep-u-k/mcp-gateway/internal/tools"
)

// scriptedCall is one canned model response for the fake client.
type scriptedCall struct {
	content   string
	toolCalls []*tools.ToolCall
	err       error
}

// capturedRequest records what the dispatcher sent to the model.
type capturedRequest struct {
	messages []llm.Message
	config   *llm.GenerationConfig
	tools    []tools.Tool
}

// fakeLLM plays back scripted responses and records every request.
type fakeLLM struct {
	mu       sync.Mutex
	script   []scriptedCall
	requests []capturedRequest
}

func (f *fakeLLM) Generate(_ context.Context, messages []llm.Message, config *llm.GenerationConfig, availableTools []tools.Tool) (*llm.GenerationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, capturedRequest{
		messages: messages,
		config:   config,
		tools:    availableTools,
	})
	if len(f.script) == 0 {
		return &llm.GenerationResult{Content: "unscripted answer"}, nil
	}
	next := f.script[0]
	f.script = f.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &llm.GenerationResult{
		Content:   next.content,
		ToolCalls: next.toolCalls,
		Usage:     api.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	}, nil
}

func (f *fakeLLM) captured() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedRequest(nil), f.requests...)
}

var _ llm.LLMClient = (*fakeLLM)(nil)

// fakeConn is an in-process provider session.
type fakeConn struct {
	defs    []tools.Tool
	results map[string]string
	errs    map[string]error
	calls   []string
	closed  bool
}

func (c *fakeConn) ListTools(_ context.Context) ([]tools.Tool, error) {
	return c.defs, nil
}

func (c *fakeConn) CallTool(_ context.Context, name, _ string) (string, error) {
	c.calls = append(c.calls, name)
	if err, ok := c.errs[name]; ok {
		return "", err
	}
	if result, ok := c.results[name]; ok {
		return result, nil
	}
	return "", fmt.Errorf("no such tool %q", name)
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

var _ mcp.Conn = (*fakeConn)(nil)

func newTestRouter(t *testing.T, client llm.LLMClient) *Router {
	t.Helper()
	r, err := New(Options{
		Client:           client,
		CandidateTimeout: 5 * time.Second,
		RouteTimeout:     10 * time.Second,
	})
	require.NoError(t, err)
	return r
}

// installProvider registers a provider and wires a fake session directly
// into the registry, skipping the dial.
func installProvider(t *testing.T, r *Router, spec ProviderSpec, conn *fakeConn) {
	t.Helper()
	require.NoError(t, r.Register(spec))
	require.NoError(t, r.reg.markConnected(spec.Name, conn, conn.defs))
}

func weatherSpec() ProviderSpec {
	return ProviderSpec{
		Name:         "weather",
		Description:  "Weather conditions and forecasts",
		Kind:         mcp.KindHTTP,
		URL:          "http://localhost:9301/mcp",
		Capabilities: []string{"weather", "forecast", "temperature"},
	}
}

func weatherConn() *fakeConn {
	return &fakeConn{
		defs: []tools.Tool{
			tools.NewFunctionTool("get_forecast", "Get the current weather and forecast for a city", tools.JSONSchema{
				Type: "object",
				Properties: map[string]*tools.JSONSchema{
					"city": {Type: "string", Description: "City name"},
				},
				Required: []string{"city"},
			}),
		},
		results: map[string]string{"get_forecast": "Sunny, 24 degrees"},
	}
}

func newsSpec() ProviderSpec {
	return ProviderSpec{
		Name:         "news",
		Description:  "Headlines and articles",
		Kind:         mcp.KindHTTP,
		URL:          "http://localhost:9302/mcp",
		Capabilities: []string{"news", "headline", "article"},
	}
}

func newsConn() *fakeConn {
	return &fakeConn{
		defs: []tools.Tool{
			tools.NewFunctionTool("top_headlines", "Fetch the top news headlines", tools.JSONSchema{Type: "object"}),
		},
		results: map[string]string{"top_headlines": "Markets rally"},
	}
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestRegisterValidatesSpec(t *testing.T) {
	r := newTestRouter(t, &fakeLLM{})

	require.Error(t, r.Register(ProviderSpec{Kind: mcp.KindHTTP, URL: "http://x"}), "name is required")
	require.Error(t, r.Register(ProviderSpec{Name: "bad name", Kind: mcp.KindHTTP, URL: "http://x"}))
	require.Error(t, r.Register(ProviderSpec{Name: "a", Kind: mcp.KindStdio}), "stdio needs a command")
	require.Error(t, r.Register(ProviderSpec{Name: "a", Kind: mcp.KindHTTP}), "http needs a url")
	require.Error(t, r.Register(ProviderSpec{Name: "a", Kind: "carrier-pigeon"}))
	require.Error(t, r.Register(ProviderSpec{Name: "a", Kind: mcp.KindHTTP, URL: "http://x", Priority: -1}),
		"negative priority is rejected")
	require.Error(t, r.Register(ProviderSpec{Name: "a", Kind: mcp.KindBuiltin}),
		"builtin needs a tool manager on the router")

	require.NoError(t, r.Register(weatherSpec()))
	status, ok := r.ProviderStatus("weather")
	require.True(t, ok)
	assert.Equal(t, StatusDisconnected, status)
}

func TestRegisterDefaultsPriority(t *testing.T) {
	r := newTestRouter(t, &fakeLLM{})
	require.NoError(t, r.Register(weatherSpec()))

	report := r.Status()
	assert.InDelta(t, 1.0, report.Providers["weather"].Priority, 1e-9)
}

func TestRegisterReplacesProviderAndClosesSession(t *testing.T) {
	r := newTestRouter(t, &fakeLLM{})
	conn := weatherConn()
	installProvider(t, r, weatherSpec(), conn)

	// Re-registering the same name drops the old session and resets state.
	respec := weatherSpec()
	respec.Priority = 2.5
	require.NoError(t, r.Register(respec))

	assert.True(t, conn.closed)
	status, _ := r.ProviderStatus("weather")
	assert.Equal(t, StatusDisconnected, status)
	assert.Empty(t, r.ListOperations())
}

func TestConnectUnknownProvider(t *testing.T) {
	r := newTestRouter(t, &fakeLLM{})
	err := r.Connect(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestConnectBuiltinProviderDiscoversOperations(t *testing.T) {
	manager := tools.NewToolManager()
	manager.Register(tools.NewCalculatorTool())
	manager.Register(tools.NewClockTool())

	r, err := New(Options{Client: &fakeLLM{}, BuiltinTools: manager})
	require.NoError(t, err)
	require.NoError(t, r.Register(ProviderSpec{
		Name:         "local",
		Description:  "Local utility tools",
		Kind:         mcp.KindBuiltin,
		Capabilities: []string{"calculate", "time"},
	}))

	require.NoError(t, r.Connect(context.Background(), "local"))

	status, _ := r.ProviderStatus("local")
	assert.Equal(t, StatusConnected, status)

	ops := r.ListOperations()
	require.Len(t, ops, 2)
	assert.Equal(t, "local_calculate", ops[0].Name)
	assert.Equal(t, "local_current_time", ops[1].Name)
	assert.Equal(t, "calculate", ops[0].RawName)
	assert.Contains(t, ops[0].Description, "[LOCAL]")
	assert.Equal(t, "local", ops[0].Provider)

	// Connect is idempotent: a second call replaces the session and keeps
	// the same operations.
	require.NoError(t, r.Connect(context.Background(), "local"))
	assert.Len(t, r.ListOperations(), 2)
}

func TestConnectFailureIsTerminalUntilReconnect(t *testing.T) {
	r := newTestRouter(t, &fakeLLM{})
	require.NoError(t, r.Register(ProviderSpec{
		Name:         "broken",
		Kind:         mcp.KindStdio,
		Command:      "/nonexistent/mcp-test-server",
		Capabilities: []string{"broken"},
	}))

	err := r.Connect(context.Background(), "broken")
	require.Error(t, err)

	status, _ := r.ProviderStatus("broken")
	assert.Equal(t, StatusError, status)
	report := r.Status()
	assert.NotEmpty(t, report.Providers["broken"].LastError)
	assert.Zero(t, report.ConnectedProviders)

	// The provider stays in the error state; only an explicit reconnect
	// attempt touches it again, and with the same bad command it fails the
	// same way.
	require.Error(t, r.Reconnect(context.Background(), "broken"))
	status, _ = r.ProviderStatus("broken")
	assert.Equal(t, StatusError, status)
}

func TestConnectAllCountsOnlySuccesses(t *testing.T) {
	manager := tools.NewToolManager()
	manager.Register(tools.NewCalculatorTool())

	r, err := New(Options{Client: &fakeLLM{}, BuiltinTools: manager})
	require.NoError(t, err)
	require.NoError(t, r.Register(ProviderSpec{
		Name:         "local",
		Kind:         mcp.KindBuiltin,
		Capabilities: []string{"calculate"},
	}))
	require.NoError(t, r.Register(ProviderSpec{
		Name:         "broken",
		Kind:         mcp.KindStdio,
		Command:      "/nonexistent/mcp-test-server",
		Capabilities: []string{"broken"},
	}))

	connected := r.ConnectAll(context.Background())

	assert.Equal(t, 1, connected)
	report := r.Status()
	assert.Equal(t, 2, report.TotalProviders)
	assert.Equal(t, 1, report.ConnectedProviders)
	assert.Equal(t, StatusConnected, report.Providers["local"].Status)
	assert.Equal(t, StatusError, report.Providers["broken"].Status)
}

func TestStatusReportShape(t *testing.T) {
	r := newTestRouter(t, &fakeLLM{})
	installProvider(t, r, weatherSpec(), weatherConn())
	require.NoError(t, r.Register(newsSpec()))

	report := r.Status()

	assert.Equal(t, 2, report.TotalProviders)
	assert.Equal(t, 1, report.ConnectedProviders)
	assert.Equal(t, 1, report.TotalOperations)

	weather := report.Providers["weather"]
	assert.Equal(t, StatusConnected, weather.Status)
	assert.Equal(t, []string{"weather_get_forecast"}, weather.Operations)
	assert.Equal(t, "Weather conditions and forecasts", weather.Description)

	news := report.Providers["news"]
	assert.Equal(t, StatusDisconnected, news.Status)
	assert.Empty(t, news.Operations)

	// Repeated reads of an unchanged registry agree.
	assert.Equal(t, report, r.Status())

	// The report is a snapshot; mutating it must not touch the registry.
	weather.Operations[0] = "tampered"
	assert.Equal(t, "weather_get_forecast", r.Status().Providers["weather"].Operations[0])
}

func TestListOperationsOnlyConnectedAndSorted(t *testing.T) {
	r := newTestRouter(t, &fakeLLM{})
	installProvider(t, r, newsSpec(), newsConn())
	installProvider(t, r, weatherSpec(), weatherConn())
	require.NoError(t, r.Register(ProviderSpec{
		Name:         "stocks",
		Kind:         mcp.KindHTTP,
		URL:          "http://localhost:9303/mcp",
		Capabilities: []string{"stocks"},
	}))

	ops := r.ListOperations()

	require.Len(t, ops, 2)
	assert.Equal(t, "news_top_headlines", ops[0].Name)
	assert.Equal(t, "weather_get_forecast", ops[1].Name)
}

func TestCloseShutsDownSessions(t *testing.T) {
	r := newTestRouter(t, &fakeLLM{})
	weather := weatherConn()
	news := newsConn()
	installProvider(t, r, weatherSpec(), weather)
	installProvider(t, r, newsSpec(), news)

	require.NoError(t, r.Close())

	assert.True(t, weather.closed)
	assert.True(t, news.closed)
	report := r.Status()
	assert.Zero(t, report.ConnectedProviders)
	assert.Empty(t, r.ListOperations())
}
