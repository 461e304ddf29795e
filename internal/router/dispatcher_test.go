// In file: internal/router/dispatcher_test.go
package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dileep-u-k/mcp-gateway/internal/llm"
	"github.com/dileep-u-k/mcp-gateway/internal/tools"
)

func forecastCall(name string) *tools.ToolCall {
	return &tools.ToolCall{
		ID:   "call-1",
		Type: tools.ToolTypeFunction,
		Function: tools.ToolCallFunction{
			Name:      name,
			Arguments: `{"city":"Paris"}`,
		},
	}
}

func TestRouteNoCandidatesAnswersDirectly(t *testing.T) {
	client := &fakeLLM{script: []scriptedCall{{content: "Direct answer."}}}
	r := newTestRouter(t, client)

	result := r.Route(context.Background(), "hello there", "")

	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, "Direct answer.", result.Text)
	assert.Zero(t, result.Attempts)
	assert.Empty(t, result.Provider)

	reqs := client.captured()
	require.Len(t, reqs, 1)
	assert.Nil(t, reqs[0].tools, "the direct fallback must not see any tools")
	require.NotNil(t, reqs[0].config.Temperature)
	assert.InDelta(t, 0.7, float64(*reqs[0].config.Temperature), 1e-6)
}

func TestRouteProviderHandlesQuery(t *testing.T) {
	conn := weatherConn()
	client := &fakeLLM{script: []scriptedCall{
		{toolCalls: []*tools.ToolCall{forecastCall("weather_get_forecast")}},
		{content: "It is sunny and 24 degrees in Paris."},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, weatherSpec(), conn)

	result := r.Route(context.Background(), "what is the weather forecast in paris", "")

	assert.Equal(t, SourceProvider, result.Source)
	assert.Equal(t, "weather", result.Provider)
	assert.Equal(t, "weather_get_forecast", result.Operation)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "It is sunny and 24 degrees in Paris.", result.Text)
	assert.Equal(t, []string{"get_forecast"}, conn.calls,
		"the wire call must use the provider-local operation name")

	reqs := client.captured()
	require.Len(t, reqs, 2)

	// The candidate attempt is restricted to this provider's operations and
	// runs at the deterministic tool temperature.
	require.Len(t, reqs[0].tools, 1)
	assert.Equal(t, "weather_get_forecast", reqs[0].tools[0].Function.Name)
	require.NotNil(t, reqs[0].config.Temperature)
	assert.InDelta(t, 0.1, float64(*reqs[0].config.Temperature), 1e-6)
	require.NotEmpty(t, reqs[0].messages)
	assert.Equal(t, llm.RoleSystem, reqs[0].messages[0].Role)
	assert.Contains(t, reqs[0].messages[0].Content, `"weather"`)
	assert.Contains(t, reqs[0].messages[0].Content, declineToken)

	// The second model turn carries the operation result back.
	last := reqs[1].messages[len(reqs[1].messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "weather_get_forecast", last.ToolName)
	assert.Equal(t, "Sunny, 24 degrees", last.Content)

	// Usage from both model turns accumulates on the result.
	assert.Equal(t, 6, result.Usage.PromptTokens)
	assert.Equal(t, 10, result.Usage.CompletionTokens)
}

func TestRouteDeclineAdvancesToNextCandidate(t *testing.T) {
	nConn := newsConn()
	wConn := weatherConn()
	client := &fakeLLM{script: []scriptedCall{
		{content: declineToken},
		{toolCalls: []*tools.ToolCall{forecastCall("weather_get_forecast")}},
		{content: "Sunny skies in Paris today."},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, newsSpec(), nConn)
	installProvider(t, r, weatherSpec(), wConn)

	// Both providers tie at the same confidence; news ranks first by name.
	result := r.Route(context.Background(), "any weather news today", "")

	assert.Equal(t, SourceProvider, result.Source)
	assert.Equal(t, "weather", result.Provider)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "Sunny skies in Paris today.", result.Text)
	assert.NotContains(t, result.Text, declineToken)
	assert.Empty(t, nConn.calls)
	assert.Equal(t, []string{"get_forecast"}, wConn.calls)

	reqs := client.captured()
	require.Len(t, reqs, 3)
	// Each attempt offered only its own provider's operations.
	require.Len(t, reqs[0].tools, 1)
	assert.Equal(t, "news_top_headlines", reqs[0].tools[0].Function.Name)
	require.Len(t, reqs[1].tools, 1)
	assert.Equal(t, "weather_get_forecast", reqs[1].tools[0].Function.Name)
}

func TestRouteIgnoresDisconnectedProviders(t *testing.T) {
	client := &fakeLLM{script: []scriptedCall{
		{toolCalls: []*tools.ToolCall{forecastCall("weather_get_forecast")}},
		{content: "Clear skies, no rain expected."},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, weatherSpec(), weatherConn())
	// news matches the query too, but it never connected.
	require.NoError(t, r.Register(newsSpec()))

	result := r.Route(context.Background(), "any weather news today", "")

	// On a tie news would rank first by name, so reaching weather in a
	// single attempt proves the disconnected provider was never a candidate.
	assert.Equal(t, SourceProvider, result.Source)
	assert.Equal(t, "weather", result.Provider)
	assert.Equal(t, 1, result.Attempts)

	reqs := client.captured()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].tools, 1)
	assert.Equal(t, "weather_get_forecast", reqs[0].tools[0].Function.Name)
}

func TestRouteModelErrorAdvances(t *testing.T) {
	client := &fakeLLM{script: []scriptedCall{
		{err: errors.New("rate limited")},
		{content: "Paris will stay dry all afternoon."},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, newsSpec(), newsConn())
	installProvider(t, r, weatherSpec(), weatherConn())

	result := r.Route(context.Background(), "any weather news today", "")

	assert.Equal(t, SourceProvider, result.Source)
	assert.Equal(t, "weather", result.Provider)
	assert.Equal(t, 2, result.Attempts)
	assert.Empty(t, result.Operation, "no operation ran for a direct text answer")
}

func TestRouteAllDeclinedFallsBack(t *testing.T) {
	client := &fakeLLM{script: []scriptedCall{
		{content: declineToken},
		{content: declineToken},
		{content: "General knowledge answer."},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, newsSpec(), newsConn())
	installProvider(t, r, weatherSpec(), weatherConn())

	result := r.Route(context.Background(), "any weather news today", "")

	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "General knowledge answer.", result.Text)
	assert.NotContains(t, result.Text, declineToken)
	assert.Empty(t, result.Provider)

	reqs := client.captured()
	require.Len(t, reqs, 3)
	assert.Nil(t, reqs[2].tools)
	assert.InDelta(t, 0.7, float64(*reqs[2].config.Temperature), 1e-6)
}

func TestRouteOperationErrorFedBackToModel(t *testing.T) {
	conn := weatherConn()
	conn.errs = map[string]error{"get_forecast": errors.New("upstream 500")}
	client := &fakeLLM{script: []scriptedCall{
		{toolCalls: []*tools.ToolCall{forecastCall("weather_get_forecast")}},
		{content: "The weather service is unavailable right now."},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, weatherSpec(), conn)

	result := r.Route(context.Background(), "what is the weather forecast in paris", "")

	// The failed call went back to the model as error text; the model still
	// produced an answer, so the attempt counts as handled.
	assert.Equal(t, SourceProvider, result.Source)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "The weather service is unavailable right now.", result.Text)

	reqs := client.captured()
	require.Len(t, reqs, 2)
	last := reqs[1].messages[len(reqs[1].messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Contains(t, last.Content, "Error executing weather_get_forecast")
	assert.Contains(t, last.Content, "upstream 500")
}

func TestRouteUnknownOperationFedBackToModel(t *testing.T) {
	conn := weatherConn()
	client := &fakeLLM{script: []scriptedCall{
		{toolCalls: []*tools.ToolCall{forecastCall("weather_no_such_op")}},
		{content: "I could not find that information."},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, weatherSpec(), conn)

	result := r.Route(context.Background(), "what is the weather forecast in paris", "")

	assert.Equal(t, SourceProvider, result.Source)
	assert.Empty(t, result.Operation)
	assert.Empty(t, conn.calls, "an unknown operation never reaches the session")

	reqs := client.captured()
	require.Len(t, reqs, 2)
	last := reqs[1].messages[len(reqs[1].messages)-1]
	assert.Contains(t, last.Content, `operation "weather_no_such_op" is not available`)
}

func TestRouteEmptyModelAnswerTreatedAsDecline(t *testing.T) {
	client := &fakeLLM{script: []scriptedCall{
		{content: "   "},
		{content: "Backup answer."},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, weatherSpec(), weatherConn())

	result := r.Route(context.Background(), "what is the weather forecast in paris", "")

	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "Backup answer.", result.Text)
}

func TestRouteNeverReturnsEmptyText(t *testing.T) {
	client := &fakeLLM{script: []scriptedCall{
		{err: errors.New("model down")},
		{err: errors.New("model down")},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, weatherSpec(), weatherConn())

	result := r.Route(context.Background(), "what is the weather forecast in paris", "")

	assert.Equal(t, SourceFallback, result.Source)
	assert.NotEmpty(t, result.Text)
	assert.Equal(t, fallbackApology, result.Text)
}

func TestRouteEmptyQueryFallsBack(t *testing.T) {
	client := &fakeLLM{script: []scriptedCall{{content: "Please tell me what you need."}}}
	r := newTestRouter(t, client)
	installProvider(t, r, weatherSpec(), weatherConn())

	result := r.Route(context.Background(), "", "")

	assert.Equal(t, SourceFallback, result.Source)
	assert.Zero(t, result.Attempts)
	assert.Equal(t, "Please tell me what you need.", result.Text)
}

func TestRouteMaxOperationRoundsBoundsAttempt(t *testing.T) {
	conn := weatherConn()
	client := &fakeLLM{script: []scriptedCall{
		{toolCalls: []*tools.ToolCall{forecastCall("weather_get_forecast")}},
		{toolCalls: []*tools.ToolCall{forecastCall("weather_get_forecast")}},
		{toolCalls: []*tools.ToolCall{forecastCall("weather_get_forecast")}},
		{content: "Loop-free answer."},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, weatherSpec(), conn)

	// The model keeps requesting operations without answering; the attempt
	// is cut off after maxOperationRounds and the route falls back.
	result := r.Route(context.Background(), "what is the weather forecast in paris", "")

	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "Loop-free answer.", result.Text)
	assert.Len(t, conn.calls, maxOperationRounds)
}

func TestRouteCancelledContextSkipsRemainingCandidates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeLLM{script: []scriptedCall{
		{content: declineToken},
		{content: "Partial degradation answer."},
	}}
	r := newTestRouter(t, client)
	installProvider(t, r, newsSpec(), newsConn())
	installProvider(t, r, weatherSpec(), weatherConn())

	result := r.Route(ctx, "any weather news today", "")

	assert.Equal(t, 1, result.Attempts, "remaining candidates are skipped once the context is done")
	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, "Partial degradation answer.", result.Text)
}

func TestRouteContextIncludedInPrompt(t *testing.T) {
	client := &fakeLLM{script: []scriptedCall{{content: "Answer with context."}}}
	r := newTestRouter(t, client)

	r.Route(context.Background(), "summarize the report", "User prefers short answers")

	reqs := client.captured()
	require.Len(t, reqs, 1)
	prompt := reqs[0].messages[0].Content
	assert.Contains(t, prompt, "Context:\nUser prefers short answers")
	assert.Contains(t, prompt, "Question: summarize the report")
}

func TestDispatchStateStrings(t *testing.T) {
	assert.Equal(t, "no_candidate", stateNoCandidate.String())
	assert.Equal(t, "trying_candidate", stateTryingCandidate.String())
	assert.Equal(t, "next_candidate", stateNextCandidate.String())
	assert.Equal(t, "success", stateSuccess.String())
	assert.Equal(t, "all_exhausted", stateAllExhausted.String())
	assert.Equal(t, "direct_fallback", stateDirectFallback.String())
}
