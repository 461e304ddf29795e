// In file: internal/router/dispatcher.go
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dileep-u-k/mcp-gateway/internal/api"
	"github.com/dileep-u-k/mcp-gateway/internal/llm"
	"github.com/dileep-u-k/mcp-gateway/internal/metrics"
	"github.com/dileep-u-k/mcp-gateway/internal/observability"
	"github.com/dileep-u-k/mcp-gateway/internal/tools"
)

// dispatchState enumerates the routing state machine. Every route walks
// these states until it reaches success or the direct fallback.
type dispatchState int

const (
	stateNoCandidate dispatchState = iota
	stateTryingCandidate
	stateNextCandidate
	stateSuccess
	stateAllExhausted
	stateDirectFallback
)

func (s dispatchState) String() string {
	switch s {
	case stateNoCandidate:
		return "no_candidate"
	case stateTryingCandidate:
		return "trying_candidate"
	case stateNextCandidate:
		return "next_candidate"
	case stateSuccess:
		return "success"
	case stateAllExhausted:
		return "all_exhausted"
	case stateDirectFallback:
		return "direct_fallback"
	default:
		return "unknown"
	}
}

const (
	// declineToken is the sentinel a candidate model emits when the
	// provider's operations cannot satisfy the query. The dispatcher parses
	// it once per attempt and turns it into a structured outcome.
	declineToken = "UNABLE_TO_HANDLE"

	// fallbackApology is the last-resort answer when even the direct model
	// call fails. Route never returns empty text.
	fallbackApology = "I'm sorry, but I couldn't process that request right now. Please try again in a moment."

	// maxOperationRounds bounds how many operation-call turns one candidate
	// attempt may take before it is treated as a decline.
	maxOperationRounds = 3

	toolCallTemperature float32 = 0.1
	directTemperature   float32 = 0.7
)

// Attempt outcome reasons, used for logs and metrics labels.
const (
	reasonHandled        = "handled"
	reasonDeclined       = "declined"
	reasonModelError     = "model_error"
	reasonNoAnswer       = "no_answer"
	reasonMissingSession = "missing_session"
)

// attemptOutcome is the structured result of one candidate attempt. The
// decline sentinel never leaks past this type.
type attemptOutcome struct {
	handled   bool
	text      string
	operation string
	reason    string
	usage     api.Usage
}

// dispatcher walks ranked candidates for a query, restricting the model to
// one provider's operations at a time, and falls back to a direct answer
// when every candidate declines or fails.
type dispatcher struct {
	client           llm.LLMClient
	model            string
	candidateTimeout time.Duration
}

func newDispatcher(client llm.LLMClient, model string, candidateTimeout time.Duration) *dispatcher {
	return &dispatcher{
		client:           client,
		model:            model,
		candidateTimeout: candidateTimeout,
	}
}

// dispatch runs the state machine over the ranked candidates. It always
// returns a result with non-empty text.
func (d *dispatcher) dispatch(ctx context.Context, query, queryContext string, ranked []Candidate, views map[string]candidateView) RouteResult {
	ctx, span := observability.StartSpan(ctx, "gateway.dispatch")
	defer span.End()

	result := RouteResult{Source: SourceFallback}
	state := stateNoCandidate
	if len(ranked) > 0 {
		state = stateTryingCandidate
	}
	idx := 0

	for {
		log.Trace().Str("state", state.String()).Int("candidate", idx).Msg("Dispatch transition")
		switch state {
		case stateNoCandidate:
			log.Debug().Str("query", query).Msg("No candidate providers, answering directly")
			state = stateDirectFallback

		case stateTryingCandidate:
			candidate := ranked[idx]
			view, ok := views[candidate.Provider]
			if !ok {
				metrics.RecordAttempt(candidate.Provider, reasonMissingSession)
				state = stateNextCandidate
				continue
			}
			result.Attempts++
			outcome := d.tryCandidate(ctx, view, query, queryContext)
			result.Usage.Add(outcome.usage)
			metrics.RecordAttempt(view.name, outcome.reason)
			if outcome.handled {
				result.Text = outcome.text
				result.Provider = view.name
				result.Operation = outcome.operation
				result.Source = SourceProvider
				state = stateSuccess
				continue
			}
			log.Info().
				Str("provider", view.name).
				Str("reason", outcome.reason).
				Float64("confidence", candidate.Confidence).
				Msg("Candidate did not handle the query")
			state = stateNextCandidate

		case stateNextCandidate:
			idx++
			if idx >= len(ranked) || ctx.Err() != nil {
				state = stateAllExhausted
			} else {
				state = stateTryingCandidate
			}

		case stateSuccess:
			observability.AddSpanAttributes(ctx,
				attribute.String(observability.AttrProvider, result.Provider),
				attribute.String(observability.AttrSource, string(result.Source)),
				attribute.Int(observability.AttrAttempts, result.Attempts),
			)
			return result

		case stateAllExhausted:
			log.Info().Int("attempts", result.Attempts).Msg("All candidate providers declined or failed")
			state = stateDirectFallback

		case stateDirectFallback:
			text, usage := d.directAnswer(ctx, query, queryContext)
			result.Text = text
			result.Usage.Add(usage)
			result.Source = SourceFallback
			result.Provider = ""
			result.Operation = ""
			observability.AddSpanAttributes(ctx,
				attribute.String(observability.AttrSource, string(result.Source)),
				attribute.Int(observability.AttrAttempts, result.Attempts),
			)
			return result
		}
	}
}

// tryCandidate gives the model one provider's operations and asks it to
// either answer or decline. Operation errors are fed back as tool results so
// the model can recover or give up on its own.
func (d *dispatcher) tryCandidate(parent context.Context, view candidateView, query, queryContext string) attemptOutcome {
	ctx, cancel := context.WithTimeout(parent, d.candidateTimeout)
	defer cancel()
	ctx, span := observability.StartSpan(ctx, "gateway.candidate",
		trace.WithAttributes(
			attribute.String(observability.AttrProvider, view.name),
			attribute.String(observability.AttrModel, d.model),
		))
	defer span.End()

	outcome := attemptOutcome{reason: reasonDeclined}
	defs := operationTools(view.operations)
	temperature := toolCallTemperature
	cfg := &llm.GenerationConfig{Model: d.model, Temperature: &temperature}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: candidateInstruction(view)},
		{Role: llm.RoleUser, Content: userPrompt(query, queryContext)},
	}

	for round := 0; round < maxOperationRounds; round++ {
		resp, err := d.client.Generate(ctx, messages, cfg, defs)
		if err != nil {
			log.Warn().Err(err).Str("provider", view.name).Msg("Model call failed during candidate attempt")
			observability.RecordError(ctx, err)
			outcome.reason = reasonModelError
			return outcome
		}
		outcome.usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			text := strings.TrimSpace(resp.Content)
			switch {
			case text == "":
				outcome.reason = reasonNoAnswer
			case isDecline(text):
				log.Info().Str("provider", view.name).Msg("Provider declined the query")
				observability.AddSpanEvent(ctx, "provider.declined")
				outcome.reason = reasonDeclined
			default:
				outcome.handled = true
				outcome.text = text
				outcome.reason = reasonHandled
			}
			return outcome
		}

		// Record the model turn, execute every requested operation, and feed
		// the results back so the model can produce its final answer.
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			resultText, opName := d.executeOperation(ctx, view, call)
			if opName != "" {
				outcome.operation = opName
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				ToolName:   call.Function.Name,
				Content:    resultText,
			})
		}
	}

	// The model kept requesting operations without ever answering.
	outcome.reason = reasonNoAnswer
	return outcome
}

// executeOperation runs one requested operation against the provider's
// session. Failures come back as error text for the model, never as a Go
// error, so a bad call does not abort the attempt by itself.
func (d *dispatcher) executeOperation(ctx context.Context, view candidateView, call *tools.ToolCall) (string, string) {
	started := time.Now()
	op, ok := view.operation(call.Function.Name)
	if !ok {
		metrics.RecordOperationCall(view.name, call.Function.Name, "unknown", time.Since(started).Seconds())
		return fmt.Sprintf("Error: operation %q is not available.", call.Function.Name), ""
	}

	log.Info().
		Str("provider", view.name).
		Str("operation", op.Name).
		Msg("Executing provider operation")
	opCtx, opSpan := observability.StartSpan(ctx, "gateway.operation",
		trace.WithAttributes(
			attribute.String(observability.AttrProvider, view.name),
			attribute.String(observability.AttrOperation, op.Name),
		))
	defer opSpan.End()

	resultText, err := view.conn.CallTool(opCtx, op.RawName, call.Function.Arguments)
	if err != nil {
		log.Warn().Err(err).Str("operation", op.Name).Msg("Operation execution failed")
		observability.RecordError(opCtx, err)
		metrics.RecordOperationCall(view.name, op.Name, "error", time.Since(started).Seconds())
		return fmt.Sprintf("Error executing %s: %v", op.Name, err), op.Name
	}
	metrics.RecordOperationCall(view.name, op.Name, "success", time.Since(started).Seconds())
	return resultText, op.Name
}

// directAnswer is the no-tools fallback generation.
func (d *dispatcher) directAnswer(ctx context.Context, query, queryContext string) (string, api.Usage) {
	ctx, span := observability.StartSpan(ctx, "gateway.fallback",
		trace.WithAttributes(attribute.String(observability.AttrModel, d.model)))
	defer span.End()

	temperature := directTemperature
	cfg := &llm.GenerationConfig{Model: d.model, Temperature: &temperature}
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: userPrompt(query, queryContext)},
	}
	resp, err := d.client.Generate(ctx, messages, cfg, nil)
	if err != nil {
		log.Error().Err(err).Msg("Direct model answer failed")
		observability.RecordError(ctx, err)
		return fallbackApology, api.Usage{}
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return fallbackApology, resp.Usage
	}
	return text, resp.Usage
}

// candidateInstruction builds the system prompt that restricts the model to
// one provider's operations and defines the decline sentinel.
func candidateInstruction(view candidateView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You answer user requests using only the tools of the %q provider", view.name)
	if view.description != "" {
		fmt.Fprintf(&b, " (%s)", view.description)
	}
	b.WriteString(". If one of these tools can satisfy the request, call it and then write a clear final answer based on its result. ")
	fmt.Fprintf(&b, "If none of these tools can satisfy the request, reply with exactly %s and no other text.", declineToken)
	return b.String()
}

// userPrompt merges optional caller-supplied context with the query.
func userPrompt(query, queryContext string) string {
	if strings.TrimSpace(queryContext) == "" {
		return query
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", queryContext, query)
}

// isDecline reports whether a model answer is the decline sentinel.
func isDecline(text string) bool {
	return strings.Contains(strings.ToUpper(text), declineToken)
}

// operationTools converts operations into the model-facing tool definitions.
func operationTools(ops []Operation) []tools.Tool {
	defs := make([]tools.Tool, 0, len(ops))
	for _, op := range ops {
		defs = append(defs, tools.NewFunctionTool(op.Name, op.Description, op.Parameters))
	}
	return defs
}
