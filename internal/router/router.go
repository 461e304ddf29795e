// In file: internal/router/router.go

// Package router implements the gateway's routing pipeline: a provider
// registry, a keyword intent scorer, and a dispatcher that tries ranked
// candidate providers before falling back to a direct model answer. All
// state lives on the Router instance, so independent routers never share
// providers or sessions.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dileep-u-k/mcp-gateway/internal/llm"
	"github.com/dileep-u-k/mcp-gateway/internal/mcp"
	"github.com/dileep-u-k/mcp-gateway/internal/metrics"
	"github.com/dileep-u-k/mcp-gateway/internal/observability"
	"github.com/dileep-u-k/mcp-gateway/internal/tools"
	"github.com/dileep-u-k/mcp-gateway/internal/version"
)

const (
	// DefaultRouteTimeout bounds one whole Route call, candidates plus
	// fallback included.
	DefaultRouteTimeout = 2 * time.Minute

	// DefaultCandidateTimeout bounds a single candidate attempt so one slow
	// provider cannot eat the whole route budget.
	DefaultCandidateTimeout = 30 * time.Second
)

// Options configures a Router. Client is the only required field.
type Options struct {
	// Client generates model answers and operation calls.
	Client llm.LLMClient

	// Model overrides the default model ID.
	Model string

	// Dialer establishes provider sessions. A default stdio/http dialer is
	// created when nil.
	Dialer *mcp.Dialer

	// BuiltinTools backs providers registered with the builtin transport.
	BuiltinTools *tools.ToolManager

	// Profiler records per-provider reliability in Redis. Nil disables it.
	Profiler *Profiler

	RouteTimeout     time.Duration
	CandidateTimeout time.Duration
}

// Router routes natural-language queries to the best connected tool
// provider. It is safe for concurrent use.
type Router struct {
	reg          *registry
	dispatcher   *dispatcher
	dialer       *mcp.Dialer
	builtin      *tools.ToolManager
	profiler     *Profiler
	routeTimeout time.Duration
}

// New builds a Router from options.
func New(opts Options) (*Router, error) {
	if opts.Client == nil {
		return nil, errors.New("router: llm client is required")
	}
	model := opts.Model
	if model == "" {
		model = llm.DefaultModel
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = mcp.NewDialer("mcp-gateway", version.App, 0)
	}
	routeTimeout := opts.RouteTimeout
	if routeTimeout <= 0 {
		routeTimeout = DefaultRouteTimeout
	}
	candidateTimeout := opts.CandidateTimeout
	if candidateTimeout <= 0 {
		candidateTimeout = DefaultCandidateTimeout
	}

	return &Router{
		reg:          newRegistry(),
		dispatcher:   newDispatcher(opts.Client, model, candidateTimeout),
		dialer:       dialer,
		builtin:      opts.BuiltinTools,
		profiler:     opts.Profiler,
		routeTimeout: routeTimeout,
	}, nil
}

// Register adds a provider to the registry without connecting it.
// Registering an existing name replaces the previous registration.
func (r *Router) Register(spec ProviderSpec) error {
	normalized, err := spec.normalized()
	if err != nil {
		return fmt.Errorf("register provider: %w", err)
	}
	if normalized.Kind == mcp.KindBuiltin && r.builtin == nil {
		return fmt.Errorf("register provider %s: no builtin tool manager configured", normalized.Name)
	}
	r.reg.upsert(normalized)
	metrics.SetProviderUp(normalized.Name, false)
	log.Info().
		Str("provider", normalized.Name).
		Str("kind", string(normalized.Kind)).
		Float64("priority", normalized.Priority).
		Msg("Registered provider")
	return nil
}

// Connect dials a registered provider and discovers its operations. It is
// idempotent: connecting an already-connected provider replaces its session.
// On failure the provider lands in the error state and stays there until the
// next Connect or Reconnect call.
func (r *Router) Connect(ctx context.Context, name string) error {
	spec, ok := r.reg.spec(name)
	if !ok {
		return fmt.Errorf("connect %s: %w", name, ErrUnknownProvider)
	}
	if err := r.reg.markConnecting(name); err != nil {
		return fmt.Errorf("connect %s: %w", name, err)
	}

	conn, err := r.dialer.Dial(ctx, spec.endpoint(r.builtin))
	if err != nil {
		r.failConnect(ctx, name, err)
		return fmt.Errorf("connect %s: %w", name, err)
	}

	discovered, err := conn.ListTools(ctx)
	if err != nil {
		conn.Close()
		r.failConnect(ctx, name, err)
		return fmt.Errorf("connect %s: discover operations: %w", name, err)
	}

	if err := r.reg.markConnected(name, conn, discovered); err != nil {
		conn.Close()
		return fmt.Errorf("connect %s: %w", name, err)
	}
	metrics.SetProviderUp(name, true)
	metrics.RecordConnect(name, true)
	r.profiler.RecordConnect(ctx, name, true)
	log.Info().
		Str("provider", name).
		Int("operations", len(discovered)).
		Msg("Provider connected")
	return nil
}

func (r *Router) failConnect(ctx context.Context, name string, err error) {
	r.reg.markError(name, err)
	metrics.SetProviderUp(name, false)
	metrics.RecordConnect(name, false)
	r.profiler.RecordConnect(ctx, name, false)
	log.Error().Err(err).Str("provider", name).Msg("Provider connection failed")
}

// Reconnect re-dials a provider regardless of its current state. This is the
// only way out of the error state.
func (r *Router) Reconnect(ctx context.Context, name string) error {
	return r.Connect(ctx, name)
}

// ConnectAll dials every registered provider concurrently and returns how
// many reached the connected state. Individual failures are recorded on the
// provider and do not abort the fan-out.
func (r *Router) ConnectAll(ctx context.Context) int {
	names := r.reg.names()
	var wg sync.WaitGroup
	var connected int64
	for _, name := range names {
		wg.Add(1)
		go func(provider string) {
			defer wg.Done()
			if err := r.Connect(ctx, provider); err == nil {
				atomic.AddInt64(&connected, 1)
			}
		}(name)
	}
	wg.Wait()
	log.Info().
		Int("connected", int(connected)).
		Int("registered", len(names)).
		Msg("Provider fan-out complete")
	return int(connected)
}

// Route answers a query. It never returns an error and never returns empty
// text: provider failures degrade to the next candidate and finally to a
// direct model answer.
func (r *Router) Route(ctx context.Context, query, queryContext string) (result RouteResult) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.routeTimeout)
	defer cancel()
	ctx, span := observability.StartSpan(ctx, "gateway.route")
	defer span.End()
	observability.AddSpanAttributes(ctx,
		attribute.Int(observability.AttrQueryLen, len(query)))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Route recovered from panic")
			result.Text = fallbackApology
			result.Source = SourceFallback
			result.Provider = ""
			result.Operation = ""
		}
		status := "ok"
		if result.Text == fallbackApology {
			status = "apology"
		}
		metrics.RecordRoute(string(result.Source), status, time.Since(started).Seconds())
		metrics.RecordTokens(result.Usage.PromptTokens, result.Usage.CompletionTokens)
	}()

	views := r.reg.connectedViews()
	ranked := scoreProviders(query, views)
	logRanking(ranked)

	viewIndex := make(map[string]candidateView, len(views))
	for _, view := range views {
		viewIndex[view.name] = view
	}

	result = r.dispatcher.dispatch(ctx, query, queryContext, ranked, viewIndex)
	r.recordProfiles(ctx, ranked, result, time.Since(started))
	return result
}

// recordProfiles derives per-provider outcomes from the dispatch result. The
// first attempts-1 candidates failed when a provider handled the query; all
// attempted candidates failed when the route fell back.
func (r *Router) recordProfiles(ctx context.Context, ranked []Candidate, result RouteResult, latency time.Duration) {
	if !r.profiler.enabled() {
		return
	}
	failed := result.Attempts
	if result.Source == SourceProvider {
		failed = result.Attempts - 1
	}
	for i := 0; i < failed && i < len(ranked); i++ {
		r.profiler.RecordFailure(ctx, ranked[i].Provider)
	}
	if result.Source == SourceProvider {
		r.profiler.RecordSuccess(ctx, result.Provider, latency, result.Usage)
	}
}

// Status reports the registry snapshot.
func (r *Router) Status() StatusReport {
	return r.reg.report()
}

// ProviderStatus reports one provider's connection state.
func (r *Router) ProviderStatus(name string) (ProviderStatus, bool) {
	return r.reg.status(name)
}

// ListOperations lists every operation currently available for routing.
func (r *Router) ListOperations() []Operation {
	return r.reg.operations()
}

// Providers lists registered provider names.
func (r *Router) Providers() []string {
	return r.reg.names()
}

// Profiler exposes the configured profiler, which may be nil.
func (r *Router) Profiler() *Profiler {
	return r.profiler
}

// Close shuts down every provider session.
func (r *Router) Close() error {
	return r.reg.closeAll()
}

// RunReconnectLoop periodically re-dials providers stuck in the error state.
// It blocks until ctx is cancelled. Interval <= 0 disables the loop.
func (r *Router) RunReconnectLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range r.reg.erroredNames() {
				if err := r.Connect(ctx, name); err != nil {
					log.Warn().Err(err).Str("provider", name).Msg("Automatic reconnect failed")
				}
			}
		}
	}
}

func logRanking(ranked []Candidate) {
	if len(ranked) == 0 {
		log.Debug().Msg("No candidate providers matched the query")
		return
	}
	parts := make([]string, len(ranked))
	for i, c := range ranked {
		parts[i] = fmt.Sprintf("%s=%.2f", c.Provider, c.Confidence)
	}
	log.Info().Str("ranking", strings.Join(parts, " ")).Msg("Scored candidate providers")
}
