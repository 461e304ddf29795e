// In file: cmd/gateway/handler.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dileep-u-k/mcp-gateway/internal/api"
	"github.com/dileep-u-k/mcp-gateway/internal/cache"
	"github.com/dileep-u-k/mcp-gateway/internal/history"
	"github.com/dileep-u-k/mcp-gateway/internal/metrics"
	"github.com/dileep-u-k/mcp-gateway/internal/observability"
	"github.com/dileep-u-k/mcp-gateway/internal/router"
)

// =================================================================================
// Gateway Handler
// =================================================================================
// The HTTP face of the router. Requests flow: bind -> conversation memory ->
// answer cache -> route -> history record -> cache fill -> respond. Redis and
// SQLite are both optional; every path degrades to plain routing when they
// are absent.
// =================================================================================

const (
	transcriptTTL      = 1 * time.Hour
	transcriptMaxLines = 20
)

type GatewayHandler struct {
	router  *router.Router
	cache   *cache.AnswerCache
	history *history.Store
	rdb     *redis.Client
	config  *AppConfig
}

func NewGatewayHandler(rt *router.Router, answerCache *cache.AnswerCache, store *history.Store, rdb *redis.Client, config *AppConfig) *GatewayHandler {
	return &GatewayHandler{
		router:  rt,
		cache:   answerCache,
		history: store,
		rdb:     rdb,
		config:  config,
	}
}

// HandleRoute serves POST /api/v1/route.
func (h *GatewayHandler) HandleRoute(c *gin.Context) {
	startTime := time.Now()
	var req api.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	requestID := c.GetString(ContextKeyRequestID)

	log.Info().
		Str("request_id", requestID).
		Str("conversation", req.ConversationID).
		Str("query", fmt.Sprintf("%.60s", req.Query)).
		Msg("--- New route request ---")

	ctx, span := observability.StartSpan(c.Request.Context(), "gateway.request")
	defer span.End()
	observability.AddSpanAttributes(ctx,
		attribute.String(observability.AttrRequestID, requestID))

	// Answers that depend on caller context or conversation memory are not
	// reusable across requests, so those skip the cache entirely.
	cacheable := h.cache != nil && req.Context == "" && req.ConversationID == ""
	cacheStatus := "BYPASS"
	if cacheable {
		var cached api.RouteResponse
		if h.cache.Get(ctx, req.Query, &cached) {
			metrics.RecordCacheLookup("hit")
			cached.CacheStatus = "HIT"
			cached.RequestID = requestID
			cached.LatencyMS = time.Since(startTime).Milliseconds()
			c.JSON(http.StatusOK, cached)
			return
		}
		metrics.RecordCacheLookup("miss")
		cacheStatus = "MISS"
	} else {
		metrics.RecordCacheLookup("bypass")
	}

	result := h.router.Route(ctx, req.Query, h.composeContext(ctx, &req))
	latency := time.Since(startTime)

	resp := api.RouteResponse{
		Answer:      result.Text,
		Provider:    result.Provider,
		Operation:   result.Operation,
		Source:      string(result.Source),
		Attempts:    result.Attempts,
		CacheStatus: cacheStatus,
		RequestID:   requestID,
		LatencyMS:   latency.Milliseconds(),
	}

	if _, err := h.history.Record(ctx, history.Entry{
		RequestID: requestID,
		Query:     req.Query,
		Answer:    result.Text,
		Provider:  result.Provider,
		Operation: result.Operation,
		Source:    string(result.Source),
		Attempts:  result.Attempts,
		LatencyMS: resp.LatencyMS,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record route history")
	}

	h.appendTranscript(ctx, req.ConversationID, req.Query, result.Text)

	if cacheable {
		h.cache.Set(ctx, req.Query, resp)
	}

	log.Info().
		Str("request_id", requestID).
		Str("trace_id", observability.GetTraceID(ctx)).
		Str("source", resp.Source).
		Str("provider", resp.Provider).
		Int("attempts", resp.Attempts).
		Int64("latency_ms", resp.LatencyMS).
		Msg("✅ Route request completed")

	c.JSON(http.StatusOK, resp)
}

// HandleStatus serves GET /api/v1/status. With ?profiles=true and Redis
// configured, per-provider reliability profiles ride along.
func (h *GatewayHandler) HandleStatus(c *gin.Context) {
	report := h.router.Status()
	profiler := h.router.Profiler()
	if c.Query("profiles") != "true" || profiler == nil {
		c.JSON(http.StatusOK, report)
		return
	}

	profiles := make(map[string]*router.ProviderProfile, len(report.Providers))
	for name := range report.Providers {
		profile, err := profiler.GetProfile(c.Request.Context(), name)
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("Failed to load provider profile")
			continue
		}
		profiles[name] = profile
	}
	c.JSON(http.StatusOK, gin.H{"registry": report, "profiles": profiles})
}

// HandleOperations serves GET /api/v1/operations.
func (h *GatewayHandler) HandleOperations(c *gin.Context) {
	ops := h.router.ListOperations()
	c.JSON(http.StatusOK, gin.H{"count": len(ops), "operations": ops})
}

// HandleReconnect serves POST /api/v1/providers/:name/reconnect. This is the
// manual path out of the error state.
func (h *GatewayHandler) HandleReconnect(c *gin.Context) {
	name := c.Param("name")
	err := h.router.Reconnect(c.Request.Context(), name)

	status, _ := h.router.ProviderStatus(name)
	resp := api.ReconnectResponse{Provider: name, Status: string(status)}
	switch {
	case errors.Is(err, router.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("provider %q is not registered", name)})
	case err != nil:
		resp.Error = err.Error()
		c.JSON(http.StatusBadGateway, resp)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// HandleHistory serves GET /api/v1/history?limit=N&provider=X.
func (h *GatewayHandler) HandleHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store is not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var (
		entries []history.Entry
		err     error
	)
	if provider := c.Query("provider"); provider != "" {
		entries, err = h.history.RecentByProvider(c.Request.Context(), provider, limit)
	} else {
		entries, err = h.history.Recent(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "entries": entries})
}

// HandleHealthz is the liveness probe.
func (h *GatewayHandler) HandleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": GetBuildInfo().Version})
}

// HandleReadyz is the readiness probe: ready once at least one provider is
// connected, or trivially ready when none are configured.
func (h *GatewayHandler) HandleReadyz(c *gin.Context) {
	report := h.router.Status()
	body := gin.H{
		"connected":  report.ConnectedProviders,
		"registered": report.TotalProviders,
	}
	if report.TotalProviders > 0 && report.ConnectedProviders == 0 {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}

// --- CONVERSATION MEMORY HELPERS ---

// composeContext merges the stored conversation transcript with the caller's
// own context block.
func (h *GatewayHandler) composeContext(ctx context.Context, req *api.RouteRequest) string {
	transcript := h.loadTranscript(ctx, req.ConversationID)
	switch {
	case transcript == "":
		return req.Context
	case req.Context == "":
		return transcript
	default:
		return transcript + "\n\n" + req.Context
	}
}

func transcriptKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

func (h *GatewayHandler) loadTranscript(ctx context.Context, conversationID string) string {
	if h.rdb == nil || conversationID == "" {
		return ""
	}
	lines, err := h.rdb.LRange(ctx, transcriptKey(conversationID), 0, -1).Result()
	if err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("Failed to load conversation transcript")
		return ""
	}
	if len(lines) == 0 {
		return ""
	}
	return "Previous conversation:\n" + strings.Join(lines, "\n")
}

func (h *GatewayHandler) appendTranscript(ctx context.Context, conversationID, query, answer string) {
	if h.rdb == nil || conversationID == "" {
		return
	}
	key := transcriptKey(conversationID)
	pipe := h.rdb.TxPipeline()
	pipe.RPush(ctx, key, "user: "+query, "assistant: "+answer)
	pipe.LTrim(ctx, key, -transcriptMaxLines, -1)
	pipe.Expire(ctx, key, transcriptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("Failed to update conversation transcript")
		return
	}
	log.Debug().Str("conversation", conversationID).Msg("📌 Conversation transcript updated.")
}
