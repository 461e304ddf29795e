// In file: cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dileep-u-k/mcp-gateway/internal/cache"
	"github.com/dileep-u-k/mcp-gateway/internal/history"
	"github.com/dileep-u-k/mcp-gateway/internal/llm"
	"github.com/dileep-u-k/mcp-gateway/internal/logger"
	"github.com/dileep-u-k/mcp-gateway/internal/observability"
	"github.com/dileep-u-k/mcp-gateway/internal/router"
	"github.com/dileep-u-k/mcp-gateway/internal/tools"
)

// main is the entry point for the application.
// Its primary role is the "Composition Root": it loads configuration,
// initializes all services, injects dependencies, and starts the server.
func main() {
	// 1. LOAD CONFIGURATION
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ FATAL: Configuration error")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	buildInfo := GetBuildInfo()
	log.Info().
		Str("version", buildInfo.Version).
		Str("commit", buildInfo.GitCommit).
		Msg("🚀 Starting MCP Gateway")

	ctx := context.Background()

	shutdownTracing, err := observability.Setup(ctx, observability.Options{
		Enabled:     cfg.OTELEndpoint != "",
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: "mcp-gateway",
		Environment: cfg.OTELEnvironment,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ FATAL: Could not set up tracing")
	}

	// 2. INITIALIZE SERVICES
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("❌ FATAL: Could not connect to Redis")
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("✅ Redis connected.")
	} else {
		log.Warn().Msg("REDIS_ADDR not set, provider profiling, answer caching and conversation memory are disabled.")
	}
	profiler := router.NewProfiler(rdb)
	answerCache := cache.New(rdb, cfg.CacheTTL)

	var store *history.Store
	if cfg.HistoryDBPath != "" {
		store, err = history.New(cfg.HistoryDBPath)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ FATAL: Could not open history store")
		}
		log.Info().Str("path", cfg.HistoryDBPath).Msg("✅ History store opened.")
	} else {
		log.Warn().Msg("HISTORY_DB_PATH not set, route history is disabled.")
	}

	client, err := llm.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ FATAL: Could not create Gemini client")
	}

	toolManager := initializeToolManager()

	rt, err := router.New(router.Options{
		Client:           client,
		Model:            cfg.GeminiModel,
		BuiltinTools:     toolManager,
		Profiler:         profiler,
		RouteTimeout:     cfg.RouteTimeout,
		CandidateTimeout: cfg.CandidateTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ FATAL: Could not create router")
	}

	for _, spec := range cfg.Providers {
		if err := rt.Register(spec); err != nil {
			log.Fatal().Err(err).Str("provider", spec.Name).Msg("❌ FATAL: Invalid provider definition")
		}
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, 60*time.Second)
	connected := rt.ConnectAll(connectCtx)
	cancelConnect()
	log.Info().
		Int("connected", connected).
		Int("registered", len(cfg.Providers)).
		Msg("✅ All services initialized.")

	gatewayHandler := NewGatewayHandler(rt, answerCache, store, rdb, cfg)

	// 3. START BACKGROUND PROCESSES
	appCtx, cancelApp := context.WithCancel(ctx)
	go rt.RunReconnectLoop(appCtx, cfg.ReconnectInterval)
	go startHistoryJanitor(appCtx, store, cfg.HistoryRetention)

	// 4. SETUP AND RUN THE WEB SERVER
	gin.SetMode(os.Getenv("GIN_MODE"))
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), RequestLogger())

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/route", gatewayHandler.HandleRoute)
		v1.GET("/status", gatewayHandler.HandleStatus)
		v1.GET("/operations", gatewayHandler.HandleOperations)
		v1.POST("/providers/:name/reconnect", gatewayHandler.HandleReconnect)
		v1.GET("/history", gatewayHandler.HandleHistory)
	}
	engine.GET("/healthz", gatewayHandler.HandleHealthz)
	engine.GET("/readyz", gatewayHandler.HandleReadyz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: fmt.Sprintf(":%s", cfg.Port), Handler: engine}
	runServerWithGracefulShutdown(srv, func(shutdownCtx context.Context) {
		cancelApp()
		if err := rt.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing provider sessions")
		}
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing Gemini client")
		}
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing history store")
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Error flushing traces")
		}
	})
}

// initializeToolManager creates and registers the built-in local tools.
func initializeToolManager() *tools.ToolManager {
	manager := tools.NewToolManager()

	manager.Register(tools.NewCalculatorTool())
	manager.Register(tools.NewClockTool())

	log.Info().Int("tools", manager.ToolCount()).Msg("✅ Tool Manager initialized.")
	return manager
}

// startHistoryJanitor runs a background goroutine that trims route history
// past the retention window.
func startHistoryJanitor(ctx context.Context, store *history.Store, retention time.Duration) {
	if store == nil || retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	log.Info().Dur("retention", retention).Msg("🧹 History janitor started.")

	purge := func() {
		purged, err := store.PurgeOlderThan(ctx, retention)
		if err != nil {
			log.Warn().Err(err).Msg("History purge failed")
			return
		}
		if purged > 0 {
			log.Info().Int64("purged", purged).Msg("🧹 Trimmed route history.")
		}
	}

	purge()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}

// runServerWithGracefulShutdown handles the server lifecycle. The cleanup
// callback runs after the listener has drained.
func runServerWithGracefulShutdown(srv *http.Server, cleanup func(context.Context)) {
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("👂 Gateway is listening.")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ Listen error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("❌ Server shutdown failed")
	}
	cleanup(ctx)

	log.Info().Msg("👋 Server exited gracefully.")
}
