// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/audit"
	"github.com/capitalize-ai/field-ops-assistant/internal/config"
	"github.com/capitalize-ai/field-ops-assistant/internal/dedup"
	"github.com/capitalize-ai/field-ops-assistant/internal/handler"
	"github.com/capitalize-ai/field-ops-assistant/internal/llm"
	"github.com/capitalize-ai/field-ops-assistant/internal/middleware"
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	natsclient "github.com/capitalize-ai/field-ops-assistant/internal/nats"
	"github.com/capitalize-ai/field-ops-assistant/internal/requirements"
	"github.com/capitalize-ai/field-ops-assistant/internal/resolver"
	"github.com/capitalize-ai/field-ops-assistant/internal/service"
	"github.com/capitalize-ai/field-ops-assistant/internal/state"
	"github.com/capitalize-ai/field-ops-assistant/internal/store"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
	"github.com/capitalize-ai/field-ops-assistant/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("Starting field ops assistant")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "field-ops-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Domain tables
	engine, err := loadRequirements(cfg.RequirementsFile)
	if err != nil {
		log.Fatal("Failed to load requirement tables", zap.Error(err))
	}
	aliases, err := loadAliases(cfg.AliasesFile)
	if err != nil {
		log.Fatal("Failed to load aliases", zap.Error(err))
	}

	// Record store
	records, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("Failed to open record store", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	defer records.Close()

	// Conversation state and deduplication
	var (
		states    state.Store
		dedupper  dedup.Deduplicator
		memDedup  *dedup.Memory
		readiness = map[string]handler.Pinger{"store": records}
	)
	switch cfg.StateBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		states = state.NewRedisStore(rdb, cfg.StateTTL)
		dedupper = dedup.NewRedis(rdb, cfg.DedupTTL, log)
		readiness["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	default:
		states = state.NewMemoryStore(cfg.StateTTL, time.Now)
		memDedup = dedup.NewMemory(cfg.DedupTTL)
		dedupper = memDedup
	}

	// Intent parser
	provider, apiKey := llm.ProviderAnthropic, cfg.AnthropicAPIKey
	if cfg.DefaultLLM == string(llm.ProviderOpenAI) || apiKey == "" {
		provider, apiKey = llm.ProviderOpenAI, cfg.OpenAIAPIKey
	}
	if apiKey == "" {
		log.Fatal("No LLM API key configured")
	}
	llmClient, err := llm.NewClient(provider, apiKey, cfg.LLMModel)
	if err != nil {
		log.Fatal("Failed to create LLM client", zap.String("provider", string(provider)), zap.Error(err))
	}
	language := model.ParseLanguage(cfg.DefaultLanguage, model.LangTR)
	parser, err := llm.NewParser(llmClient, engine, log, llm.WithDefaultLanguage(language))
	if err != nil {
		log.Fatal("Failed to create parser", zap.Error(err))
	}

	// Audit fan-out
	sinks := []audit.Named{{Name: "store", Sink: records}}
	var auditStream *natsclient.AuditStream
	if cfg.AuditStreamEnabled {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		auditStream = natsclient.NewAuditStream(natsClient)
		if err := auditStream.EnsureStream(ctx); err != nil {
			log.Fatal("Failed to ensure audit stream", zap.Error(err))
		}
		sinks = append(sinks, audit.Named{Name: "nats", Sink: auditStream})
		readiness["nats"] = handler.PingFunc(func(context.Context) error {
			if !natsClient.IsConnected() {
				return fmt.Errorf("not connected")
			}
			return nil
		})
	}

	pipeline := service.NewPipeline(service.Deps{
		Dedup:        dedupper,
		States:       states,
		Parser:       parser,
		Directory:    store.NewDirectory(records, store.DefaultDirectoryTTL),
		Resolver:     resolver.New(aliases),
		Requirements: engine,
		Executor:     records,
		Queries:      records,
		Audit:        audit.NewMulti(log, sinks...),
	}, service.Options{
		DefaultLanguage: language,
		StaleAfter:      cfg.StaleAfter(),
	}, log)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runJanitor(janitorCtx, cfg.SweepInterval, states, memDedup, auditStream, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(readiness)
	eventHandler := handler.NewEventHandler(pipeline, log)
	conversationHandler := handler.NewConversationHandler(pipeline, log)
	var auditReader handler.AuditReader
	if auditStream != nil {
		auditReader = auditStream
	}
	auditHandler := handler.NewAuditHandler(auditReader, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeEvents))
			r.Post("/events/message", eventHandler.Message)
			r.Post("/events/action", eventHandler.Action)
			r.Delete("/conversations/{id}/state", conversationHandler.Reset)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeState))
			r.Get("/conversations/{id}/state", conversationHandler.State)
			r.Get("/audit", auditHandler.List)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}

func loadRequirements(path string) (*requirements.Engine, error) {
	if path == "" {
		return requirements.Default()
	}
	return requirements.Load(path)
}

func loadAliases(path string) (map[string][]string, error) {
	if path == "" {
		return resolver.DefaultAliases()
	}
	return resolver.LoadAliases(path)
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.LogDevelopment {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.LogLevel)
}
