package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/pricewise-ai/pricewise/internal/api"
	"github.com/pricewise-ai/pricewise/internal/auth"
	"github.com/pricewise-ai/pricewise/internal/catalog"
	"github.com/pricewise-ai/pricewise/internal/config"
	"github.com/pricewise-ai/pricewise/internal/database"
	"github.com/pricewise-ai/pricewise/internal/governance"
	"github.com/pricewise-ai/pricewise/internal/governance/audit"
	"github.com/pricewise-ai/pricewise/internal/governance/quota"
	"github.com/pricewise-ai/pricewise/internal/llm"
	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/middleware"
	inats "github.com/pricewise-ai/pricewise/internal/nats"
	"github.com/pricewise-ai/pricewise/internal/orchestrator"
	"github.com/pricewise-ai/pricewise/internal/recommendations"
	iredis "github.com/pricewise-ai/pricewise/internal/redis"
	"github.com/pricewise-ai/pricewise/internal/sales"
	"github.com/pricewise-ai/pricewise/internal/server"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
	"github.com/pricewise-ai/pricewise/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("loading config", err)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		fatal("validating config", err)
	}

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		fatal("connecting to postgres", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN()); err != nil {
		fatal("running migrations", err)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		fatal("connecting to redis", err)
	}
	defer redisClient.Close()

	// NATS JetStream. Optional: without it runs still work, but lifecycle
	// events are not published and audit logs are not collected.
	var natsClient *inats.Client
	var publisher *inats.Publisher
	if cfg.NATS.Enabled {
		natsClient, err = inats.Connect(ctx, cfg.NATS)
		if err != nil {
			fatal("connecting to nats", err)
		}
		publisher = inats.NewPublisher(natsClient.JetStream())
	} else {
		slog.Warn("nats disabled, run events will not be published")
	}

	// Auth
	userSvc := users.NewService(users.NewRepository(pool))
	tokenManager := auth.NewManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(tokenManager, redisClient, userSvc)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Completion provider. A nil client degrades narratives and strategy
	// reasoning to the built-in fallbacks.
	llmClient := llm.New(cfg.OpenAI, slog.Default())
	if llmClient == nil {
		slog.Warn("openai api key not set, running without completion provider")
	}

	// Agent memory
	memoryStore := memory.NewStore(memory.NewRepository(pool), slog.Default())
	memoryHandler := memory.NewHandler(memoryStore)

	// Governance
	quotaSvc := quota.NewService(quota.NewRepository(pool), quota.NewRateLimiter(redisClient), cfg.Governance)
	auditRepo := audit.NewRepository(pool)
	governanceHandler := governance.NewHandler(quotaSvc, auditRepo)

	// Audit consumer drains pipeline events into postgres. Runs only with
	// NATS; stopped through its own context during shutdown.
	auditCtx, stopAudit := context.WithCancel(ctx)
	defer stopAudit()
	auditDone := make(chan struct{})
	if natsClient != nil {
		consumer := audit.NewConsumer(auditRepo, natsClient.JetStream())
		go func() {
			defer close(auditDone)
			if err := consumer.Run(auditCtx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	} else {
		close(auditDone)
	}

	// Pricing pipeline
	recRepo := recommendations.NewRepository(pool)
	orch := orchestrator.New(orchestrator.Dependencies{
		Catalog:         catalog.NewRepository(pool),
		Sales:           sales.NewRepository(pool),
		Memory:          memoryStore,
		Snapshots:       snapshots.NewRepository(pool),
		Recommendations: recRepo,
		Quota:           quotaSvc,
		LLM:             llmClient,
		Publisher:       publisher,
		Pipeline:        cfg.Pipeline,
	})
	runHandler := orchestrator.NewHandler(orch)
	recHandler := recommendations.NewHandler(recRepo)

	// Router
	authLimiter := middleware.NewRateLimiter(redisClient, middleware.RateLimitConfig{
		Scope:  "auth",
		Limit:  cfg.Governance.AuthRateLimitPerMinute,
		Window: time.Minute,
	})
	router := api.NewRouter(pool, natsClient, redisClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		Me:            authHandler.Me,
		UpdateProfile: authHandler.UpdateProfile,

		StartRun:  runHandler.StartRun,
		GetRun:    runHandler.GetRun,
		CancelRun: runHandler.CancelRun,

		ListRecommendations: recHandler.ListRecommendations,

		ListMemories:  memoryHandler.ListMemories,
		ListDecisions: memoryHandler.ListDecisions,
		RecordOutcome: memoryHandler.RecordOutcome,

		GetUserQuota:  governanceHandler.GetQuota,
		ListAuditLogs: governanceHandler.ListAuditLogs,

		AuthMiddleware: auth.Middleware(authSvc),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	srv.OnShutdown("pipeline", orch.Shutdown)
	srv.OnShutdown("audit consumer", func(ctx context.Context) error {
		stopAudit()
		select {
		case <-auditDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if natsClient != nil {
		srv.OnShutdown("nats", func(context.Context) error {
			natsClient.Close()
			return nil
		})
	}
	if err := srv.Start(); err != nil {
		fatal("server error", err)
	}
}

// setupLogger replaces the default slog logger. Unknown levels fall back
// to info rather than erroring out before logging is up.
func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
