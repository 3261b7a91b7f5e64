package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pricewise-ai/pricewise/internal/database"
	mw "github.com/pricewise-ai/pricewise/internal/middleware"
	inats "github.com/pricewise-ai/pricewise/internal/nats"
)

// HandlerSet carries the route handlers, injected from main.go so this
// package never imports the feature packages.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// Merchant profile handlers
	Me            http.HandlerFunc
	UpdateProfile http.HandlerFunc

	// Pricing run handlers
	StartRun  http.HandlerFunc
	GetRun    http.HandlerFunc
	CancelRun http.HandlerFunc

	// Recommendation handlers
	ListRecommendations http.HandlerFunc

	// Memory handlers
	ListMemories http.HandlerFunc

	// Decision handlers
	ListDecisions http.HandlerFunc
	RecordOutcome http.HandlerFunc

	// Governance handlers
	GetUserQuota  http.HandlerFunc
	ListAuditLogs http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, redisClient *redis.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID, mw.SecurityHeaders, mw.Logging, mw.Recovery, mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness: always 200, no dependency checks.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	ready := readiness(pool, natsClient, redisClient)
	r.Get("/health/ready", ready)
	r.Get("/health", ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth routes, rate limited when a limiter is configured.
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			// Merchant profile
			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", h.Me)
				r.Patch("/", h.UpdateProfile)
			})

			// Pricing pipeline runs
			r.Route("/pricing/runs", func(r chi.Router) {
				r.Post("/", h.StartRun)
				r.Get("/{taskID}", h.GetRun)
				r.Delete("/{taskID}", h.CancelRun)
			})

			// Recommendations produced by completed runs
			r.Get("/recommendations", h.ListRecommendations)

			// Agent memory log
			r.Get("/memories", h.ListMemories)

			// Pricing decisions and their observed outcomes
			r.Route("/decisions", func(r chi.Router) {
				r.Get("/", h.ListDecisions)
				r.Post("/{decisionID}/outcome", h.RecordOutcome)
			})

			// Governance routes
			r.Route("/governance", func(r chi.Router) {
				r.Get("/quota", h.GetUserQuota)
				r.Get("/audit", h.ListAuditLogs)
			})
		})
	})

	return r
}

// readiness reports per-dependency health. Any unhealthy dependency degrades
// the whole probe to 503; dependencies that were never wired report
// "not configured" without degrading it.
func readiness(pool *pgxpool.Pool, natsClient *inats.Client, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := map[string]string{}
		degraded := false
		fail := func(dep string) {
			report[dep] = "unhealthy"
			degraded = true
		}

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			fail("database")
		} else {
			report["database"] = "healthy"
		}

		switch {
		case redisClient == nil:
			report["redis"] = "not configured"
		case redisClient.Ping(r.Context()).Err() != nil:
			fail("redis")
		default:
			report["redis"] = "healthy"
		}

		switch {
		case natsClient == nil:
			report["nats"] = "not configured"
		case !natsClient.Healthy():
			fail("nats")
		default:
			report["nats"] = "healthy"
		}

		status := http.StatusOK
		report["status"] = "healthy"
		if degraded {
			status = http.StatusServiceUnavailable
			report["status"] = "degraded"
		}
		JSON(w, status, report)
	}
}
