//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pricewise-ai/pricewise/internal/api"
	"github.com/pricewise-ai/pricewise/internal/auth"
	"github.com/pricewise-ai/pricewise/internal/catalog"
	"github.com/pricewise-ai/pricewise/internal/config"
	"github.com/pricewise-ai/pricewise/internal/database"
	"github.com/pricewise-ai/pricewise/internal/governance"
	"github.com/pricewise-ai/pricewise/internal/governance/audit"
	"github.com/pricewise-ai/pricewise/internal/governance/quota"
	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/orchestrator"
	"github.com/pricewise-ai/pricewise/internal/recommendations"
	"github.com/pricewise-ai/pricewise/internal/sales"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
	"github.com/pricewise-ai/pricewise/internal/users"
)

// TestRunsPerDay is the daily run allowance wired into the test env, kept
// low so the quota path is reachable in a test.
const TestRunsPerDay = 5

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	AuthSvc     *auth.Service
	UserSvc     *users.Service
}

var sharedEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if sharedEnv != nil {
		return sharedEnv
	}

	ctx := context.Background()
	dsn := StartPostgres(t, ctx)
	redisAddr := StartRedis(t, ctx)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "connecting to postgres")
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, database.RunMigrations(dsn), "applying schema")

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	t.Cleanup(func() { redisClient.Close() })

	// Auth
	userSvc := users.NewService(users.NewRepository(pool))
	tokenManager := auth.NewManager("test-access-secret-32-chars-long!!", "test-refresh-secret-32-chars-long!!", 15*time.Minute, 7*24*time.Hour)
	authSvc := auth.NewService(tokenManager, redisClient, userSvc)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Governance
	govCfg := config.GovernanceConfig{
		MaxCompletionsPerMinute: 30,
		MaxTokensPerDay:         50000,
		MaxRunsPerDay:           TestRunsPerDay,
	}
	quotaSvc := quota.NewService(quota.NewRepository(pool), quota.NewRateLimiter(redisClient), govCfg)
	auditRepo := audit.NewRepository(pool)
	governanceHandler := governance.NewHandler(quotaSvc, auditRepo)

	// Agent memory
	memoryStore := memory.NewStore(memory.NewRepository(pool), discardLogger())
	memoryHandler := memory.NewHandler(memoryStore)

	// Pipeline. No LLM and no NATS: runs exercise the degraded path, which
	// is also the deterministic one.
	recRepo := recommendations.NewRepository(pool)
	orch := orchestrator.New(orchestrator.Dependencies{
		Catalog:         catalog.NewRepository(pool),
		Sales:           sales.NewRepository(pool),
		Memory:          memoryStore,
		Snapshots:       snapshots.NewRepository(pool),
		Recommendations: recRepo,
		Quota:           quotaSvc,
		Pipeline: config.PipelineConfig{
			SalesLookbackDays:    90,
			MemoryLookbackDays:   30,
			SnapshotLookbackDays: 30,
			BaselineDays:         30,
			PhaseTimeout:         30 * time.Second,
		},
	})
	runHandler := orchestrator.NewHandler(orch)
	recHandler := recommendations.NewHandler(recRepo)

	router := api.NewRouter(pool, nil, redisClient, api.RouterConfig{}, api.HandlerSet{
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

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	sharedEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		AuthSvc:     authSvc,
		UserSvc:     userSvc,
	}

	return sharedEnv
}

// StartPostgres runs a disposable pgvector container and returns a DSN for
// it. The container is removed when the test finishes.
func StartPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:0.8.1-pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "pricewise_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "starting postgres container")
	t.Cleanup(func() { pg.Terminate(ctx) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test:test@%s:%s/pricewise_test?sslmode=disable", host, port.Port())
}

// StartRedis runs a disposable Redis container and returns its address.
func StartRedis(t *testing.T, ctx context.Context) string {
	t.Helper()

	rc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "starting redis container")
	t.Cleanup(func() { rc.Terminate(ctx) })

	host, err := rc.Host(ctx)
	require.NoError(t, err)
	port, err := rc.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func RegisterUser(t *testing.T, env *TestEnv, email, password string) map[string]any {
	t.Helper()
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, "registering %s", email)
	return ParseResponse(t, resp)
}

// LoginUser authenticates and returns a bearer access token.
func LoginUser(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	resp := DoRequest(t, env, "POST", "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "logging in %s", email)

	data := ParseResponse(t, resp)["data"].(map[string]any)
	return data["access_token"].(string)
}

// UserIDByEmail resolves the stored user id for seeding fixtures.
func UserIDByEmail(t *testing.T, env *TestEnv, email string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := env.Pool.QueryRow(context.Background(),
		`SELECT id FROM users WHERE email = $1`, email).Scan(&id)
	require.NoError(t, err, "looking up user %s", email)
	return id
}

// SeedSalesHistory gives the user a small cafe catalog with 45 days of
// steady orders and one fresh competitor observation that is well below our
// price, so a run on this data completes with at least one above-market
// recommendation and no anomalies.
func SeedSalesHistory(t *testing.T, env *TestEnv, userID uuid.UUID) (itemIDs []int64) {
	t.Helper()
	ctx := context.Background()

	type seedItem struct {
		name     string
		price    float64
		cost     float64
		quantity int
	}
	seeds := []seedItem{
		{name: "Flat White", price: 4.40, cost: 1.20, quantity: 12},
		{name: "Croissant", price: 3.80, cost: 1.10, quantity: 10},
	}

	for _, s := range seeds {
		var id int64
		err := env.Pool.QueryRow(ctx,
			`INSERT INTO items (user_id, name, category, current_price, cost)
			 VALUES ($1, $2, 'coffee', $3, $4) RETURNING id`,
			userID, s.name, s.price, s.cost).Scan(&id)
		require.NoError(t, err, "seeding item %s", s.name)
		itemIDs = append(itemIDs, id)
	}

	now := time.Now().UTC()
	for day := 45; day >= 1; day-- {
		orderDate := now.AddDate(0, 0, -day).Truncate(24 * time.Hour).Add(12 * time.Hour)
		var total float64
		for _, s := range seeds {
			total += float64(s.quantity) * s.price
		}

		var orderID int64
		err := env.Pool.QueryRow(ctx,
			`INSERT INTO orders (user_id, order_date, total) VALUES ($1, $2, $3) RETURNING id`,
			userID, orderDate, total).Scan(&orderID)
		require.NoError(t, err, "seeding order for day -%d", day)

		for i, s := range seeds {
			_, err := env.Pool.Exec(ctx,
				`INSERT INTO order_items (order_id, item_id, quantity, unit_price)
				 VALUES ($1, $2, $3, $4)`,
				orderID, itemIDs[i], s.quantity, s.price)
			require.NoError(t, err, "seeding order items for day -%d", day)
		}
	}

	_, err := env.Pool.Exec(ctx,
		`INSERT INTO competitor_items (user_id, competitor, item_name, price, category, observed_at)
		 VALUES ($1, 'Corner Cafe', 'Flat White', 3.55, 'coffee', $2)`,
		userID, now.AddDate(0, 0, -2))
	require.NoError(t, err, "seeding competitor observation")

	return itemIDs
}

// StartRun kicks off a pricing run and returns its task id.
func StartRun(t *testing.T, env *TestEnv, token string) string {
	t.Helper()
	resp := DoRequest(t, env, "POST", "/api/v1/pricing/runs", nil, token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "starting run")
	data := ParseResponse(t, resp)["data"].(map[string]any)
	return data["task_id"].(string)
}

// WaitRunDone polls the run status endpoint until the run leaves the
// running state and returns the final status document.
func WaitRunDone(t *testing.T, env *TestEnv, token, taskID string) map[string]any {
	t.Helper()
	var last map[string]any
	require.Eventually(t, func() bool {
		resp := DoRequest(t, env, "GET", "/api/v1/pricing/runs/"+taskID, nil, token)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false
		}
		last = ParseResponse(t, resp)["data"].(map[string]any)
		return last["state"] != "running"
	}, 60*time.Second, 100*time.Millisecond, "run %s never finished", taskID)
	return last
}

// DoRequest sends a JSON request to the test server. A non-empty token is
// attached as a bearer credential. Callers own the response body.
func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err, "encoding request body")
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, payload)
	require.NoError(t, err, "building request")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.Server.Client().Do(req)
	require.NoError(t, err, "%s %s", method, path)
	return resp
}

// ParseResponse decodes and closes a JSON response body.
func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result), "decoding response body")
	return result
}

var uniqueCounter atomic.Int64

// uniqueID hands out process-unique suffixes for email fixtures.
func uniqueID() int64 {
	return uniqueCounter.Add(1)
}
