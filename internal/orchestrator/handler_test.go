package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise-ai/pricewise/internal/auth"
)

func runRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/pricing/runs", h.StartRun)
	r.Get("/pricing/runs/{taskID}", h.GetRun)
	r.Delete("/pricing/runs/{taskID}", h.CancelRun)
	return r
}

func doAs(t *testing.T, router chi.Router, userID uuid.UUID, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if userID != uuid.Nil {
		claims := &auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		}
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_StartAndPollRun(t *testing.T) {
	env := newOrchEnv(t)
	router := runRouter(NewHandler(env.orch))
	userID := uuid.New()

	rec := doAs(t, router, userID, http.MethodPost, "/pricing/runs")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.TaskID)
	assert.Equal(t, StateRunning, started.State)

	waitTerminal(t, env.orch, started.TaskID)

	rec = doAs(t, router, userID, http.MethodGet, "/pricing/runs/"+started.TaskID)
	require.Equal(t, http.StatusOK, rec.Code)

	var polled TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &polled))
	assert.Equal(t, StateCompleted, polled.State)
	require.NotNil(t, polled.Result)
	assert.NotEmpty(t, polled.Result.Recommendations)
}

func TestHandler_StartIsIdempotentInFlight(t *testing.T) {
	env := newOrchEnv(t)
	env.catalog.gate = make(chan struct{})
	defer close(env.catalog.gate)

	router := runRouter(NewHandler(env.orch))
	userID := uuid.New()

	first := doAs(t, router, userID, http.MethodPost, "/pricing/runs")
	require.Equal(t, http.StatusAccepted, first.Code)
	second := doAs(t, router, userID, http.MethodPost, "/pricing/runs")
	require.Equal(t, http.StatusAccepted, second.Code)

	var a, b TaskStatus
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.TaskID, b.TaskID)
}

func TestHandler_GetRunHidesOtherUsers(t *testing.T) {
	env := newOrchEnv(t)
	router := runRouter(NewHandler(env.orch))
	owner := uuid.New()

	rec := doAs(t, router, owner, http.MethodPost, "/pricing/runs")
	var started TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	waitTerminal(t, env.orch, started.TaskID)

	rec = doAs(t, router, uuid.New(), http.MethodGet, "/pricing/runs/"+started.TaskID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_GetUnknownRun(t *testing.T) {
	env := newOrchEnv(t)
	router := runRouter(NewHandler(env.orch))

	rec := doAs(t, router, uuid.New(), http.MethodGet, "/pricing/runs/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_RequiresAuth(t *testing.T) {
	env := newOrchEnv(t)
	router := runRouter(NewHandler(env.orch))

	rec := doAs(t, router, uuid.Nil, http.MethodPost, "/pricing/runs")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_CancelRun(t *testing.T) {
	env := newOrchEnv(t)
	env.catalog.gate = make(chan struct{})
	router := runRouter(NewHandler(env.orch))
	userID := uuid.New()

	rec := doAs(t, router, userID, http.MethodPost, "/pricing/runs")
	var started TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	rec = doAs(t, router, userID, http.MethodDelete, "/pricing/runs/"+started.TaskID)
	require.Equal(t, http.StatusAccepted, rec.Code)

	final := waitTerminal(t, env.orch, started.TaskID)
	assert.Equal(t, StateError, final.State)
	assert.Equal(t, "run cancelled", final.Message)

	// Cancelling a finished run conflicts.
	rec = doAs(t, router, userID, http.MethodDelete, "/pricing/runs/"+started.TaskID)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
