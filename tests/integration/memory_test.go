//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemories_ListingAndFilters(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("memlist-%d@pricewise.test", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")
	SeedSalesHistory(t, env, UserIDByEmail(t, env, email))

	taskID := StartRun(t, env, token)
	WaitRunDone(t, env, token, taskID)

	t.Run("lists memories from the run", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/memories", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		records := ParseResponse(t, resp)["data"].([]any)
		require.NotEmpty(t, records)

		first := records[0].(map[string]any)
		assert.NotEmpty(t, first["agent_name"])
		assert.NotEmpty(t, first["memory_type"])
		assert.NotNil(t, first["content"])
	})

	t.Run("filter by memory type", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/memories?types=observation", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		records := ParseResponse(t, resp)["data"].([]any)
		for _, raw := range records {
			assert.Equal(t, "observation", raw.(map[string]any)["memory_type"])
		}
	})

	t.Run("unknown memory type is rejected", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/memories?types=daydream", nil, token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("limit caps the page", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/memories?limit=1", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		records := ParseResponse(t, resp)["data"].([]any)
		assert.Len(t, records, 1)
	})
}

func TestDecisionOutcome_Lifecycle(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("decision-%d@pricewise.test", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")
	SeedSalesHistory(t, env, UserIDByEmail(t, env, email))

	taskID := StartRun(t, env, token)
	WaitRunDone(t, env, token, taskID)

	resp := DoRequest(t, env, "GET", "/api/v1/decisions", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decisions := ParseResponse(t, resp)["data"].([]any)
	require.NotEmpty(t, decisions, "a completed run should record a strategy decision")

	decision := decisions[0].(map[string]any)
	assert.Equal(t, "pricing_strategy", decision["decision_type"])
	assert.NotEmpty(t, decision["rationale"])
	assert.Nil(t, decision["success_rating"], "new decision should not be evaluated yet")
	decisionID := decision["id"].(string)

	outcome := map[string]any{
		"outcome_metrics": map[string]any{"margin_delta_pct": 2.1},
		"success_rating":  4,
	}

	t.Run("records the outcome", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/decisions/"+decisionID+"/outcome", outcome, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "outcome recorded", ParseResponse(t, resp)["message"])

		resp = DoRequest(t, env, "GET", "/api/v1/decisions", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		updated := ParseResponse(t, resp)["data"].([]any)[0].(map[string]any)
		assert.Equal(t, float64(4), updated["success_rating"])
		assert.NotEmpty(t, updated["evaluated_at"])
	})

	t.Run("second evaluation conflicts", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/decisions/"+decisionID+"/outcome", outcome, token)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("unknown decision", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/decisions/"+uuid.NewString()+"/outcome", outcome, token)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("malformed decision id", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/decisions/not-a-uuid/outcome", outcome, token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rating outside the scale is rejected", func(t *testing.T) {
		bad := map[string]any{
			"outcome_metrics": map[string]any{"margin_delta_pct": 2.1},
			"success_rating":  6,
		}
		resp := DoRequest(t, env, "POST", "/api/v1/decisions/"+decisionID+"/outcome", bad, token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestMemoryEndpoints_RequireAuth(t *testing.T) {
	env := SetupTestEnv(t)

	for _, path := range []string{"/api/v1/memories", "/api/v1/decisions"} {
		resp := DoRequest(t, env, "GET", path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp := DoRequest(t, env, "POST", "/api/v1/decisions/"+uuid.NewString()+"/outcome", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
