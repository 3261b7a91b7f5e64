//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbes(t *testing.T) {
	env := SetupTestEnv(t)

	t.Run("liveness", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/health/live", nil, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		ParseResponse(t, resp)
	})

	t.Run("readiness", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/health/ready", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := ParseResponse(t, resp)["data"].(map[string]any)
		assert.Equal(t, "healthy", data["status"])
		assert.Equal(t, "healthy", data["database"])
		assert.Equal(t, "healthy", data["redis"])
		// The test env runs without NATS
		assert.Equal(t, "not configured", data["nats"])
	})
}

func TestRegister(t *testing.T) {
	env := SetupTestEnv(t)

	t.Run("successful registration returns account and tokens", func(t *testing.T) {
		email := fmt.Sprintf("register-%d@pricewise.test", uniqueID())
		result := RegisterUser(t, env, email, "password123")
		data := result["data"].(map[string]any)

		user := data["user"].(map[string]any)
		assert.Equal(t, email, user["email"])
		assert.Equal(t, "USD", user["currency"])

		tokens := data["tokens"].(map[string]any)
		assert.NotEmpty(t, tokens["access_token"])
		assert.NotEmpty(t, tokens["refresh_token"])
		assert.NotZero(t, tokens["expires_in"])
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		email := fmt.Sprintf("dupe-%d@pricewise.test", uniqueID())
		RegisterUser(t, env, email, "password123")

		body := map[string]string{"email": email, "password": "password123"}
		resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("email is case-insensitive", func(t *testing.T) {
		email := fmt.Sprintf("case-%d@pricewise.test", uniqueID())
		RegisterUser(t, env, email, "password123")

		body := map[string]string{"email": "CASE-" + email[5:], "password": "password123"}
		resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("invalid email rejected", func(t *testing.T) {
		body := map[string]string{"email": "not-an-email", "password": "password123"}
		resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("short password rejected", func(t *testing.T) {
		body := map[string]string{"email": "short@pricewise.test", "password": "short"}
		resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogin(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("login-%d@pricewise.test", uniqueID())
	RegisterUser(t, env, email, "password123")

	t.Run("valid credentials", func(t *testing.T) {
		body := map[string]string{"email": email, "password": "password123"}
		resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := ParseResponse(t, resp)["data"].(map[string]any)
		assert.NotEmpty(t, data["access_token"])
		assert.NotEmpty(t, data["refresh_token"])
	})

	t.Run("wrong password", func(t *testing.T) {
		body := map[string]string{"email": email, "password": "wrongpass"}
		resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown user", func(t *testing.T) {
		body := map[string]string{"email": "nobody@pricewise.test", "password": "password123"}
		resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRefreshToken(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("refresh-%d@pricewise.test", uniqueID())
	result := RegisterUser(t, env, email, "password123")
	tokens := result["data"].(map[string]any)["tokens"].(map[string]any)
	refreshToken := tokens["refresh_token"].(string)

	t.Run("refresh rotates the token pair", func(t *testing.T) {
		body := map[string]string{"refresh_token": refreshToken}
		resp := DoRequest(t, env, "POST", "/api/v1/auth/refresh", body, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := ParseResponse(t, resp)["data"].(map[string]any)
		assert.NotEmpty(t, data["access_token"])
		assert.NotEmpty(t, data["refresh_token"])
		assert.NotEqual(t, refreshToken, data["refresh_token"])
	})

	t.Run("rotated token cannot be reused", func(t *testing.T) {
		body := map[string]string{"refresh_token": refreshToken}
		resp := DoRequest(t, env, "POST", "/api/v1/auth/refresh", body, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		body := map[string]string{"refresh_token": "invalid-token"}
		resp := DoRequest(t, env, "POST", "/api/v1/auth/refresh", body, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestLogout(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("logout-%d@pricewise.test", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")

	t.Run("logout succeeds with a valid token", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/auth/logout", nil, token)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("logout requires authentication", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/auth/logout", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestProfile(t *testing.T) {
	env := SetupTestEnv(t)

	email := fmt.Sprintf("profile-%d@pricewise.test", uniqueID())
	RegisterUser(t, env, email, "password123")
	token := LoginUser(t, env, email, "password123")

	t.Run("me returns the account", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/users/me", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := ParseResponse(t, resp)["data"].(map[string]any)
		assert.Equal(t, email, data["email"])
		assert.Nil(t, data["password_hash"], "hash must never be serialized")
	})

	t.Run("profile update round-trips", func(t *testing.T) {
		body := map[string]string{"business_name": "Corner Coffee", "currency": "eur"}
		resp := DoRequest(t, env, "PATCH", "/api/v1/users/me", body, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := ParseResponse(t, resp)["data"].(map[string]any)
		assert.Equal(t, "Corner Coffee", data["business_name"])
		assert.Equal(t, "EUR", data["currency"])
	})

	t.Run("bogus currency rejected", func(t *testing.T) {
		body := map[string]string{"currency": "coins"}
		resp := DoRequest(t, env, "PATCH", "/api/v1/users/me", body, token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("requires authentication", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/users/me", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
