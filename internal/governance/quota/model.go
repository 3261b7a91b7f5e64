// Package quota enforces per-user spending limits on the expensive parts of
// the system: pipeline runs per day, completion calls per minute, and
// completion tokens per day. Redis backs the per-minute sliding window;
// Postgres tracks daily usage.
package quota

import (
	"time"

	"github.com/google/uuid"
)

// UserQuota mirrors one user_quotas row.
type UserQuota struct {
	UserID           uuid.UUID `json:"user_id"`
	TokensUsedToday  int       `json:"tokens_used_today"`
	CompletionsToday int       `json:"completions_today"`
	RunsToday        int       `json:"runs_today"`
	LastDailyReset   time.Time `json:"last_daily_reset"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Status is the API response showing current usage against limits.
type Status struct {
	RunsToday              int `json:"runs_today"`
	RunsLimitDay           int `json:"runs_limit_day"`
	TokensUsedToday        int `json:"tokens_used_today"`
	TokensLimitDay         int `json:"tokens_limit_day"`
	CompletionsToday       int `json:"completions_today"`
	CompletionsMinute      int `json:"completions_minute"`
	CompletionsLimitMinute int `json:"completions_limit_minute"`
}

// Violation types recorded when a limit denies a request.
const (
	ViolationRunsPerDay           = "daily_run_limit"
	ViolationTokensPerDay         = "daily_token_limit"
	ViolationCompletionsPerMinute = "completions_per_minute"
)
