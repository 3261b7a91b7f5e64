package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validate checks Config for problems that would break the service at
// runtime. All failures are reported at once as a joined error.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	port := func(name string, p int) {
		if p < 1 || p > 65535 {
			fail("%s must be 1–65535, got %d", name, p)
		}
	}

	if len(c.JWT.AccessSecret) < 32 {
		fail("JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		fail("JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		fail("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if c.DB.Password == "" {
		fail("DB_PASSWORD is required")
	}

	port("SERVER_PORT", c.Server.Port)
	port("DB_PORT", c.DB.Port)
	port("REDIS_PORT", c.Redis.Port)

	if c.Pipeline.SalesLookbackDays < 30 {
		fail("PIPELINE_SALES_LOOKBACK_DAYS must be at least 30, got %d", c.Pipeline.SalesLookbackDays)
	}
	if c.Pipeline.BaselineDays < 7 {
		fail("PIPELINE_BASELINE_DAYS must be at least 7, got %d", c.Pipeline.BaselineDays)
	}
	if c.Pipeline.PhaseTimeout <= 0 {
		fail("PIPELINE_PHASE_TIMEOUT must be positive")
	}

	if c.Governance.MaxCompletionsPerMinute < 1 {
		fail("GOVERNANCE_MAX_COMPLETIONS_PER_MINUTE must be at least 1")
	}
	if c.Governance.MaxRunsPerDay < 1 {
		fail("GOVERNANCE_MAX_RUNS_PER_DAY must be at least 1")
	}

	// A missing OpenAI key is not fatal: stages fall back to heuristic
	// narratives without it.
	if c.OpenAI.APIKey == "" {
		slog.Warn("OPENAI_API_KEY is empty, stages will use fallback narratives")
	}

	return errors.Join(errs...)
}
