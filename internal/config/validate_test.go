package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "pricewise",
			Password: "secret", Name: "pricewise", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		JWT: JWTConfig{
			AccessSecret:  "access-secret-that-is-at-least-32-chars!",
			RefreshSecret: "refresh-secret-that-is-at-least-32-chr!",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
		},
		Pipeline: PipelineConfig{
			SalesLookbackDays:    180,
			MemoryLookbackDays:   30,
			SnapshotLookbackDays: 30,
			BaselineDays:         30,
			PhaseTimeout:         3 * time.Minute,
		},
		Governance: GovernanceConfig{
			MaxCompletionsPerMinute: 20,
			MaxTokensPerDay:         200000,
			MaxRunsPerDay:           24,
			AuthRateLimitPerMinute:  10,
		},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "short access secret",
			mutate: func(c *Config) { c.JWT.AccessSecret = "short" },
			want:   []string{"JWT_ACCESS_SECRET"},
		},
		{
			name:   "short refresh secret",
			mutate: func(c *Config) { c.JWT.RefreshSecret = "short" },
			want:   []string{"JWT_REFRESH_SECRET"},
		},
		{
			name: "identical secrets",
			mutate: func(c *Config) {
				c.JWT.AccessSecret = "the-same-secret-that-is-at-least-32-chars!"
				c.JWT.RefreshSecret = "the-same-secret-that-is-at-least-32-chars!"
			},
			want: []string{"must differ"},
		},
		{
			name:   "missing db password",
			mutate: func(c *Config) { c.DB.Password = "" },
			want:   []string{"DB_PASSWORD"},
		},
		{
			name: "ports out of range",
			mutate: func(c *Config) {
				c.Server.Port = 0
				c.DB.Port = 99999
				c.Redis.Port = -1
			},
			want: []string{"SERVER_PORT", "DB_PORT", "REDIS_PORT"},
		},
		{
			name: "pipeline windows too small",
			mutate: func(c *Config) {
				c.Pipeline.SalesLookbackDays = 5
				c.Pipeline.BaselineDays = 3
			},
			want: []string{"PIPELINE_SALES_LOOKBACK_DAYS", "PIPELINE_BASELINE_DAYS"},
		},
		{
			name:   "zero phase timeout",
			mutate: func(c *Config) { c.Pipeline.PhaseTimeout = 0 },
			want:   []string{"PIPELINE_PHASE_TIMEOUT"},
		},
		{
			name: "governance budgets unset",
			mutate: func(c *Config) {
				c.Governance.MaxCompletionsPerMinute = 0
				c.Governance.MaxRunsPerDay = 0
			},
			want: []string{"GOVERNANCE_MAX_COMPLETIONS_PER_MINUTE", "GOVERNANCE_MAX_RUNS_PER_DAY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			for _, sub := range tt.want {
				if !strings.Contains(err.Error(), sub) {
					t.Errorf("expected %q in error: %v", sub, err)
				}
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	err := (&Config{}).Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, sub := range []string{"JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "DB_PASSWORD", "SERVER_PORT", "PIPELINE_PHASE_TIMEOUT", "GOVERNANCE_MAX_RUNS_PER_DAY"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("expected %q in error: %v", sub, err)
		}
	}
}
