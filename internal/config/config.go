package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	JWT        JWTConfig
	OpenAI     OpenAIConfig
	Pipeline   PipelineConfig
	Governance GovernanceConfig
	CORS       CORSConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// DSN renders the URL form accepted by both pgxpool and golang-migrate.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr renders host:port for the go-redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL     string
	Enabled bool
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// OpenAIConfig configures the text-completion collaborator.
type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
	MaxRetries     int
	// RequestsPerMinute throttles outbound completion calls client-side.
	RequestsPerMinute int
	// Embeddings toggles memory embedding + similarity recall.
	Embeddings bool
}

// PipelineConfig bounds the analysis windows of a pricing run.
type PipelineConfig struct {
	// SalesLookbackDays is how far back order history is loaded in phase 1.
	SalesLookbackDays int
	// MemoryLookbackDays windows stage memory retrieval.
	MemoryLookbackDays int
	// SnapshotLookbackDays is how far back trend comparisons may read a
	// prior run's snapshot.
	SnapshotLookbackDays int
	// BaselineDays is the anomaly-detection baseline window.
	BaselineDays int
	// PhaseTimeout bounds each phase, LLM calls included.
	PhaseTimeout time.Duration
}

type GovernanceConfig struct {
	MaxCompletionsPerMinute int
	MaxTokensPerDay         int
	MaxRunsPerDay           int
	AuthRateLimitPerMinute  int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// loader reads keys off a koanf instance with an inline fallback, so each
// default sits next to the key it belongs to. Duration parse failures are
// collected instead of silently becoming zero.
type loader struct {
	k    *koanf.Koanf
	errs []error
}

func (l *loader) str(key, def string) string {
	if v := l.k.String(key); v != "" {
		return v
	}
	return def
}

func (l *loader) num(key string, def int) int {
	if v := l.k.Int(key); v != 0 {
		return v
	}
	return def
}

func (l *loader) dur(key, def string) time.Duration {
	raw := l.str(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("parsing %s: %w", key, err))
		return 0
	}
	return d
}

// Load builds Config from a .env file (if present) overlaid with process
// environment variables. Unset keys take the defaults inlined below.
func Load() (*Config, error) {
	k := koanf.New(".")

	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	l := &loader{k: k}
	cfg := &Config{
		Server: ServerConfig{
			Host: l.str("server.host", "0.0.0.0"),
			Port: l.num("server.port", 8080),
		},
		DB: DBConfig{
			Host:     l.str("db.host", "localhost"),
			Port:     l.num("db.port", 5432),
			User:     l.str("db.user", "pricewise"),
			Password: k.String("db.password"),
			Name:     l.str("db.name", "pricewise"),
			SSLMode:  l.str("db.sslmode", "disable"),
			MaxConns: int32(l.num("db.max.conns", 25)),
		},
		Redis: RedisConfig{
			Host:     l.str("redis.host", "localhost"),
			Port:     l.num("redis.port", 6379),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:     l.str("nats.url", "nats://localhost:4222"),
			Enabled: k.Bool("nats.enabled"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
			AccessExpiry:  l.dur("jwt.access.expiry", "15m"),
			RefreshExpiry: l.dur("jwt.refresh.expiry", "168h"),
		},
		OpenAI: OpenAIConfig{
			BaseURL:           l.str("openai.base.url", "https://api.openai.com/v1"),
			APIKey:            k.String("openai.api.key"),
			Model:             l.str("openai.model", "gpt-4o-mini"),
			EmbeddingModel:    l.str("openai.embedding.model", "text-embedding-3-small"),
			Timeout:           l.dur("openai.timeout", "30s"),
			MaxRetries:        l.num("openai.max.retries", 2),
			RequestsPerMinute: l.num("openai.requests.per.minute", 30),
			Embeddings:        k.Bool("openai.embeddings"),
		},
		Pipeline: PipelineConfig{
			SalesLookbackDays:    l.num("pipeline.sales.lookback.days", 180),
			MemoryLookbackDays:   l.num("pipeline.memory.lookback.days", 30),
			SnapshotLookbackDays: l.num("pipeline.snapshot.lookback.days", 30),
			BaselineDays:         l.num("pipeline.baseline.days", 30),
			PhaseTimeout:         l.dur("pipeline.phase.timeout", "3m"),
		},
		Governance: GovernanceConfig{
			MaxCompletionsPerMinute: l.num("governance.max.completions.per.minute", 20),
			MaxTokensPerDay:         l.num("governance.max.tokens.per.day", 200000),
			MaxRunsPerDay:           l.num("governance.max.runs.per.day", 24),
			AuthRateLimitPerMinute:  l.num("governance.auth.rate.limit.per.minute", 10),
		},
		CORS: CORSConfig{
			AllowedOrigins: k.Strings("cors.allowed.origins"),
		},
		Log: LogConfig{
			Level:  l.str("log.level", "info"),
			Format: l.str("log.format", "text"),
		},
	}

	if len(l.errs) > 0 {
		return nil, errors.Join(l.errs...)
	}
	return cfg, nil
}
