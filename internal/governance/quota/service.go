package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pricewise-ai/pricewise/internal/config"
)

// ErrRunQuotaExceeded signals that today's run allowance is spent. The API
// maps it to 429.
var ErrRunQuotaExceeded = errors.New("daily run quota exceeded")

// ErrCompletionThrottled signals that the per-minute completion budget or
// the daily token budget is exhausted. Stages treat it like a rate-limited
// completion service and degrade.
var ErrCompletionThrottled = errors.New("completion quota exceeded")

// Service combines the Redis sliding window with Postgres daily counters.
// Redis failures fail open: throttling is protection, not bookkeeping.
type Service struct {
	repo    *Repository
	limiter *RateLimiter
	cfg     config.GovernanceConfig
}

// NewService creates a new quota Service.
func NewService(repo *Repository, limiter *RateLimiter, cfg config.GovernanceConfig) *Service {
	return &Service{
		repo:    repo,
		limiter: limiter,
		cfg:     cfg,
	}
}

// CheckRun verifies the user may start another pipeline run today.
func (s *Service) CheckRun(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.repo.ResetDailyIfStale(ctx, userID); err != nil {
		slog.Warn("quota: daily reset check failed", "error", err)
	}

	q, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		slog.Warn("quota: failed to read quota, allowing run", "error", err)
		return nil
	}

	if q.RunsToday >= s.cfg.MaxRunsPerDay {
		detail := fmt.Sprintf("%d/%d runs used", q.RunsToday, s.cfg.MaxRunsPerDay)
		if err := s.repo.RecordViolation(ctx, userID, ViolationRunsPerDay, detail); err != nil {
			slog.Warn("quota: recording violation failed", "error", err)
		}
		return ErrRunQuotaExceeded
	}
	return nil
}

// RecordRun counts one started run.
func (s *Service) RecordRun(ctx context.Context, userID uuid.UUID) error {
	return s.repo.IncrementRuns(ctx, userID)
}

// CheckCompletion gates one outbound completion call: per-minute sliding
// window first, then the daily token ceiling.
func (s *Service) CheckCompletion(ctx context.Context, userID uuid.UUID) error {
	allowed, err := s.limiter.Allow(ctx, userID, s.cfg.MaxCompletionsPerMinute)
	if err != nil {
		slog.Warn("quota: rate limiter check failed, allowing completion", "error", err)
	} else if !allowed {
		detail := fmt.Sprintf("max %d completions per minute", s.cfg.MaxCompletionsPerMinute)
		if err := s.repo.RecordViolation(ctx, userID, ViolationCompletionsPerMinute, detail); err != nil {
			slog.Warn("quota: recording violation failed", "error", err)
		}
		return ErrCompletionThrottled
	}

	q, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		slog.Warn("quota: failed to read quota, allowing completion", "error", err)
		return nil
	}
	if q.TokensUsedToday >= s.cfg.MaxTokensPerDay {
		detail := fmt.Sprintf("%d/%d tokens used", q.TokensUsedToday, s.cfg.MaxTokensPerDay)
		if err := s.repo.RecordViolation(ctx, userID, ViolationTokensPerDay, detail); err != nil {
			slog.Warn("quota: recording violation failed", "error", err)
		}
		return ErrCompletionThrottled
	}
	return nil
}

// RecordCompletion books token usage after a completed call.
func (s *Service) RecordCompletion(ctx context.Context, userID uuid.UUID, tokens int) error {
	return s.repo.IncrementCompletionUsage(ctx, userID, tokens)
}

// GetQuota returns the user's current quota status for API display.
func (s *Service) GetQuota(ctx context.Context, userID uuid.UUID) (*Status, error) {
	if _, err := s.repo.ResetDailyIfStale(ctx, userID); err != nil {
		slog.Warn("quota: daily reset check failed", "error", err)
	}

	q, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting quota: %w", err)
	}

	minuteUsage, err := s.limiter.Usage(ctx, userID)
	if err != nil {
		slog.Warn("quota: failed to get minute usage", "error", err)
		minuteUsage = 0
	}

	return &Status{
		RunsToday:              q.RunsToday,
		RunsLimitDay:           s.cfg.MaxRunsPerDay,
		TokensUsedToday:        q.TokensUsedToday,
		TokensLimitDay:         s.cfg.MaxTokensPerDay,
		CompletionsToday:       q.CompletionsToday,
		CompletionsMinute:      minuteUsage,
		CompletionsLimitMinute: s.cfg.MaxCompletionsPerMinute,
	}, nil
}
