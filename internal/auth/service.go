package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRefreshRevoked reports a structurally valid refresh token whose jti is
// no longer in the revocation store: it was rotated, logged out, or expired.
var ErrRefreshRevoked = errors.New("refresh token revoked")

const refreshKeyPrefix = "auth:refresh:"

// EmailLookup resolves a user's current email so rotated access tokens keep
// carrying it. users.Service satisfies this.
type EmailLookup interface {
	EmailByID(ctx context.Context, id uuid.UUID) (string, error)
}

// Service issues, rotates and revokes token pairs. Live refresh jtis are
// kept in Redis under auth:refresh:<user>:<jti> so that logout and rotation
// take effect immediately instead of at token expiry.
type Service struct {
	tokens *Manager
	redis  *redis.Client
	emails EmailLookup
}

func NewService(tokens *Manager, redisClient *redis.Client, emails EmailLookup) *Service {
	return &Service{
		tokens: tokens,
		redis:  redisClient,
		emails: emails,
	}
}

// IssueTokens mints a pair for a freshly authenticated user and registers
// the refresh jti.
func (s *Service) IssueTokens(ctx context.Context, userID uuid.UUID, email string) (*TokenPair, error) {
	pair, refreshID, err := s.tokens.Issue(userID, email)
	if err != nil {
		return nil, err
	}
	if err := s.storeRefresh(ctx, userID, refreshID); err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh validates and rotates a refresh token: the presented jti is
// consumed and a fresh pair with a new jti replaces it. A revoked or
// already-used token returns ErrRefreshRevoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}
	userID, err := claims.SubjectID()
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	key := refreshKey(userID, claims.ID)
	deleted, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("consuming refresh token: %w", err)
	}
	if deleted == 0 {
		return nil, ErrRefreshRevoked
	}

	// Refresh tokens do not carry the email claim, so look it up to keep
	// the rotated access token complete. A lookup failure downgrades the
	// claim rather than failing the rotation.
	email, err := s.emails.EmailByID(ctx, userID)
	if err != nil {
		slog.Warn("email lookup during token refresh failed", "error", err, "user_id", userID)
		email = ""
	}

	pair, refreshID, err := s.tokens.Issue(userID, email)
	if err != nil {
		return nil, err
	}
	if err := s.storeRefresh(ctx, userID, refreshID); err != nil {
		return nil, err
	}
	return pair, nil
}

// RevokeAll invalidates every live refresh token for the user. Outstanding
// access tokens stay valid until they expire.
func (s *Service) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	pattern := refreshKeyPrefix + userID.String() + ":*"
	iter := s.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("revoking refresh token: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning refresh tokens: %w", err)
	}
	return nil
}

// ParseAccess verifies an access token for Middleware.
func (s *Service) ParseAccess(token string) (*Claims, error) {
	return s.tokens.ParseAccess(token)
}

func (s *Service) storeRefresh(ctx context.Context, userID uuid.UUID, refreshID string) error {
	key := refreshKey(userID, refreshID)
	if err := s.redis.Set(ctx, key, "1", s.tokens.RefreshTTL()).Err(); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return nil
}

func refreshKey(userID uuid.UUID, refreshID string) string {
	return refreshKeyPrefix + userID.String() + ":" + refreshID
}
