package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const defaultCurrency = "USD"

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a merchant account. Emails are case-insensitive:
// normalization here plus the unique index in the schema keep one account
// per address.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*User, error) {
	params.Email = NormalizeEmail(params.Email)
	params.BusinessName = strings.TrimSpace(params.BusinessName)
	if params.Currency == "" {
		params.Currency = defaultCurrency
	}
	params.Currency = strings.ToUpper(params.Currency)

	return s.repo.Insert(ctx, params)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// EmailByID resolves the current email for token rotation.
func (s *Service) EmailByID(ctx context.Context, id uuid.UUID) (string, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", fmt.Errorf("user %s not found", id)
	}
	return user.Email, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*User, error) {
	if update.BusinessName != nil {
		trimmed := strings.TrimSpace(*update.BusinessName)
		update.BusinessName = &trimmed
	}
	if update.Currency != nil {
		upper := strings.ToUpper(*update.Currency)
		update.Currency = &upper
	}
	return s.repo.UpdateProfile(ctx, id, update)
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
