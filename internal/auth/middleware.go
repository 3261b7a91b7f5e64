package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pricewise-ai/pricewise/internal/api"
)

type claimsCtxKey struct{}

// Middleware rejects requests without a valid bearer access token and
// stashes the verified claims in the request context.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || !strings.EqualFold(scheme, "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := svc.ParseAccess(token)
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims returns a context carrying verified token claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}

// ClaimsFrom returns the verified claims stored by Middleware, or nil when
// the request never passed through it.
func ClaimsFrom(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsCtxKey{}).(*Claims)
	return claims
}

// UserID returns the authenticated user's ID from the request context.
// Handlers behind Middleware use this instead of re-parsing claims.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	claims := ClaimsFrom(ctx)
	if claims == nil {
		return uuid.Nil, false
	}
	id, err := claims.SubjectID()
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
