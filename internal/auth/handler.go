package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pricewise-ai/pricewise/internal/api"
	"github.com/pricewise-ai/pricewise/internal/users"
)

// Handler serves registration, login, token rotation and the merchant
// profile endpoints.
type Handler struct {
	authSvc  *Service
	userSvc  *users.Service
	validate *validator.Validate
}

func NewHandler(authSvc *Service, userSvc *users.Service) *Handler {
	return &Handler{
		authSvc:  authSvc,
		userSvc:  userSvc,
		validate: validator.New(),
	}
}

type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8"`
	BusinessName string `json:"business_name" validate:"omitempty,max=120"`
	Currency     string `json:"currency" validate:"omitempty,iso4217"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type UpdateProfileRequest struct {
	BusinessName *string `json:"business_name" validate:"omitempty,max=120"`
	Currency     *string `json:"currency" validate:"omitempty,iso4217"`
}

// normalize runs after decoding and before validation, so "eur" passes the
// iso4217 check the same as "EUR".
func (r *RegisterRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
}

func (r *UpdateProfileRequest) normalize() {
	if r.Currency != nil {
		upper := strings.ToUpper(strings.TrimSpace(*r.Currency))
		r.Currency = &upper
	}
}

// RegisterResponse returns the new account alongside its first token pair
// so clients can proceed without a follow-up login.
type RegisterResponse struct {
	User   *users.User `json:"user"`
	Tokens *TokenPair  `json:"tokens"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			api.HandleError(w, api.NewValidationError("password exceeds 72 bytes"))
			return
		}
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	user, err := h.userSvc.Register(r.Context(), users.RegisterParams{
		Email:        req.Email,
		PasswordHash: hash,
		BusinessName: req.BusinessName,
		Currency:     req.Currency,
	})
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			api.HandleError(w, api.ErrEmailAlreadyExists)
			return
		}
		slog.Error("creating user", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	tokens, err := h.authSvc.IssueTokens(r.Context(), user.ID, user.Email)
	if err != nil {
		slog.Error("issuing tokens", "error", err, "user_id", user.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, RegisterResponse{User: user, Tokens: tokens})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.userSvc.GetByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("getting user by email", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	// Same response for unknown email and wrong password.
	if user == nil || !VerifyPassword(user.PasswordHash, req.Password) {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	tokens, err := h.authSvc.IssueTokens(r.Context(), user.ID, user.Email)
	if err != nil {
		slog.Error("issuing tokens", "error", err, "user_id", user.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	tokens, err := h.authSvc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if !errors.Is(err, ErrRefreshRevoked) {
			slog.Warn("refreshing tokens", "error", err)
		}
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.authSvc.RevokeAll(r.Context(), userID); err != nil {
		slog.Error("logging out", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "logged out successfully")
}

// Me handles GET /api/v1/users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	user, err := h.userSvc.GetByID(r.Context(), userID)
	if err != nil {
		slog.Error("getting user profile", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	api.JSON(w, http.StatusOK, user)
}

// UpdateProfile handles PATCH /api/v1/users/me.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.userSvc.UpdateProfile(r.Context(), userID, users.ProfileUpdate{
		BusinessName: req.BusinessName,
		Currency:     req.Currency,
	})
	if err != nil {
		slog.Error("updating user profile", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	api.JSON(w, http.StatusOK, user)
}

type normalizer interface{ normalize() }

// decode reads, normalizes and validates a JSON request body, writing the
// error response itself when the body is malformed.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return false
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := h.validate.Struct(dst); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return false
	}
	return true
}
