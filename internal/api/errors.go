package api

import (
	"errors"
	"log/slog"
	"net/http"
)

// AppError is an error safe to surface over HTTP. Anything else reaching
// HandleError is logged and reported as a generic 500 so internal detail
// never leaks to clients.
type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *AppError) Error() string { return e.Message }

func appError(code int, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

var (
	ErrBadRequest         = appError(http.StatusBadRequest, "bad request")
	ErrUnauthorized       = appError(http.StatusUnauthorized, "unauthorized")
	ErrInternalServer     = appError(http.StatusInternalServerError, "internal server error")
	ErrInvalidCredentials = appError(http.StatusUnauthorized, "invalid email or password")
	ErrEmailAlreadyExists = appError(http.StatusConflict, "email already registered")
	ErrInvalidToken       = appError(http.StatusUnauthorized, "invalid or expired token")
	ErrTaskNotFound       = appError(http.StatusNotFound, "task not found")
	ErrQuotaExceeded      = appError(http.StatusTooManyRequests, "daily run quota exceeded")
)

func NewBadRequestError(msg string) *AppError { return appError(http.StatusBadRequest, msg) }

func NewNotFoundError(msg string) *AppError { return appError(http.StatusNotFound, msg) }

func NewConflictError(msg string) *AppError { return appError(http.StatusConflict, msg) }

func NewValidationError(msg string) *AppError { return appError(http.StatusBadRequest, msg) }

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		slog.Error("unclassified error at http boundary", "error", err)
		appErr = ErrInternalServer
	}
	JSONErrorMessage(w, appErr.Code, appErr.Message)
}
