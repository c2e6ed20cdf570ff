package api

import (
	"errors"
	"net/http"
)

// AppError couples a caller-facing message with the HTTP status it maps
// to. Handlers return these; HandleError does the writing.
type AppError struct {
	Code    int
	Message string
}

func (e *AppError) Error() string { return e.Message }

func newError(code int, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Sentinel errors for conditions shared across handlers.
var (
	ErrBadRequest         = newError(http.StatusBadRequest, "bad request")
	ErrUnauthorized       = newError(http.StatusUnauthorized, "unauthorized")
	ErrInternalServer     = newError(http.StatusInternalServerError, "internal server error")
	ErrInvalidCredentials = newError(http.StatusUnauthorized, "invalid username or password")
	ErrInvalidKey         = newError(http.StatusForbidden, "invalid or expired API key or plan")
	ErrClientInactive     = newError(http.StatusForbidden, "client inactive or key revoked")
	ErrPlanExpired        = newError(http.StatusForbidden, "subscription expired, renew to continue messaging")
)

func NewBadRequestError(msg string) *AppError { return newError(http.StatusBadRequest, msg) }
func NewNotFoundError(msg string) *AppError   { return newError(http.StatusNotFound, msg) }
func NewConflictError(msg string) *AppError   { return newError(http.StatusConflict, msg) }
func NewForbiddenError(msg string) *AppError  { return newError(http.StatusForbidden, msg) }
func NewValidationError(msg string) *AppError { return newError(http.StatusBadRequest, msg) }

// HandleError writes err as a JSON error response. Unknown error types
// become an opaque 500 so internal details never reach callers.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONErrorMessage(w, appErr.Code, appErr.Message)
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
