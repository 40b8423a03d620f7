// Package apperr defines the application error taxonomy and its HTTP
// mapping. Handlers return these codes inside the standard response
// envelope.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound is returned when a food log does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("food log not found")
	// ErrInvalidMealType is returned when a meal type is outside the
	// enumeration.
	ErrInvalidMealType = errors.New("invalid meal type")
	// ErrInvalidCredentials is returned when email sign-in fails.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = errors.New("email already registered")
)

// Error codes carried in the response envelope.
const (
	CodeMissingData   = "MISSING_DATA"
	CodeInvalidData   = "INVALID_DATA"
	CodeInvalidFile   = "INVALID_FILE"
	CodeTimeout       = "TIMEOUT"
	CodeWebhookError  = "WEBHOOK_ERROR"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeMaxRetries    = "MAX_RETRIES_EXCEEDED"
	CodeInternalError = "INTERNAL_ERROR"
)

// Error is an error with an envelope code and HTTP status.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New creates an Error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// FromError maps any error to an Error. Known sentinels keep their status;
// everything else becomes a 500 with the error's message.
func FromError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return New(http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, ErrInvalidMealType):
		return New(http.StatusBadRequest, CodeInvalidData, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return New(http.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.Is(err, ErrEmailTaken):
		return New(http.StatusBadRequest, CodeInvalidData, err.Error())
	default:
		return New(http.StatusInternalServerError, CodeInternalError, err.Error())
	}
}
