package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInputInvalid        = errors.New("input invalid")
	ErrDeadline            = errors.New("stage deadline exceeded")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrIndexCorrupt        = errors.New("index corrupt")
	ErrServerBusy          = errors.New("server busy")
	ErrInternal            = errors.New("internal error")
)

// AppError carries a sentinel, a human message, and the HTTP status to
// surface to the client.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel with a message; the HTTP status follows from the
// sentinel.
func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusFor(sentinel),
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return New(sentinel, fmt.Sprintf(format, args...))
}

func statusFor(sentinel error) int {
	switch {
	case errors.Is(sentinel, ErrInputInvalid):
		return http.StatusBadRequest
	case errors.Is(sentinel, ErrServerBusy):
		return http.StatusTooManyRequests
	case errors.Is(sentinel, ErrDeadline):
		return http.StatusGatewayTimeout
	case errors.Is(sentinel, ErrIndexCorrupt), errors.Is(sentinel, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatusCode maps an error to the status code returned to the client.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	return statusFor(err)
}

// Code returns the wire-level error code carried in the response payload.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInputInvalid):
		return "INPUT_INVALID"
	case errors.Is(err, ErrServerBusy):
		return "SERVER_BUSY"
	case errors.Is(err, ErrDeadline):
		return "DEADLINE"
	case errors.Is(err, ErrIndexCorrupt), errors.Is(err, ErrUpstreamUnavailable):
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
