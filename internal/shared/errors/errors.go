// Package errors defines the application error taxonomy shared across modules.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the generation and export pipelines.
var (
	// ErrConfiguration indicates no enabled provider or credential exists for
	// the requested capability. Fatal, never auto-retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrProvider indicates an upstream provider failure or malformed payload.
	ErrProvider = errors.New("provider error")

	// ErrTimeout indicates an async provider poll loop exceeded its deadline.
	ErrTimeout = errors.New("provider timeout")

	// ErrPersistence indicates a generated asset could not be secured into
	// owned storage. Terminal for the request even though the provider call
	// may already have been billed.
	ErrPersistence = errors.New("persistence error")

	// ErrQueueUnavailable indicates the durable export broker was unreachable
	// at enqueue time.
	ErrQueueUnavailable = errors.New("queue unavailable")

	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
)

// RequiresApproval is the control signal raised when an estimated spend
// exceeds the silent-spend threshold without prior human approval. It is not
// a failure: the caller surfaces the estimate and resubmits with approval.
type RequiresApproval struct {
	EstimatedCost float64
}

// Error implements the error interface.
func (e *RequiresApproval) Error() string {
	return fmt.Sprintf("approval required for estimated cost %.4f USD", e.EstimatedCost)
}

// AppError represents an application error with HTTP status and error code.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error constructors.

// Configuration creates a configuration error.
func Configuration(message string) *AppError {
	return &AppError{
		Code:       "CONFIGURATION_ERROR",
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Err:        ErrConfiguration,
	}
}

// Provider creates a provider error wrapping the upstream cause.
func Provider(provider string, err error) *AppError {
	return &AppError{
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("provider %s failed", provider),
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %w", ErrProvider, err),
	}
}

// Timeout creates a timeout error for an async provider poll loop.
func Timeout(provider string, message string) *AppError {
	return &AppError{
		Code:       "TIMEOUT",
		Message:    fmt.Sprintf("provider %s: %s", provider, message),
		StatusCode: http.StatusGatewayTimeout,
		Err:        ErrTimeout,
	}
}

// Persistence creates a persistence error for asset custody failures.
func Persistence(message string, err error) *AppError {
	return &AppError{
		Code:       "PERSISTENCE_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        fmt.Errorf("%w: %w", ErrPersistence, err),
	}
}

// QueueUnavailable creates a queue unavailable error.
func QueueUnavailable(err error) *AppError {
	return &AppError{
		Code:       "QUEUE_UNAVAILABLE",
		Message:    "export queue is unreachable",
		StatusCode: http.StatusServiceUnavailable,
		Err:        fmt.Errorf("%w: %w", ErrQueueUnavailable, err),
	}
}

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// BadRequest creates a bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrBadRequest,
	}
}

// GetStatusCode returns the appropriate HTTP status code for an error.
func GetStatusCode(err error) int {
	var approval *RequiresApproval
	if errors.As(err, &approval) {
		return http.StatusPreconditionFailed
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
