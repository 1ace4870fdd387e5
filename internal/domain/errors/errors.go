package errors

import (
	"errors"
	"fmt"
)

// Error types for the analysis engine
type ErrorType string

const (
	ErrorTypeInvalidInput     ErrorType = "invalid_input"
	ErrorTypeStoreUnavailable ErrorType = "store_unavailable"
	ErrorTypeModelUnavailable ErrorType = "model_unavailable"
	ErrorTypeBudgetExhausted  ErrorType = "budget_exhausted"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeInternal         ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors

// NewInvalidInputError marks a request that is rejected outright; no partial
// state is created for it.
func NewInvalidInputError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeInvalidInput,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewStoreUnavailableError marks a failed profile/cache/history store call.
// Propagated to the caller so it can retry; writes are upserts so a failed
// write leaves the previous profile intact.
func NewStoreUnavailableError(store string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeStoreUnavailable,
		Code:      "STORE_UNAVAILABLE",
		Message:   fmt.Sprintf("%s store unavailable", store),
		Cause:     cause,
		Retryable: true,
		Details:   map[string]interface{}{"store": store},
	}
}

// NewModelUnavailableError marks a scoring model that failed to load or score.
// Callers degrade to statistical-only detection rather than failing outright.
func NewModelUnavailableError(model string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeModelUnavailable,
		Code:      "MODEL_UNAVAILABLE",
		Message:   fmt.Sprintf("%s model unavailable", model),
		Cause:     cause,
		Retryable: true,
		Details:   map[string]interface{}{"model": model},
	}
}

// NewBudgetExhaustedError marks a depleted privacy budget. Fail closed: no
// privacy-preserving analysis may run until the budget is reallocated.
func NewBudgetExhaustedError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeBudgetExhausted,
		Code:      "PRIVACY_BUDGET_EXHAUSTED",
		Message:   message,
		Retryable: false,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:      ErrorTypeNotFound,
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("%s not found", resource),
		Retryable: false,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeInternal,
		Code:      "INTERNAL_ERROR",
		Message:   message,
		Retryable: true,
	}
}

// Predefined common errors
var (
	ErrEmptyBatch      = NewInvalidInputError("EMPTY_BATCH", "event batch cannot be empty")
	ErrEmptyUserID     = NewInvalidInputError("EMPTY_USER_ID", "user id cannot be empty")
	ErrProfileNotFound = NewNotFoundError("behavior profile")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
