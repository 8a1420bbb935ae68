package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// Repositories, services and handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMalformedActivity ErrorCode = "validation_malformed_activity"
	ErrCodeValidationInvalidDay        ErrorCode = "validation_invalid_day"
	ErrCodeValidationUnknownTask       ErrorCode = "validation_unknown_task"
	ErrCodeValidationMissingField      ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidLimit      ErrorCode = "validation_invalid_limit"

	// Not Found (404)
	ErrCodeNotFoundLearner      ErrorCode = "not_found_learner"
	ErrCodeNotFoundSummary      ErrorCode = "not_found_engagement_summary"
	ErrCodeNotFoundSnapshot     ErrorCode = "not_found_risk_snapshot"
	ErrCodeNotFoundNotification ErrorCode = "not_found_notification"

	// Conflict (409)
	ErrCodeConflictJobRunning ErrorCode = "conflict_job_running"
	ErrCodeConflictRetryState ErrorCode = "conflict_retry_state_changed"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB              ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected      ErrorCode = "internal_unexpected_error"
	ErrCodeInternalJobPanic        ErrorCode = "internal_job_panic"
	ErrCodeUpstreamPrediction      ErrorCode = "upstream_prediction_unavailable"
	ErrCodeUpstreamPredictionRange ErrorCode = "upstream_prediction_out_of_range"
	ErrCodeUpstreamQueue           ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamUnavailable     ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited     ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type used throughout the engine.
// Repository and upstream failures are expressed as AppError so the HTTP layer
// and the job runner can classify them without string matching.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode reports whether err is, or wraps, an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
