package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes carried in the "code" field of error bodies.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"

	CodeBadRequest     = "BAD_REQUEST"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodePayloadTooBig  = "PAYLOAD_TOO_LARGE"

	// Per-item codes; these never fail a whole request.
	CodeExtractionFailed = "EXTRACTION_FAILED"

	CodeInternalError = "INTERNAL_ERROR"
	CodeRateLimited   = "RATE_LIMITED"

	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError is an error that knows its HTTP status and public code.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(message string) *AppError {
	return New(CodeInvalidToken, message, http.StatusUnauthorized)
}

// BadRequest covers malformed input: unparsable forms, bad JSON bodies.
func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

// InvalidRequest rejects a well-formed request that has nothing to classify
// or mixes pasted text with files.
func InvalidRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, http.StatusBadRequest)
}

func PayloadTooLarge(limitBytes int) *AppError {
	return New(CodePayloadTooBig, "upload exceeds the configured size limit", http.StatusRequestEntityTooLarge).
		WithDetail("limit_bytes", limitBytes)
}

// AsAppError unwraps err to an *AppError, treating anything else as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(CodeInternalError, "internal server error", http.StatusInternalServerError).WithError(err)
}

func GetHTTPStatus(err error) int {
	return AsAppError(err).Status
}
