package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindUpstream
)

// Error is a domain error carrying a kind, a machine-readable code and a
// message that is safe to show to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind and code, so sentinels below compare
// equal to errors built with a different message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithCause returns a copy of e wrapping err.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

var (
	// ErrCaseNotFound is returned when a case does not exist.
	ErrCaseNotFound = NotFound("CASE_NOT_FOUND", "case not found")
	// ErrEvidenceNotFound is returned when an evidence item does not exist.
	ErrEvidenceNotFound = NotFound("EVIDENCE_NOT_FOUND", "evidence not found")
	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = NotFound("USER_NOT_FOUND", "user not found")

	// ErrDuplicateCaseNumber is returned when a case number is already taken.
	ErrDuplicateCaseNumber = Validation("DUPLICATE_CASE_NUMBER", "case number already exists")
	// ErrDuplicateEvidenceID is returned when an evidence identifier is already taken.
	ErrDuplicateEvidenceID = Validation("DUPLICATE_EVIDENCE_ID", "evidence id already exists")
	// ErrDuplicateEmail is returned when registering an existing email.
	ErrDuplicateEmail = Validation("USER_ALREADY_EXISTS", "user already exists")
	// ErrChainImmutable is returned when a caller tries to replace custody history.
	ErrChainImmutable = Validation("CHAIN_IMMUTABLE", "chain of custody cannot be replaced")

	// ErrInvalidCredentials is returned when email or password is incorrect.
	ErrInvalidCredentials = Authentication("INVALID_CREDENTIALS", "invalid email or password")
	// ErrInvalidToken is returned for missing, malformed, expired or revoked tokens.
	ErrInvalidToken = Authentication("INVALID_TOKEN", "invalid or expired token")
	// ErrInvalidResetToken is returned when a password reset token is unknown or expired.
	ErrInvalidResetToken = Validation("INVALID_RESET_TOKEN", "invalid or expired reset token")

	// ErrForbidden is returned when the acting user may not perform an operation.
	ErrForbidden = Authorization("FORBIDDEN", "not authorized to perform this action")

	// ErrCaseHasEvidence is returned when deleting a case that still has evidence.
	ErrCaseHasEvidence = Conflict("CASE_HAS_EVIDENCE", "case still has evidence attached")

	// ErrMLUnavailable is returned when the analysis service fails.
	ErrMLUnavailable = Upstream("ML_SERVICE_ERROR", "analysis service unavailable", nil)
)

// Validation creates a validation error.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Invalid creates a generic validation error for a request field.
func Invalid(format string, args ...any) *Error {
	return Validation("VALIDATION_ERROR", fmt.Sprintf(format, args...))
}

// Authentication creates an authentication error.
func Authentication(code, message string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: message}
}

// Authorization creates an authorization error.
func Authorization(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

// NotFound creates a not found error.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Conflict creates a conflict error.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Upstream creates an error for a failing external service. The upstream
// message is preserved in the client-visible message.
func Upstream(code, message string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: message, Err: err}
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error:   e.Message,
		Code:    e.Code,
	}
}

// StatusCode returns the HTTP status for a kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Anything that is not an
// *Error becomes an opaque internal error.
func MapErrorToHTTP(err error) *HTTPError {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		message := appErr.Message
		if appErr.Kind == KindUpstream {
			message = appErr.Error()
		}
		return NewHTTPError(appErr.Kind.StatusCode(), message, appErr.Code)
	}
	return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}

// KindOf returns the kind of err, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
