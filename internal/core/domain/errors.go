package domain

import "net/http"

// ErrorCode represents categorized error types.
// These codes are stable and can be used for programmatic error handling.
type ErrorCode string

const (
	// ErrCodeConfig marks a fatal configuration problem. Never retried.
	ErrCodeConfig ErrorCode = "config_error"

	// ErrCodeUnknownRequest marks a response whose correlating request id
	// was never recorded: an unsolicited, replayed, or forged response.
	ErrCodeUnknownRequest ErrorCode = "unknown_request"

	// ErrCodeVerificationFailed marks a SAML message that failed parsing
	// or signature verification. Verifier internals are never echoed.
	ErrCodeVerificationFailed ErrorCode = "verification_failed"

	// ErrCodeUserNotValid marks a verified assertion for which the user
	// backend could not resolve a local user.
	ErrCodeUserNotValid ErrorCode = "user_not_valid"

	// ErrCodeNotAuthenticated marks an operation that requires a local
	// authenticated session with a SAML identity record.
	ErrCodeNotAuthenticated ErrorCode = "not_authenticated"

	// ErrCodeProtocolContract marks a shape from the protocol library this
	// layer cannot interpret, such as a missing redirect target.
	ErrCodeProtocolContract ErrorCode = "protocol_contract"

	ErrCodeBadRequest ErrorCode = "bad_request"
	ErrCodeNotFound   ErrorCode = "not_found"
)

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// HTTPStatus returns the HTTP status code for this error code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeUnknownRequest, ErrCodeVerificationFailed, ErrCodeUserNotValid:
		return http.StatusForbidden
	case ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Title returns a user-friendly title for this error code.
func (c ErrorCode) Title() string {
	switch c {
	case ErrCodeConfig:
		return "Configuration Error"
	case ErrCodeUnknownRequest, ErrCodeVerificationFailed:
		return "Authentication Failed"
	case ErrCodeUserNotValid:
		return "User Not Valid"
	case ErrCodeNotAuthenticated:
		return "Not Authenticated"
	case ErrCodeProtocolContract:
		return "Service Error"
	case ErrCodeBadRequest:
		return "Invalid Request"
	case ErrCodeNotFound:
		return "Not Found"
	default:
		return "Error"
	}
}

// AppError is a structured error with code, message, and optional cause.
// Message is safe to show to the end user; Cause is not.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ConfigError creates a fatal configuration error.
func ConfigError(message string) *AppError {
	return &AppError{Code: ErrCodeConfig, Message: message}
}

// UnknownRequestError creates an error for an unrecorded request id.
func UnknownRequestError() *AppError {
	return &AppError{Code: ErrCodeUnknownRequest, Message: "SAML response has errors"}
}

// VerificationError creates a verification failure with its hidden cause.
func VerificationError(cause error) *AppError {
	return &AppError{Code: ErrCodeVerificationFailed, Message: "SAML response has errors", Cause: cause}
}

// UserNotValidError creates an error for a failed user resolution.
func UserNotValidError() *AppError {
	return &AppError{Code: ErrCodeUserNotValid, Message: "user not valid"}
}

// NotAuthenticatedError creates an error for a missing local session or
// identity record.
func NotAuthenticatedError() *AppError {
	return &AppError{Code: ErrCodeNotAuthenticated, Message: "authentication required"}
}

// ContractError creates a fatal protocol-library contract violation.
func ContractError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeProtocolContract, Message: message, Cause: cause}
}

// BadRequestError creates a bad request error.
func BadRequestError(message string) *AppError {
	return &AppError{Code: ErrCodeBadRequest, Message: message}
}

// NotFoundError creates a not found error.
func NotFoundError(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}
