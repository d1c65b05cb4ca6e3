package samlspflow

import (
	"github.com/philiph/samlspflow/internal/core/domain"
)

// Re-export error types from domain package so integrators need not import
// internal packages
type ErrorCode = domain.ErrorCode
type AppError = domain.AppError

// Re-export error code constants
const (
	ErrCodeConfig             = domain.ErrCodeConfig
	ErrCodeUnknownRequest     = domain.ErrCodeUnknownRequest
	ErrCodeVerificationFailed = domain.ErrCodeVerificationFailed
	ErrCodeUserNotValid       = domain.ErrCodeUserNotValid
	ErrCodeNotAuthenticated   = domain.ErrCodeNotAuthenticated
	ErrCodeProtocolContract   = domain.ErrCodeProtocolContract
	ErrCodeBadRequest         = domain.ErrCodeBadRequest
	ErrCodeNotFound           = domain.ErrCodeNotFound
)

// Re-export error constructors
var (
	ConfigError           = domain.ConfigError
	UnknownRequestError   = domain.UnknownRequestError
	VerificationError     = domain.VerificationError
	UserNotValidError     = domain.UserNotValidError
	NotAuthenticatedError = domain.NotAuthenticatedError
	ContractError         = domain.ContractError
	BadRequestError       = domain.BadRequestError
	NotFoundError         = domain.NotFoundError
)
