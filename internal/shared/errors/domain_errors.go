package errors

import (
	"errors"
	"fmt"
	"time"
)

// DomainError is the base interface for all structured errors in the application
type DomainError interface {
	error

	// Domain returns the domain context (e.g., "invite", "coordination", "interface")
	Domain() string

	// Code returns a stable error code
	Code() string

	// Retryable indicates if the operation can be retried
	Retryable() bool

	// Metadata returns additional error context
	Metadata() map[string]any

	// WithMetadata adds metadata to the error
	WithMetadata(key string, value any) DomainError

	// Timestamp returns when the error occurred
	Timestamp() time.Time
}

// BaseError is the foundational implementation of DomainError
type BaseError struct {
	domain    string
	code      string
	message   string
	cause     error
	retryable bool
	metadata  map[string]any
	timestamp time.Time
}

func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.domain, e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.domain, e.code, e.message)
}

func (e *BaseError) Unwrap() error            { return e.cause }
func (e *BaseError) Domain() string           { return e.domain }
func (e *BaseError) Code() string             { return e.code }
func (e *BaseError) Retryable() bool          { return e.retryable }
func (e *BaseError) Metadata() map[string]any { return e.metadata }
func (e *BaseError) Timestamp() time.Time     { return e.timestamp }

// NewBaseError creates a new BaseError with the specified parameters
func NewBaseError(domain, code, message string, retryable bool, cause error, metadata map[string]any) *BaseError {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &BaseError{
		domain:    domain,
		code:      code,
		message:   message,
		cause:     cause,
		retryable: retryable,
		metadata:  metadata,
		timestamp: time.Now(),
	}
}

// WithMetadata returns a copy of the error carrying the extra key.
func (e *BaseError) WithMetadata(key string, value any) DomainError {
	newMeta := make(map[string]any, len(e.metadata)+1)
	for k, v := range e.metadata {
		newMeta[k] = v
	}
	newMeta[key] = value

	return &BaseError{
		domain:    e.domain,
		code:      e.code,
		message:   e.message,
		cause:     e.cause,
		retryable: e.retryable,
		metadata:  newMeta,
		timestamp: e.timestamp,
	}
}

// Standardized Error Codes
const (
	// Invite Domain Errors
	ErrCodeMalformedInvite = "malformed_invite"

	// Coordination Domain Errors
	ErrCodeNetworkError    = "network_error"
	ErrCodeServerError     = "server_error"
	ErrCodeDeserialization = "deserialization_error"

	// Interface Domain Errors
	ErrCodeInterfaceCommand = "interface_command_failed"
	ErrCodeInterfaceState   = "interface_state"

	// Session Domain Errors
	ErrCodeMissingConfig     = "missing_config"
	ErrCodeInvalidTransition = "invalid_transition"

	// System Errors
	ErrCodeConfiguration = "config_error"
	ErrCodeFileOperation = "file_operation_error"
	ErrCodeInternal      = "internal_error"
)

// Domain Constants
const (
	DomainInvite       = "invite"
	DomainCoordination = "coordination"
	DomainInterface    = "interface"
	DomainSession      = "session"
	DomainSystem       = "system"
)

// NewInviteError creates a standardized invite domain error
func NewInviteError(code, message string, cause error) DomainError {
	return NewBaseError(DomainInvite, code, message, false, cause, nil)
}

// NewCoordinationError creates a standardized coordination domain error
func NewCoordinationError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainCoordination, code, message, retryable, cause, nil)
}

// NewInterfaceError creates a standardized interface domain error
func NewInterfaceError(code, message string, cause error) DomainError {
	return NewBaseError(DomainInterface, code, message, false, cause, nil)
}

// NewSessionError creates a standardized session domain error
func NewSessionError(code, message string, cause error) DomainError {
	return NewBaseError(DomainSession, code, message, false, cause, nil)
}

// NewSystemError creates a standardized system error
func NewSystemError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainSystem, code, message, retryable, cause, nil)
}

// IsDomainError checks if an error is a DomainError
func IsDomainError(err error) bool {
	var domainErr DomainError
	return errors.As(err, &domainErr)
}

// GetErrorCode returns the code of the first DomainError in the chain, or "unknown".
func GetErrorCode(err error) string {
	var domainErr DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code()
	}
	return "unknown"
}

// GetErrorDomain returns the domain of the first DomainError in the chain, or "unknown".
func GetErrorDomain(err error) string {
	var domainErr DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Domain()
	}
	return "unknown"
}

// IsErrorCode checks if any error in the chain has the specified code
func IsErrorCode(err error, code string) bool {
	for err != nil {
		if domainErr, ok := err.(DomainError); ok && domainErr.Code() == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// WrapWithDomain wraps an existing error with domain context
func WrapWithDomain(err error, domain, code, message string, retryable bool) DomainError {
	return NewBaseError(domain, code, message, retryable, err, nil)
}
