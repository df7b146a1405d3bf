package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases
var (
	ErrInterfaceClosed = errors.New("interface is torn down")
	ErrAlreadyUp       = errors.New("interface already brought up")
	ErrNotUp           = errors.New("interface was never brought up")
)

// ServerError reports a non-2xx answer from the coordination server.
type ServerError struct {
	*BaseError
	Status int
	URL    string
}

// NewServerError creates a ServerError for the given HTTP status.
func NewServerError(status int, url string) *ServerError {
	base := NewBaseError(DomainCoordination, ErrCodeServerError,
		fmt.Sprintf("server returned %d", status), status >= 500, nil,
		map[string]any{"http_status": status, "url": url})
	return &ServerError{BaseError: base, Status: status, URL: url}
}

// CommandError reports an external utility that exited non-zero or could not run.
// ExitCode is -1 when the process never started.
type CommandError struct {
	*BaseError
	Command  string
	ExitCode int
	Stderr   string
}

// NewCommandError creates an InterfaceCommandError.
func NewCommandError(command string, exitCode int, stderr string, cause error) *CommandError {
	stderr = strings.TrimSpace(stderr)
	msg := fmt.Sprintf("command %q exited with status %d", command, exitCode)
	if stderr != "" {
		msg += ": " + stderr
	}
	base := NewBaseError(DomainInterface, ErrCodeInterfaceCommand, msg, false, cause,
		map[string]any{"command": command, "exit_code": exitCode})
	return &CommandError{BaseError: base, Command: command, ExitCode: exitCode, Stderr: stderr}
}

// NewMalformedInvite reports an invite code that is not a host:port:code triple.
func NewMalformedInvite(raw string) DomainError {
	return NewInviteError(ErrCodeMalformedInvite, "malformed invite code", nil).
		WithMetadata("fields", strings.Count(raw, ":")+1)
}

// NewNetworkError reports a transport failure talking to a coordination endpoint.
func NewNetworkError(url string, cause error) DomainError {
	return NewCoordinationError(ErrCodeNetworkError, "request failed", true, cause).
		WithMetadata("url", url)
}

// NewDeserializationError reports a response body that could not be decoded.
func NewDeserializationError(message string, cause error) DomainError {
	return NewCoordinationError(ErrCodeDeserialization, message, false, cause)
}

// NewMissingConfig reports an absent persisted darknet configuration.
func NewMissingConfig(name, path string) DomainError {
	return NewSessionError(ErrCodeMissingConfig, fmt.Sprintf("missing config for %q", name), nil).
		WithMetadata("path", path)
}

// NewConfigError reports an invalid configuration value.
func NewConfigError(field, message string) DomainError {
	return NewSystemError(ErrCodeConfiguration, message, false, nil).WithMetadata("field", field)
}
