package runner

import (
	"errors"
	"fmt"
)

// ConfigurationError reports declarations or configuration that cannot be
// satisfied. It is always fatal for the test.
type ConfigurationError struct {
	// Code identifies the error category.
	Code ConfigurationErrorCode

	// Message is a human-readable description.
	Message string

	// Connection is the connection name involved, if any.
	Connection string
}

// ConfigurationErrorCode categorizes configuration errors.
type ConfigurationErrorCode string

const (
	// ErrCodeNoConnection indicates that no connection could be resolved.
	ErrCodeNoConnection ConfigurationErrorCode = "NO_CONNECTION"

	// ErrCodeUnknownConnection indicates a declaration names a connection
	// that does not exist.
	ErrCodeUnknownConnection ConfigurationErrorCode = "UNKNOWN_CONNECTION"

	// ErrCodeUnsupportedOperation indicates the operation lookup has no
	// mapping for a declared kind.
	ErrCodeUnsupportedOperation ConfigurationErrorCode = "UNSUPPORTED_OPERATION"
)

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Connection != "" {
		return fmt.Sprintf("%s: %s (connection=%s)", e.Code, e.Message, e.Connection)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigurationError returns true if err is, or wraps, a
// *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// HasCode returns true if err is, or wraps, a *ConfigurationError with the
// given code.
func HasCode(err error, code ConfigurationErrorCode) bool {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

func noConnectionError(cause error) *ConfigurationError {
	msg := "no database connection could be resolved"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &ConfigurationError{Code: ErrCodeNoConnection, Message: msg}
}

func unknownConnectionError(name string, known []string) *ConfigurationError {
	return &ConfigurationError{
		Code:       ErrCodeUnknownConnection,
		Message:    fmt.Sprintf("unable to find connection named %q (known: %v)", name, known),
		Connection: name,
	}
}
