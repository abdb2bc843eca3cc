// Package apperr defines the error taxonomy shared by the lister, the tabular
// client and the HTTP layer, and maps it onto HTTP status codes.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common sentinel errors.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTimeout      = errors.New("timeout")
)

// ConfigurationError reports missing credentials or identifiers.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Setting)
}

// Missing returns a ConfigurationError for setting.
func Missing(setting string) error {
	return &ConfigurationError{Setting: setting}
}

// RemoteServiceError reports a non-2xx response from an external service.
type RemoteServiceError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *RemoteServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Message)
}

// MappingError reports a tabular record that does not fit the typed schema.
type MappingError struct {
	Table    string
	RecordID string
	Field    string
	Reason   string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("record %s in %s: field %q %s", e.RecordID, e.Table, e.Field, e.Reason)
}

// AppError carries an HTTP status code and a user-facing message.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// IsTimeout reports whether err came from an aborted outer fetch.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Map converts err to an AppError with an appropriate status code.
func Map(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return New(http.StatusServiceUnavailable, cfgErr.Error(), err)
	}

	var remoteErr *RemoteServiceError
	if errors.As(err, &remoteErr) {
		if remoteErr.StatusCode == http.StatusNotFound {
			return New(http.StatusNotFound, "Resource not found", err)
		}
		return New(http.StatusBadGateway, remoteErr.Error(), err)
	}

	if IsTimeout(err) {
		return New(http.StatusGatewayTimeout, "Request timed out", err)
	}
	if errors.Is(err, ErrInvalidInput) {
		return New(http.StatusBadRequest, err.Error(), err)
	}
	if errors.Is(err, ErrNotFound) {
		return New(http.StatusNotFound, "Resource not found", err)
	}

	return New(http.StatusInternalServerError, "Internal server error", err)
}
