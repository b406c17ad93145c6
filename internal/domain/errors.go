package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is the umbrella for errors that must never be retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrMappingNotFound signals that no mapping exists for a source type or index.
	ErrMappingNotFound = errors.New("mapping not found")
	// ErrTenantRequired signals multi-tenancy without a resolvable tenant.
	ErrTenantRequired = errors.New("tenant required")
	// ErrInvalidTenant signals a tenant identifier that normalizes to nothing.
	ErrInvalidTenant = errors.New("invalid tenant")

	// ErrInvalidRequest signals a malformed caller request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrIndexNotFound signals a physical index missing from the search engine.
	ErrIndexNotFound = errors.New("index not found")
	// ErrJobFailed marks a dead-lettered job that exhausted its retry budget or failed permanently.
	ErrJobFailed = errors.New("job permanently failed")
)

// ConfigurationError ties a configuration sentinel to the subject it concerns.
type ConfigurationError struct {
	Subject string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Subject == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Subject)
}

// Unwrap exposes both the concrete sentinel and ErrConfiguration to errors.Is.
func (e *ConfigurationError) Unwrap() []error { return []error{e.Err, ErrConfiguration} }

// NewConfigurationError creates a configuration error for the given sentinel.
func NewConfigurationError(sentinel error, subject string) error {
	return &ConfigurationError{Subject: subject, Err: sentinel}
}

// IsConfiguration reports whether err must be surfaced without retry.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
