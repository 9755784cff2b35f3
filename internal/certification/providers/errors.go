package providers

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized failure taxonomy
type ErrorCategory string

const (
	// ErrorTimeout indicates the backend did not answer within the call timeout
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorProviderOutage indicates the backend is unreachable or failing
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorNotIntegrated indicates credentials are present but no backend is wired
	ErrorNotIntegrated ErrorCategory = "not_integrated"

	// ErrorBadData indicates the backend rejected the request or answered garbage
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates the backend refused the credentials
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorInvalidCertificate indicates a malformed certificate was supplied
	ErrorInvalidCertificate ErrorCategory = "invalid_certificate"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// ProviderError wraps provider failures with normalized categorization
type ProviderError struct {
	Category   ErrorCategory
	Provider   string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.Provider, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.Provider, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError creates a new normalized provider error
func NewProviderError(category ErrorCategory, provider, message string, underlying error) *ProviderError {
	retryable := category == ErrorTimeout || category == ErrorProviderOutage

	return &ProviderError{
		Category:   category,
		Provider:   provider,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying at the caller
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

var ErrProviderNotFound = errors.New("provider not found")
