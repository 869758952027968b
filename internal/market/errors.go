package market

import (
	"errors"
	"fmt"
)

// DataSourceError is the typed failure reported by market data providers.
// Retryable errors count against the provider's circuit breaker; terminal
// errors (missing credentials, unsupported timeframe) skip the provider
// for the call without a counter bump.
type DataSourceError struct {
	Source    string
	Message   string
	Retryable bool
	Err       error
}

// Error implements the error interface
func (e *DataSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// Unwrap returns the underlying cause
func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// NewRetryableError reports a source-transient failure
func NewRetryableError(source, message string, err error) *DataSourceError {
	return &DataSourceError{Source: source, Message: message, Retryable: true, Err: err}
}

// NewTerminalError reports a source-terminal failure
func NewTerminalError(source, message string) *DataSourceError {
	return &DataSourceError{Source: source, Message: message, Retryable: false}
}

// IsRetryable reports whether an error should count against the circuit
// breaker. Unknown error kinds default to retryable.
func IsRetryable(err error) bool {
	var dsErr *DataSourceError
	if errors.As(err, &dsErr) {
		return dsErr.Retryable
	}
	return true
}
