package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// APIError represents a failed list request with additional context.
// Message carries the backend's "detail" text when the body has one.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error

	// Type and IDs describe the list request that failed. They are zero
	// for errors raised outside ListByIDs.
	Type entity.Type
	IDs  int
}

// Error implements the error interface, e.g.
// "LIMS sample list server error (status 500) for 3 ids: Internal server error".
func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("LIMS ")
	if e.Type != "" {
		fmt.Fprintf(&b, "%s list ", e.Type)
	}
	fmt.Fprintf(&b, "%s error", e.ErrorClass)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.IDs > 0 {
		fmt.Fprintf(&b, " for %d ids", e.IDs)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Retryable reports whether the request may succeed when sent again.
func (e *APIError) Retryable() bool {
	return shouldRetry(e.ErrorClass)
}

// annotate records the failed list request on the APIError inside err.
func annotate(err error, typ entity.Type, ids int) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		apiErr.Type = typ
		apiErr.IDs = ids
	}
	return err
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx and malformed bodies fail the same way on every attempt
		return false
	}
}
