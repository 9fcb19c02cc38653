package llm

import "errors"

var (
	// ErrSchemaViolation reports backend output that breaks the strict
	// response contract (undeclared properties, uncoercible values).
	ErrSchemaViolation = errors.New("backend response violates schema contract")
	// ErrBackendUnavailable reports transport-level failures. Retryable.
	ErrBackendUnavailable = errors.New("inference backend unavailable")
)
